package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the wire envelope, both directions: a named event plus an
// optional payload.
type Event struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outEvent struct {
	Type string `json:"event"`
	Data any    `json:"data,omitempty"`
}

type Client struct {
	conn *websocket.Conn
	send chan outEvent
	id   string
}

// Hub owns every live connection and the per-room broadcast groups. It is
// the Transport implementation handed to the session machine.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]*Client
}

func newHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}

	delete(h.clients, c.id)
	for _, group := range h.groups {
		delete(group, c.id)
	}
	close(c.send)
}

func (h *Hub) JoinGroup(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}

	group, ok := h.groups[room]
	if !ok {
		group = make(map[string]*Client)
		h.groups[room] = group
	}
	group[connID] = c
}

func (h *Hub) LeaveGroup(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[room]
	if !ok {
		return
	}

	delete(group, connID)
	if len(group) == 0 {
		delete(h.groups, room)
	}
}

func (h *Hub) Broadcast(room, event string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.groups[room] {
		h.deliver(c, outEvent{Type: event, Data: data})
	}
}

func (h *Hub) Unicast(connID, event string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}

	h.deliver(c, outEvent{Type: event, Data: data})
}

// deliver assumes h.mu is already held. Slow consumers are evicted rather
// than allowed to stall the game.
func (h *Hub) deliver(c *Client, ev outEvent) {
	select {
	case c.send <- ev:
	default:
		delete(h.clients, c.id)
		for _, group := range h.groups {
			delete(group, c.id)
		}
		close(c.send)
	}
}

// Inbound payloads.

type joinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type submitResponsePayload struct {
	RoomCode string `json:"roomCode"`
	Response string `json:"response"`
}

type votePayload struct {
	RoomCode    string `json:"roomCode"`
	VotedUserID string `json:"votedUserId"`
}

// dispatch decodes a client event and forwards it to the session machine.
// Malformed payloads and unknown event names are dropped.
func dispatch(g *Game, connID string, ev Event) {
	switch ev.Type {
	case "createRoom":
		g.creates <- createRequest{connID: connID}
	case "joinRoom":
		var p joinRoomPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		g.joins <- joinRequest{connID: connID, code: p.RoomCode, username: p.Username}
	case "startGame", "playAgain", "voteTimeout":
		var code string
		if err := json.Unmarshal(ev.Data, &code); err != nil {
			return
		}
		g.actions <- actionRequest{kind: ev.Type, connID: connID, code: code}
	case "submitResponse":
		var p submitResponsePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		g.actions <- actionRequest{kind: ev.Type, connID: connID, code: p.RoomCode, value: p.Response}
	case "vote":
		var p votePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		g.actions <- actionRequest{kind: ev.Type, connID: connID, code: p.RoomCode, value: p.VotedUserID}
	default:
		// ignore unknown types
	}
}

func (c *Client) readPump(g *Game, h *Hub) {
	defer func() {
		h.remove(c)
		g.disconnects <- c.id
		_ = c.conn.Close()
	}()

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}

		dispatch(g, c.id, ev)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func serveWS(cfg *Config, g *Game, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan outEvent, 8),
			id:   uuid.NewString(),
		}
		h.add(client)
		logf(cfg, "GAMES: Connection %s opened from %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(g, h)
	}
}

// qrHandler renders a PNG QR code linking to the join page for a room, so a
// code shown on one screen can be scanned by another player's phone.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /join/:code/qr; strip trailing "/qr" to get the join URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerPromptGame wires the game's websocket endpoint and QR share links
// into the router and starts the session machine.
func registerPromptGame(ctx context.Context, cfg *Config, mux *httprouter.Router) {
	hub := newHub()
	game := newGame(cfg, hub)
	go game.run(ctx)

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, game, hub))

	mux.GET(cfg.prefix+"/join/:code/qr", qrHandler)
}
