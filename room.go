package main

import (
	"crypto/rand"
)

type phase int

const (
	phaseLobby phase = iota
	phasePrompted
	phaseVoting
)

const maxRoomSize = 4

// Member is a single room occupant. Join order is preserved because host
// failover promotes the earliest remaining member.
type Member struct {
	ConnID   string
	Username string
}

// Room is the full per-session state. Rooms are owned by the Game goroutine
// and never touched concurrently, so they carry no lock.
type Room struct {
	Code         string
	Host         string // connection ID, always present in Users
	Users        []Member
	Phase        phase
	PromptNumber int
	Responses    map[string]string // username -> response text
	Votes        map[string]string // voter username -> voted username
	timer        *roundTimer
	round        int // monotonic token; a deadline firing with an older token is stale
}

func (rm *Room) usernames() []string {
	names := make([]string, 0, len(rm.Users))
	for _, u := range rm.Users {
		names = append(names, u.Username)
	}
	return names
}

func (rm *Room) member(connID string) (Member, bool) {
	for _, u := range rm.Users {
		if u.ConnID == connID {
			return u, true
		}
	}
	return Member{}, false
}

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 4
)

// newRoomCode generates a crypto-random 4-letter room code, retrying until
// it does not collide with any live room.
func newRoomCode(existing map[string]*Room) string {
	for {
		buf := make([]byte, codeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, codeLength)
		for i := range out {
			out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(out)

		if _, taken := existing[code]; !taken {
			return code
		}
	}
}

type joinResult int

const (
	joinOK joinResult = iota
	joinFull
	joinNotFound
)

// Registry is the single source of truth for live rooms, keyed by room code.
// Like each Room, it is owned by the Game goroutine.
type Registry struct {
	rooms map[string]*Room
}

func newRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

func (reg *Registry) get(code string) *Room {
	return reg.rooms[code]
}

func (reg *Registry) create(hostConnID, hostName string) *Room {
	room := &Room{
		Code:      newRoomCode(reg.rooms),
		Host:      hostConnID,
		Users:     []Member{{ConnID: hostConnID, Username: hostName}},
		Responses: make(map[string]string),
		Votes:     make(map[string]string),
		timer:     &roundTimer{},
	}
	reg.rooms[room.Code] = room

	return room
}

func (reg *Registry) join(code, connID, username string) joinResult {
	room := reg.rooms[code]
	if room == nil {
		return joinNotFound
	}
	if len(room.Users) >= maxRoomSize {
		return joinFull
	}

	room.Users = append(room.Users, Member{ConnID: connID, Username: username})

	return joinOK
}

// removal describes the outcome of removeConnection.
type removal struct {
	room    *Room
	member  Member
	newHost *Member // non-nil if the host role moved
	deleted bool    // true if the last member left and the room was deleted
}

// removeConnection drops the connection from whichever room contains it. A
// connection belongs to at most one room at a time, enforced by the calling
// protocol rather than re-validated here.
func (reg *Registry) removeConnection(connID string) (removal, bool) {
	for _, room := range reg.rooms {
		idx := -1
		for i, u := range room.Users {
			if u.ConnID == connID {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}

		out := removal{room: room, member: room.Users[idx]}
		room.Users = append(room.Users[:idx], room.Users[idx+1:]...)

		if len(room.Users) == 0 {
			room.timer.cancel()
			delete(reg.rooms, room.Code)
			out.deleted = true

			return out, true
		}

		if room.Host == connID {
			room.Host = room.Users[0].ConnID
			out.newHost = &room.Users[0]
		}

		return out, true
	}

	return removal{}, false
}
