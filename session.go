package main

import (
	"context"
	"math/rand"
	"time"
)

// Transport is the messaging collaborator the session machine drives. The
// websocket Hub implements it; tests substitute a recorder.
type Transport interface {
	JoinGroup(room, connID string)
	LeaveGroup(room, connID string)
	Broadcast(room, event string, data any)
	Unicast(connID, event string, data any)
}

const hostUsername = "Host"

var prompts = []string{
	"What's your favorite movie?",
	"Describe your perfect day.",
	"What's the most memorable trip you've taken?",
	"If you could have any superpower, what would it be?",
}

type createRequest struct {
	connID string
}

type joinRequest struct {
	connID   string
	code     string
	username string
}

// actionRequest covers the room-scoped events sharing a lookup path:
// startGame, submitResponse, vote, playAgain, and client-sent voteTimeout.
type actionRequest struct {
	kind   string
	connID string
	code   string
	value  string // response text or voted username
}

type timeoutEvent struct {
	code  string
	token int
}

// Outbound payloads.

type roomCreatedMessage struct {
	RoomCode string `json:"roomCode"`
}

type joinResultMessage struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type promptMessage struct {
	Prompt       string `json:"prompt"`
	PromptNumber int    `json:"promptNumber"`
}

type userSubmittedMessage struct {
	UserID string `json:"userId"`
}

type userVotedMessage struct {
	Voter string `json:"voter"`
	Voted string `json:"voted"`
}

type winnerMessage struct {
	Winner Winner `json:"winner"`
}

type noticeMessage struct {
	Message string `json:"message"`
}

// Game is the session machine driving every room. All Registry and Room
// mutations happen on the run goroutine, so handlers never race; the only
// asynchronous trigger is a round deadline, and it re-enters the same loop
// through the timeouts channel.
type Game struct {
	cfg       *Config
	transport Transport
	registry  *Registry

	creates     chan createRequest
	joins       chan joinRequest
	actions     chan actionRequest
	disconnects chan string
	timeouts    chan timeoutEvent
}

func newGame(cfg *Config, transport Transport) *Game {
	return &Game{
		cfg:         cfg,
		transport:   transport,
		registry:    newRegistry(),
		creates:     make(chan createRequest),
		joins:       make(chan joinRequest),
		actions:     make(chan actionRequest),
		disconnects: make(chan string),
		timeouts:    make(chan timeoutEvent, 8),
	}
}

func (g *Game) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-g.creates:
			g.handleCreate(req)
		case req := <-g.joins:
			g.handleJoin(req)
		case req := <-g.actions:
			g.handleAction(req)
		case connID := <-g.disconnects:
			g.handleDisconnect(connID)
		case ev := <-g.timeouts:
			g.handleTimeout(ev)
		}
	}
}

func (g *Game) handleCreate(req createRequest) {
	room := g.registry.create(req.connID, hostUsername)
	g.transport.JoinGroup(room.Code, req.connID)
	g.transport.Unicast(req.connID, "roomCreated", roomCreatedMessage{RoomCode: room.Code})
	logf(g.cfg, "GAMES: Room %s created by %s", room.Code, req.connID)
}

func (g *Game) handleJoin(req joinRequest) {
	switch g.registry.join(req.code, req.connID, req.username) {
	case joinNotFound:
		g.transport.Unicast(req.connID, "joinResult", joinResultMessage{Success: false, Message: "Room not found."})
	case joinFull:
		g.transport.Unicast(req.connID, "joinResult", joinResultMessage{Success: false, Message: "Room is full."})
	case joinOK:
		room := g.registry.get(req.code)
		g.transport.JoinGroup(room.Code, req.connID)
		g.transport.Unicast(req.connID, "joinResult", joinResultMessage{Success: true})
		g.transport.Broadcast(room.Code, "updateUsers", room.usernames())
		logf(g.cfg, "GAMES: %q joined room %s", req.username, room.Code)
	}
}

func (g *Game) handleAction(req actionRequest) {
	room := g.registry.get(req.code)
	if room == nil {
		return
	}

	switch req.kind {
	case "startGame":
		g.startGame(room, req.connID)
	case "submitResponse":
		g.submitResponse(room, req.connID, req.value)
	case "vote":
		g.vote(room, req.connID, req.value)
	case "playAgain":
		g.playAgain(room, req.connID)
	case "voteTimeout":
		// Clients may report the vote window expiring themselves; the
		// request funnels into the same guarded finalization path.
		g.finishVoting(room)
	}
}

func (g *Game) startGame(room *Room, connID string) {
	if room.Host != connID || room.Phase != phaseLobby {
		return
	}

	g.transport.Broadcast(room.Code, "gameStarted", nil)
	g.startRound(room)
}

// playAgain re-prompts without requiring the room to be idle, so a host can
// abandon a stuck round.
func (g *Game) playAgain(room *Room, connID string) {
	if room.Host != connID {
		return
	}

	g.startRound(room)
}

// startRound selects a prompt, resets per-round state, and arms the response
// window. Bumping the round token first invalidates any deadline still in
// flight from the previous round.
func (g *Game) startRound(room *Room) {
	room.round++
	room.Phase = phasePrompted
	room.PromptNumber++
	room.Responses = make(map[string]string)
	room.Votes = make(map[string]string)

	prompt := prompts[rand.Intn(len(prompts))]
	g.transport.Broadcast(room.Code, "newPrompt", promptMessage{Prompt: prompt, PromptNumber: room.PromptNumber})
	g.armTimer(room, g.cfg.responseWindow)
	logf(g.cfg, "GAMES: Room %s round %d prompt %q", room.Code, room.PromptNumber, prompt)
}

func (g *Game) armTimer(room *Room, d time.Duration) {
	code, token := room.Code, room.round
	room.timer.arm(d, func() {
		g.timeouts <- timeoutEvent{code: code, token: token}
	})
}

func (g *Game) handleTimeout(ev timeoutEvent) {
	room := g.registry.get(ev.code)
	if room == nil || ev.token != room.round {
		return
	}

	room.timer.cancel()

	switch room.Phase {
	case phasePrompted:
		g.responseTimeout(room)
	case phaseVoting:
		g.finishVoting(room)
	}
}

// responseTimeout reveals whatever came in before the deadline. The room
// stays in the prompted phase rather than advancing to voting, so stragglers
// can still complete the set.
func (g *Game) responseTimeout(room *Room) {
	if len(room.Responses) > 0 {
		g.transport.Broadcast(room.Code, "showResponses", room.Responses)

		return
	}

	g.transport.Broadcast(room.Code, "noResponses", noticeMessage{Message: "No responses received in time."})
}

func (g *Game) submitResponse(room *Room, connID, text string) {
	if room.Phase != phasePrompted {
		return
	}

	user, ok := room.member(connID)
	if !ok {
		return
	}
	if _, dup := room.Responses[user.Username]; dup {
		return
	}

	room.Responses[user.Username] = text
	g.transport.Broadcast(room.Code, "userSubmitted", userSubmittedMessage{UserID: user.Username})
	logf(g.cfg, "GAMES: Response from %q in room %s", user.Username, room.Code)

	g.maybeFinishResponses(room)
}

// maybeFinishResponses transitions to voting once every current member has
// responded.
func (g *Game) maybeFinishResponses(room *Room) {
	if room.Phase != phasePrompted || len(room.Responses) < len(room.Users) {
		return
	}

	room.round++
	room.Phase = phaseVoting
	g.transport.Broadcast(room.Code, "showResponses", room.Responses)
	g.transport.Broadcast(room.Code, "startVoting", nil)
	g.armTimer(room, g.cfg.voteWindow)
}

func (g *Game) vote(room *Room, connID, voted string) {
	if room.Phase != phaseVoting {
		return
	}

	user, ok := room.member(connID)
	if !ok {
		return
	}
	if _, dup := room.Votes[user.Username]; dup {
		return
	}

	room.Votes[user.Username] = voted
	g.transport.Broadcast(room.Code, "userVoted", userVotedMessage{Voter: user.Username, Voted: voted})
	logf(g.cfg, "GAMES: %q voted for %q in room %s", user.Username, voted, room.Code)

	g.maybeFinishVoting(room)
}

func (g *Game) maybeFinishVoting(room *Room) {
	if room.Phase != phaseVoting || len(room.Votes) < len(room.Users) {
		return
	}

	g.finalizeRound(room, true)
}

// finishVoting is the vote-window-expiry path: zero votes means every
// current member ties at zero. The host is not asked to replay here.
func (g *Game) finishVoting(room *Room) {
	if room.Phase != phaseVoting {
		return
	}

	g.finalizeRound(room, false)
}

// finalizeRound announces the winner and returns the room to the lobby.
// Bumping the round token makes any still-pending deadline a no-op, so the
// all-votes-in and timeout paths cannot both announce a result.
func (g *Game) finalizeRound(room *Room, askReplay bool) {
	room.round++
	room.timer.cancel()
	room.Phase = phaseLobby

	var winner Winner
	if len(room.Votes) == 0 {
		winner = Winner{Tied: room.usernames()}
	} else {
		winner = tallyVotes(room.Votes)
	}

	g.transport.Broadcast(room.Code, "roundWinner", winnerMessage{Winner: winner})
	if askReplay {
		g.transport.Unicast(room.Host, "askToPlayAgain", noticeMessage{Message: "Do you want to play again?"})
	}
	logf(g.cfg, "GAMES: Room %s round %d finished", room.Code, room.PromptNumber)
}

func (g *Game) handleDisconnect(connID string) {
	out, ok := g.registry.removeConnection(connID)
	if !ok {
		return
	}

	room := out.room
	g.transport.LeaveGroup(room.Code, connID)

	if out.deleted {
		logf(g.cfg, "GAMES: Room %s deleted", room.Code)

		return
	}

	g.transport.Broadcast(room.Code, "updateUsers", room.usernames())
	if out.newHost != nil {
		g.transport.Broadcast(room.Code, "newHost", out.newHost.Username)
	}

	// A departure mid-round shrinks the member count, so the phase the room
	// is waiting on may now be complete. Entries from the departed member
	// are dropped first so they never count toward the new total.
	delete(room.Responses, out.member.Username)
	delete(room.Votes, out.member.Username)
	g.maybeFinishResponses(room)
	g.maybeFinishVoting(room)
}
