package ws

import (
	"sync"

	"github.com/judgegodwins/chess-relay/chessrules"
	"github.com/judgegodwins/chess-relay/directory"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

type GameStatus string

const (
	StatusWaiting    GameStatus = "waiting"
	StatusInProgress GameStatus = "in_progress"
	StatusConcluded  GameStatus = "concluded"
)

type SeatPreference string

const (
	PreferWhite  SeatPreference = "white"
	PreferBlack  SeatPreference = "black"
	PreferRandom SeatPreference = "random"
)

// Notifier receives room occupancy changes. Implementations must not block.
type Notifier interface {
	Publish(e directory.Entry)
	Remove(roomID string)
}

type noopNotifier struct{}

func (noopNotifier) Publish(directory.Entry) {}
func (noopNotifier) Remove(string)           {}

// Room is one game session. Every field below mu is guarded by it, and all
// outbound events for the room are queued while it is held, so observers see
// them in the order the mutations happened.
type Room struct {
	ID string

	mu                sync.Mutex
	position          *chessrules.Position
	seats             map[chessrules.Color]string
	moveLog           []chessrules.Move
	clients           []*Client
	started           bool
	status            GameStatus
	rematchVotes      map[string]struct{}
	creatorPreference SeatPreference
	closed            bool

	notifier Notifier
	logger   *zap.Logger
}

func NewRoom(id string, pref SeatPreference, notifier Notifier, logger *zap.Logger) *Room {
	if pref == "" {
		pref = PreferRandom
	}

	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &Room{
		ID:                id,
		position:          chessrules.NewPosition(),
		seats:             make(map[chessrules.Color]string),
		status:            StatusWaiting,
		rematchVotes:      make(map[string]struct{}),
		creatorPreference: pref,
		notifier:          notifier,
		logger:            logger.With(zap.String("room_id", id)),
	}
}

// join attaches c to the room, assigns its role and sends it the init
// event. It returns false when the room was closed by its last connection
// leaving, in which case the caller must resolve the room again.
func (r *Room) join(c *Client, flipCoin func() bool) (Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", false
	}

	role, opponentArrived := r.assignSeat(c.PlayerID, flipCoin)

	c.role = role
	c.room = r
	r.clients = append(r.clients, c)

	r.logger.Info("player connected",
		zap.String("player_id", c.PlayerID), zap.String("role", string(role)))

	if opponentArrived {
		r.onOpponentArrived()
	}

	r.emitTo(c, EventInit, PayloadInit{
		Color:             role,
		PlayerID:          c.PlayerID,
		Moves:             r.movesLocked(),
		OpponentConnected: r.seats[chessrules.White] != "" && r.seats[chessrules.Black] != "",
		GameStarted:       r.started,
		WhitePlayer:       r.seats[chessrules.White],
		BlackPlayer:       r.seats[chessrules.Black],
		Status:            r.status,
		FEN:               r.position.FEN(),
	})

	if opponentArrived {
		r.emit(nil, EventGameStarted, PayloadGameStarted{
			WhitePlayer: r.seats[chessrules.White],
			BlackPlayer: r.seats[chessrules.Black],
		})
	}

	r.publishLocked()

	return role, true
}

// assignSeat decides the role of a joining player. The second return value
// is true when the join filled the last vacant seat.
func (r *Room) assignSeat(playerID string, flipCoin func() bool) (Role, bool) {
	if seat, ok := r.seatOf(playerID); ok {
		return roleOf(seat), false
	}

	white, black := r.seats[chessrules.White], r.seats[chessrules.Black]

	switch {
	case white == "" && black == "":
		seat := chessrules.White
		switch r.creatorPreference {
		case PreferBlack:
			seat = chessrules.Black
		case PreferRandom:
			if !flipCoin() {
				seat = chessrules.Black
			}
		}
		r.seats[seat] = playerID
		return roleOf(seat), false
	case white == "":
		r.seats[chessrules.White] = playerID
		return RoleWhite, true
	case black == "":
		r.seats[chessrules.Black] = playerID
		return RoleBlack, true
	}

	return RoleSpectator, false
}

func (r *Room) onOpponentArrived() {
	r.started = true

	if r.status != StatusWaiting {
		return
	}

	// a seat emptied after the last game ended: the newcomers get a fresh board
	if r.position.Terminal().IsTerminal() {
		r.resetGameLocked()
	}

	r.status = StatusInProgress
	r.logger.Info("game started",
		zap.String("white", r.seats[chessrules.White]), zap.String("black", r.seats[chessrules.Black]))
}

// leave detaches c. If c held a seat and no other connection of the same
// player holds it, the seat is vacated and pending rematch votes are
// discarded. It returns true when the room became empty; the room is then
// closed and must be dropped from the registry. Calling it twice is a no-op.
func (r *Room) leave(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.Index(r.clients, c)
	if idx < 0 {
		return false
	}
	r.clients = slices.Delete(r.clients, idx, idx+1)

	if seat, ok := c.role.Seat(); ok && r.seats[seat] == c.PlayerID && !r.holdsSeat(seat, c.PlayerID) {
		delete(r.seats, seat)
		r.clearVotes()

		// with nobody left to answer, the game cannot go on
		if r.status == StatusConcluded || len(r.seats) == 0 {
			r.status = StatusWaiting
		}

		r.logger.Info("seat vacated",
			zap.String("player_id", c.PlayerID), zap.String("seat", string(seat)))

		r.emit(nil, EventPlayerLeft, PayloadPlayerLeft{PlayerID: c.PlayerID, Color: c.role})
	}

	r.logger.Info("player disconnected",
		zap.String("player_id", c.PlayerID), zap.Int("connections", len(r.clients)))

	if len(r.clients) == 0 {
		r.closed = true
		r.notifier.Remove(r.ID)
		return true
	}

	r.publishLocked()

	return false
}

// TryMove applies m on behalf of c. The seat and turn checks run under the
// same lock as the mutation, so of two racing moves only the side to move
// can succeed. Accepted moves are logged, echoed to every other connection
// and followed by game_over when they end the game.
func (r *Room) TryMove(c *Client, m chessrules.Move) (chessrules.Move, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seat, err := r.seatedLocked(c)
	if err != nil {
		return chessrules.Move{}, err
	}

	if r.status != StatusInProgress {
		return chessrules.Move{}, ErrGameNotActive
	}

	if r.position.SideToMove() != seat {
		return chessrules.Move{}, ErrNotYourTurn
	}

	applied, err := r.position.Apply(m)
	if err != nil {
		return chessrules.Move{}, err
	}

	r.moveLog = append(r.moveLog, applied)

	r.logger.Debug("move accepted",
		zap.String("player_id", c.PlayerID), zap.String("move", applied.UCI()), zap.Int("ply", len(r.moveLog)))

	r.emit(c, EventMove, PayloadMove{Move: applied})

	if term := r.position.Terminal(); term.IsTerminal() {
		r.status = StatusConcluded

		r.logger.Info("game over", zap.String("reason", term.Reason), zap.String("winner", string(term.Winner)))

		r.emit(nil, EventGameOver, PayloadGameOver{
			Result: term.Result(),
			Reason: term.Reason,
			Winner: term.Winner,
		})

		r.publishLocked()
	}

	return applied, nil
}

// VoteRematch records c's rematch vote. When both seat holders have voted
// the game is reset with colors swapped and true is returned. Otherwise, if
// relay is set, the opponent is notified with rematch_request.
func (r *Room) VoteRematch(c *Client, relay bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seat, err := r.seatedLocked(c)
	if err != nil {
		return false, err
	}

	if r.status != StatusConcluded {
		return false, ErrRematchNotAvailable
	}

	r.rematchVotes[c.PlayerID] = struct{}{}

	_, whiteVoted := r.rematchVotes[r.seats[chessrules.White]]
	_, blackVoted := r.rematchVotes[r.seats[chessrules.Black]]

	if whiteVoted && blackVoted {
		r.rematchLocked()
		return true, nil
	}

	if relay {
		r.emitToPlayer(r.seats[seat.Opposite()], EventRematchRequest, PayloadPlayer{PlayerID: c.PlayerID})
	}

	return false, nil
}

// DeclineRematch discards all rematch votes and tells the opponent.
func (r *Room) DeclineRematch(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seat, err := r.seatedLocked(c)
	if err != nil {
		return err
	}

	if r.status != StatusConcluded {
		return ErrRematchNotAvailable
	}

	r.clearVotes()
	r.emitToPlayer(r.seats[seat.Opposite()], EventRematchDeclined, PayloadPlayer{PlayerID: c.PlayerID})

	return nil
}

// rematchLocked starts a new game with the seat holders swapped and tells
// every connection its new role individually.
func (r *Room) rematchLocked() {
	oldWhite, oldBlack := r.seats[chessrules.White], r.seats[chessrules.Black]

	r.resetGameLocked()
	r.started = true
	r.status = StatusInProgress
	r.seats[chessrules.White], r.seats[chessrules.Black] = oldBlack, oldWhite

	for _, c := range r.clients {
		switch {
		case c.role == RoleWhite && c.PlayerID == oldWhite:
			c.role = RoleBlack
		case c.role == RoleBlack && c.PlayerID == oldBlack:
			c.role = RoleWhite
		}
	}

	r.logger.Info("rematch started", zap.String("white", oldBlack), zap.String("black", oldWhite))

	for _, c := range r.clients {
		r.emitTo(c, EventRematchStarted, PayloadRematchStarted{
			Color:       c.role,
			PlayerID:    c.PlayerID,
			Moves:       []chessrules.Move{},
			WhitePlayer: oldBlack,
			BlackPlayer: oldWhite,
		})
	}

	r.publishLocked()
}

func (r *Room) resetGameLocked() {
	r.position = chessrules.NewPosition()
	r.moveLog = nil
	r.clearVotes()
}

func (r *Room) clearVotes() {
	r.rematchVotes = make(map[string]struct{})
}

// seatedLocked returns the seat c plays from, or an error for spectators
// and for connections whose seat has since been taken over.
func (r *Room) seatedLocked(c *Client) (chessrules.Color, error) {
	seat, ok := c.role.Seat()
	if !ok {
		return "", ErrSpectator
	}

	if r.seats[seat] != c.PlayerID {
		return "", ErrNotSeated
	}

	return seat, nil
}

func (r *Room) seatOf(playerID string) (chessrules.Color, bool) {
	for _, seat := range []chessrules.Color{chessrules.White, chessrules.Black} {
		if id := r.seats[seat]; id != "" && id == playerID {
			return seat, true
		}
	}
	return "", false
}

// holdsSeat reports whether another attached connection of playerID plays seat.
func (r *Room) holdsSeat(seat chessrules.Color, playerID string) bool {
	return lo.ContainsBy(r.clients, func(c *Client) bool {
		return c.PlayerID == playerID && c.role == roleOf(seat)
	})
}

func (r *Room) movesLocked() []chessrules.Move {
	moves := make([]chessrules.Move, len(r.moveLog))
	copy(moves, r.moveLog)
	return moves
}

// emit queues an event for every connection except the given one.
func (r *Room) emit(except *Client, evtType string, payload any) {
	evt, err := NewEvent(evtType, payload)
	if err != nil {
		r.logger.Error("cannot build event", zap.String("type", evtType), zap.Error(err))
		return
	}

	for _, c := range r.clients {
		if c != except {
			c.PushToEgress(evt)
		}
	}
}

func (r *Room) emitTo(c *Client, evtType string, payload any) {
	if err := c.PushEventToEgress(evtType, payload); err != nil {
		r.logger.Error("cannot build event", zap.String("type", evtType), zap.Error(err))
	}
}

// emitToPlayer queues an event for every connection of playerID.
func (r *Room) emitToPlayer(playerID, evtType string, payload any) {
	if playerID == "" {
		return
	}

	for _, c := range lo.Filter(r.clients, func(c *Client, _ int) bool { return c.PlayerID == playerID }) {
		r.emitTo(c, evtType, payload)
	}
}

func (r *Room) publishLocked() {
	r.notifier.Publish(r.snapshotLocked())
}

func (r *Room) snapshotLocked() directory.Entry {
	return directory.Entry{
		ID:          r.ID,
		White:       r.seats[chessrules.White],
		Black:       r.seats[chessrules.Black],
		Started:     r.started,
		Status:      string(r.status),
		Connections: len(r.clients),
	}
}

// Snapshot returns the room's occupancy.
func (r *Room) Snapshot() directory.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// MoveLog returns a copy of the moves played in the current game.
func (r *Room) MoveLog() []chessrules.Move {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.movesLocked()
}

func (r *Room) FEN() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position.FEN()
}

func (r *Room) Status() GameStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// RematchVotes lists the players that currently agree to a rematch.
func (r *Room) RematchVotes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.rematchVotes)
}

// RoleOf returns the current role of a connection attached to this room.
func (r *Room) RoleOf(c *Client) Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.role
}

// connections lists the attached clients.
func (r *Room) connections() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.clients)
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
