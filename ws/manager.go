package ws

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/judgegodwins/chess-relay/directory"
	"github.com/judgegodwins/chess-relay/http_utils"
	"github.com/judgegodwins/chess-relay/util"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type wsQuery struct {
	RoomID         string `form:"roomId" validate:"required"`
	PlayerID       string `form:"playerId" validate:"required"`
	PreferredColor string `form:"preferredColor"`
}

// Manager is the room registry. It creates a room the first time a
// connection names it and drops it when its last connection leaves.
type Manager struct {
	sync.RWMutex
	rooms    map[string]*Room
	handlers map[string]EventHandler

	upgrader       websocket.Upgrader
	pingInterval   time.Duration
	maxMissedPongs int
	flipCoin       func() bool
	notifier       Notifier
	logger         *zap.Logger

	// conns counts connections between admission and their final Leave.
	conns   sync.WaitGroup
	closing atomic.Bool
}

type Option func(*Manager)

// WithCoin replaces the coin used to seat a creator who asked for a random
// color. It must return true for white.
func WithCoin(flip func() bool) Option {
	return func(m *Manager) { m.flipCoin = flip }
}

// WithNotifier mirrors room occupancy into n.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(m *Manager) { m.upgrader.CheckOrigin = check }
}

func NewManager(config *util.Config, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		rooms:    make(map[string]*Room),
		handlers: make(map[string]EventHandler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		pingInterval:   config.PingInterval,
		maxMissedPongs: config.MaxMissedPongs,
		flipCoin:       cryptoCoin,
		notifier:       noopNotifier{},
		logger:         logger,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.setupEventHandlers()

	return m
}

func (m *Manager) setupEventHandlers() {
	m.handlers[EventMove] = MoveHandler
	m.handlers[EventRematchRequest] = RematchRequestHandler
	m.handlers[EventRematchAccept] = RematchAcceptHandler
	m.handlers[EventRematchDecline] = RematchDeclineHandler
}

// Unknown event types are ignored.
func (m *Manager) routeEvent(ctx context.Context, evt Event, c *Client) error {
	handler, ok := m.handlers[evt.Type]
	if !ok {
		c.logger.Debug("ignoring unknown event", zap.String("type", evt.Type))
		return nil
	}

	return handler(ctx, evt, c)
}

// resolveOrCreate returns the live room for roomID, creating it when absent.
// Concurrent callers for the same unseen id all observe one room.
func (m *Manager) resolveOrCreate(roomID string, pref SeatPreference) *Room {
	m.Lock()
	defer m.Unlock()

	if room, ok := m.rooms[roomID]; ok && !room.isClosed() {
		return room
	}

	room := NewRoom(roomID, pref, m.notifier, m.logger)
	m.rooms[roomID] = room

	m.logger.Info("room created", zap.String("room_id", roomID), zap.String("preference", string(pref)))

	return room
}

// remove drops room from the registry if it is still the registered room
// for its id. Removing twice is a no-op.
func (m *Manager) remove(room *Room) {
	m.Lock()
	defer m.Unlock()

	if current, ok := m.rooms[room.ID]; ok && current == room {
		delete(m.rooms, room.ID)
		m.logger.Info("room removed", zap.String("room_id", room.ID))
	}
}

// Join attaches c to the room it names, creating the room if needed, and
// returns the room and the role c was given.
func (m *Manager) Join(c *Client, pref SeatPreference) (*Room, Role) {
	for {
		room := m.resolveOrCreate(c.RoomID, pref)

		if role, ok := room.join(c, m.flipCoin); ok {
			return room, role
		}
		// lost a race with the room's last connection leaving; the next
		// resolve replaces the closed room
	}
}

// Leave detaches c from its room and drops the room once it is empty.
func (m *Manager) Leave(c *Client) {
	room := c.room
	if room == nil {
		return
	}

	if room.leave(c) {
		m.remove(room)
	}
}

// Room returns the live room registered under roomID.
func (m *Manager) Room(roomID string) (*Room, bool) {
	m.RLock()
	defer m.RUnlock()

	room, ok := m.rooms[roomID]
	return room, ok
}

// Lookup returns the occupancy of a live room.
func (m *Manager) Lookup(roomID string) (directory.Entry, bool) {
	room, ok := m.Room(roomID)
	if !ok {
		return directory.Entry{}, false
	}
	return room.Snapshot(), true
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

func (m *Manager) Stats() Stats {
	m.RLock()
	rooms := lo.Values(m.rooms)
	m.RUnlock()

	return Stats{
		Rooms: len(rooms),
		Connections: lo.SumBy(rooms, func(r *Room) int {
			return r.Snapshot().Connections
		}),
	}
}

func (m *Manager) pongWait() time.Duration {
	return m.pingInterval * time.Duration(m.maxMissedPongs+1)
}

// Websocket connection handler
func (m *Manager) ServeWS(c *gin.Context) {
	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Warn("error upgrading to websocket connection", zap.Error(err))
		return
	}

	query := wsQuery{
		RoomID:         c.Query("roomId"),
		PlayerID:       c.Query("playerId"),
		PreferredColor: c.Query("preferredColor"),
	}

	if vErr := http_utils.Validate(util.Validate, query); len(vErr.Errors) > 0 {
		m.logger.Warn("rejecting connection", zap.Strings("errors", vErr.Errors))
		m.reject(conn, vErr.Errors)
		return
	}

	pref := m.seatPreference(query.PreferredColor)

	if !m.admit() {
		m.goAway(conn)
		return
	}
	defer m.conns.Done()

	client := NewClient(conn, m, query.RoomID, query.PlayerID)

	ctx, cancel := context.WithCancel(c.Request.Context())

	m.Join(client, pref)

	// Shutdown may have listed the rooms before this client was attached
	if m.closing.Load() {
		client.handleError(ErrServerShutdown)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		client.readMessages(ctx)
	}()

	go func() {
		defer wg.Done()
		client.writeMessages(ctx)
	}()

	err = <-client.Err()

	cancel()

	closeCode := websocket.CloseNormalClosure
	if errors.Is(err, ErrServerShutdown) {
		closeCode = websocket.CloseGoingAway
	}

	closeErr := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, ""), time.Now().Add(writeWait))
	if closeErr != nil && !errors.Is(closeErr, websocket.ErrCloseSent) {
		client.logger.Debug("error sending close message", zap.Error(closeErr))
	}

	conn.Close()
	wg.Wait()

	m.Leave(client)

	client.logger.Info("connection closed", zap.Error(err))
}

// seatPreference parses the requested creator color. Anything unknown is
// treated as random.
func (m *Manager) seatPreference(raw string) SeatPreference {
	if raw == "" {
		return PreferRandom
	}

	if err := util.Validate.Var(raw, "seatpref"); err != nil {
		m.logger.Warn("unknown seat preference, using random", zap.String("preferred_color", raw))
		return PreferRandom
	}

	return SeatPreference(raw)
}

// admit registers a new connection unless the manager is shutting down.
func (m *Manager) admit() bool {
	m.Lock()
	defer m.Unlock()

	if m.closing.Load() {
		return false
	}

	m.conns.Add(1)
	return true
}

// Shutdown refuses new connections, closes every live one and waits until
// all of them have left their rooms, so each room's removal has been
// handed to the notifier when it returns.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Lock()
	m.closing.Store(true)
	rooms := lo.Values(m.rooms)
	m.Unlock()

	for _, room := range rooms {
		for _, c := range room.connections() {
			c.handleError(ErrServerShutdown)
		}
	}

	done := make(chan struct{})
	go func() {
		m.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all connections closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) goAway(conn *websocket.Conn) {
	defer conn.Close()

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
}

// reject reports invalid handshake parameters and closes the connection.
func (m *Manager) reject(conn *websocket.Conn, details []string) {
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := conn.WriteJSON(PayloadRejection{Error: "invalid connection parameters", Details: details}); err != nil {
		m.logger.Debug("cannot send rejection", zap.Error(err))
		return
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid connection parameters"))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || lo.Contains(allowed, "*") {
			return true
		}
		return lo.Contains(allowed, origin)
	}
}

func cryptoCoin() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return time.Now().UnixNano()%2 == 0
	}
	return n.Int64() == 1
}
