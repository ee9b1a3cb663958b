package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxMessageSize = 4096
	writeWait      = 10 * time.Second
	egressSize     = 256
)

// Client is one websocket connection attached to a room. The read and
// write loops run on their own goroutines; any failure in either, a missed
// heartbeat or an overflowing egress queue is reported once on err and the
// connection is then torn down by ServeWS.
type Client struct {
	ID       string
	PlayerID string
	RoomID   string

	// role and room are guarded by the room's lock.
	role Role
	room *Room

	connection  *websocket.Conn
	manager     *Manager
	egress      chan Event
	err         chan error
	missedPongs atomic.Int32
	logger      *zap.Logger
}

func NewClient(conn *websocket.Conn, manager *Manager, roomID, playerID string) *Client {
	id := uuid.NewString()

	return &Client{
		ID:         id,
		PlayerID:   playerID,
		RoomID:     roomID,
		connection: conn,
		manager:    manager,
		egress:     make(chan Event, egressSize),
		err:        make(chan error, 1),
		logger: manager.logger.With(
			zap.String("room_id", roomID),
			zap.String("player_id", playerID),
			zap.String("socket_id", id),
		),
	}
}

// Reads incoming messages from the clients websocket connection
func (c *Client) readMessages(ctx context.Context) {
	c.connection.SetReadLimit(maxMessageSize)

	if err := c.connection.SetReadDeadline(time.Now().Add(c.manager.pongWait())); err != nil {
		c.handleError(err)
		return
	}

	c.connection.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, payload, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected closure of socket connection", zap.Error(err))
			}
			c.handleError(err)
			return
		}

		var evt Event

		if err := json.Unmarshal(payload, &evt); err != nil {
			c.logger.Warn("malformed message", zap.Error(err))

			errEvent, err := NewErrorEvent("cannot unmarshal json payload")
			if err != nil {
				c.logger.Error("error creating error event", zap.Error(err))
				continue
			}
			c.PushToEgress(errEvent)
			continue
		}

		if err := c.manager.routeEvent(ctx, evt, c); err != nil {
			c.logger.Warn("event rejected", zap.String("type", evt.Type), zap.Error(err))
		}
	}
}

// writes messages pushed to the client's egress channel and probes the
// peer with a ping every ping interval
func (c *Client) writeMessages(ctx context.Context) {
	ticker := time.NewTicker(c.manager.pingInterval)

	defer func() {
		ticker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.egress:
			data, err := json.Marshal(evt)
			if err != nil {
				c.logger.Error("cannot marshal event", zap.String("type", evt.Type), zap.Error(err))
				continue
			}

			if err := c.write(websocket.TextMessage, data); err != nil {
				c.handleError(err)
				return
			}
		case <-ticker.C:
			if int(c.missedPongs.Load()) >= c.manager.maxMissedPongs {
				c.logger.Warn("terminating unresponsive client", zap.Int32("missed_pongs", c.missedPongs.Load()))
				c.handleError(ErrHeartbeatTimeout)
				return
			}

			c.missedPongs.Add(1)

			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.handleError(err)
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.connection.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.connection.WriteMessage(messageType, data)
}

// Resets the heartbeat counter and read deadline when a pong arrives.
func (c *Client) pongHandler(string) error {
	c.missedPongs.Store(0)
	return c.connection.SetReadDeadline(time.Now().Add(c.manager.pongWait()))
}

// Reports the first error that should close the connection. Later errors
// are dropped; the connection is already on its way out.
func (c *Client) handleError(e error) {
	select {
	case c.err <- e:
	default:
	}
}

// Returns the error channel
func (c *Client) Err() <-chan error {
	return c.err
}

// Creates an event and pushes to client's egress
func (c *Client) PushEventToEgress(evtType string, payload any) error {
	evt, err := NewEvent(evtType, payload)
	if err != nil {
		return err
	}
	c.PushToEgress(evt)
	return nil
}

// Queues an event for delivery without blocking. A client that cannot keep
// up is disconnected instead of stalling its room.
func (c *Client) PushToEgress(evt Event) {
	select {
	case c.egress <- evt:
	default:
		c.logger.Warn("egress full, dropping client", zap.String("type", evt.Type))
		c.handleError(ErrEgressFull)
	}
}

// Role is the connection's current role in its room.
func (c *Client) Role() Role {
	if c.room == nil {
		return c.role
	}
	return c.room.RoleOf(c)
}
