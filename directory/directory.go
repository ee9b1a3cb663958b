// Package directory mirrors room occupancy into Redis so that other
// processes, and the HTTP room check, can see which rooms are live.
// Only seat and status metadata is stored, never positions or move logs.
package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/judgegodwins/chess-relay/util"
	"github.com/redis/go-redis/v9"
)

// Entry is the occupancy snapshot of one room.
type Entry struct {
	ID          string `json:"id"`
	White       string `json:"white"`
	Black       string `json:"black"`
	Started     bool   `json:"started"`
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// Full reports whether both seats are taken.
func (e Entry) Full() bool {
	return e.White != "" && e.Black != ""
}

type Store interface {
	Save(ctx context.Context, e Entry) error
	Delete(ctx context.Context, roomID string) error
	Get(ctx context.Context, roomID string) (Entry, bool, error)
}

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, e Entry) error {
	roomKey := util.GetRoomKey(e.ID)

	data := map[string]interface{}{
		util.RoomIDKey:          e.ID,
		util.RoomWhiteKey:       e.White,
		util.RoomBlackKey:       e.Black,
		util.RoomStartedKey:     util.StartedEnum(e.Started).String(),
		util.RoomStatusKey:      e.Status,
		util.RoomConnectionsKey: e.Connections,
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, roomKey, data)
	pipe.Expire(ctx, roomKey, s.ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, util.GetRoomKey(roomID)).Err()
}

func (s *RedisStore) Get(ctx context.Context, roomID string) (Entry, bool, error) {
	room, err := s.rdb.HGetAll(ctx, util.GetRoomKey(roomID)).Result()
	if err != nil {
		return Entry{}, false, err
	}

	if len(room) == 0 {
		return Entry{}, false, nil
	}

	connections, _ := strconv.Atoi(room[util.RoomConnectionsKey])

	return Entry{
		ID:          room[util.RoomIDKey],
		White:       room[util.RoomWhiteKey],
		Black:       room[util.RoomBlackKey],
		Started:     room[util.RoomStartedKey] == util.GameStartedTrue.String(),
		Status:      room[util.RoomStatusKey],
		Connections: connections,
	}, true, nil
}
