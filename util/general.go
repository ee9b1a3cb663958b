package util

import "fmt"

// Fields of the room:<id> hash kept in the room directory.
const (
	RoomIDKey          = "id"
	RoomWhiteKey       = "white"
	RoomBlackKey       = "black"
	RoomStartedKey     = "started"
	RoomStatusKey      = "status"
	RoomConnectionsKey = "connections"
)

type GameStartedEnum int

const (
	GameStartedFalse GameStartedEnum = iota // 0
	GameStartedTrue                         // 1
)

func (n GameStartedEnum) String() string {
	return []string{"no", "yes"}[n]
}

func (n GameStartedEnum) EnumIndex() int {
	return int(n)
}

// StartedEnum converts a started flag to its stored representation.
func StartedEnum(started bool) GameStartedEnum {
	if started {
		return GameStartedTrue
	}
	return GameStartedFalse
}

func GetRoomKey(room string) string {
	return fmt.Sprintf("room:%v", room)
}
