package domain

import "encoding/json"

// Client to server events.
const (
	EventJoinQuiz    = "join_quiz"
	EventLeaveQuiz   = "leave_quiz"
	EventUserOnline  = "user_online"
	EventUpdateScore = "update_score"
)

// Server to client events.
const (
	EventConnected         = "connected"
	EventJoined            = "joined"
	EventLeft              = "left"
	EventUpdateResult      = "update_result"
	EventUpdateLeaderboard = "update_leaderboard"
	EventError             = "error"
	EventNotification      = "notification"
)

// RoomEvent is a broadcast addressed to every connection in a room, on every gateway instance.
type RoomEvent struct {
	Room    string          `json:"room"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Origin  string          `json:"origin,omitempty"`
}
