// Package types contains common read shapes shared by the API and service.
package types

// Entry represents a scoreboard row.
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"player_id"`
	Name     string  `json:"name,omitempty"`
	Score    float64 `json:"score"`
}

// RoomInfo is returned when a room is created.
type RoomInfo struct {
	RoomID string `json:"room_id"`
	HostID string `json:"host_id"`
}
