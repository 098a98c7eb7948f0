package core

import "github.com/dkeye/StudyRoom/internal/domain"

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
	ChatEnabled bool          `json:"chat_enabled"`
}

// RoomDirectory owns room lifecycle: create on first join, drop once empty.
// It exposes no member mutation; that goes through Room.Apply.
type RoomDirectory interface {
	GetOrCreate(id domain.RoomID) *Room
	Get(id domain.RoomID) (*Room, bool)
	RemoveIfEmpty(id domain.RoomID) bool
	List() []RoomInfo
	Len() int
}
