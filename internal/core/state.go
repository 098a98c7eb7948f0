package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/dkeye/StudyRoom/internal/domain"
)

// State is the mutable part of a room. It has no locking of its own;
// Room serializes every Transition applied to it.
type State struct {
	ID           domain.RoomID
	Members      []domain.ConnID // insertion order, host succession depends on it
	Host         domain.ConnID
	ChatEnabled  bool
	DisplayNames map[domain.ConnID]string
	Statuses     map[domain.ConnID]string
}

func newState(id domain.RoomID) State {
	return State{
		ID:           id,
		ChatEnabled:  true,
		DisplayNames: make(map[domain.ConnID]string),
		Statuses:     make(map[domain.ConnID]string),
	}
}

// Transition mutates a room state and returns the effects to deliver.
type Transition func(s *State) ([]Effect, error)

func (s *State) IsMember(id domain.ConnID) bool { return slices.Contains(s.Members, id) }

// Snapshot returns a deep copy safe to hand to other goroutines.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		ID:           s.ID,
		Members:      slices.Clone(s.Members),
		Host:         s.Host,
		ChatEnabled:  s.ChatEnabled,
		DisplayNames: maps.Clone(s.DisplayNames),
		Statuses:     maps.Clone(s.Statuses),
	}
}

// Validate checks membership invariants: no duplicates, host is a member iff
// there are members, and names/statuses have exactly the member key set.
func (s *State) Validate() error {
	seen := make(map[domain.ConnID]struct{}, len(s.Members))
	for _, id := range s.Members {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate member %s", ErrInvariant, id)
		}
		seen[id] = struct{}{}
	}
	if len(s.Members) == 0 {
		if s.Host != "" {
			return fmt.Errorf("%w: host %s in empty room", ErrInvariant, s.Host)
		}
	} else if _, ok := seen[s.Host]; !ok {
		return fmt.Errorf("%w: host %q is not a member", ErrInvariant, s.Host)
	}
	if len(s.DisplayNames) != len(seen) || len(s.Statuses) != len(seen) {
		return fmt.Errorf("%w: names/statuses out of sync with members", ErrInvariant)
	}
	for id := range seen {
		if _, ok := s.DisplayNames[id]; !ok {
			return fmt.Errorf("%w: no display name for %s", ErrInvariant, id)
		}
		if _, ok := s.Statuses[id]; !ok {
			return fmt.Errorf("%w: no status for %s", ErrInvariant, id)
		}
	}
	return nil
}

func (s *State) snapshotEffect() Effect {
	snap := s.Snapshot()
	return Effect{
		To:  slices.Clone(s.Members),
		Msg: Message{Type: TypeRoomSnapshot, Room: &snap},
	}
}

func (s *State) others(id domain.ConnID) []domain.ConnID {
	out := make([]domain.ConnID, 0, len(s.Members))
	for _, m := range s.Members {
		if m != id {
			out = append(out, m)
		}
	}
	return out
}

// Join appends id to the room. The first member becomes host.
// Existing members get a peer-arrived notice so they can start negotiation.
func Join(id domain.ConnID, displayName, idleStatus string) Transition {
	return func(s *State) ([]Effect, error) {
		if s.IsMember(id) {
			return nil, ErrAlreadyMember
		}
		s.Members = append(s.Members, id)
		if len(s.Members) == 1 {
			s.Host = id
		}
		s.DisplayNames[id] = displayName
		s.Statuses[id] = idleStatus

		effects := []Effect{s.snapshotEffect()}
		if others := s.others(id); len(others) > 0 {
			effects = append(effects, Effect{
				To:  others,
				Msg: Message{Type: TypePeerArrived, Peer: id},
			})
		}
		return effects, nil
	}
}

// Leave removes id and runs host succession when the host departs: the
// longest-standing remaining member takes over. Leaving the last member
// produces no effects.
func Leave(id domain.ConnID) Transition {
	return func(s *State) ([]Effect, error) {
		idx := slices.Index(s.Members, id)
		if idx < 0 {
			return nil, ErrNotMember
		}
		s.Members = slices.Delete(s.Members, idx, idx+1)
		delete(s.DisplayNames, id)
		delete(s.Statuses, id)

		if s.Host == id {
			s.Host = ""
			if len(s.Members) > 0 {
				s.Host = s.Members[0]
			}
		}
		if len(s.Members) == 0 {
			return nil, nil
		}
		return []Effect{
			s.snapshotEffect(),
			{To: slices.Clone(s.Members), Msg: Message{Type: TypePeerDeparted, Peer: id}},
		}, nil
	}
}

// ToggleChat sets the room chat policy. Host only.
func ToggleChat(from domain.ConnID, enabled bool) Transition {
	return func(s *State) ([]Effect, error) {
		if from != s.Host {
			return nil, ErrPermissionDenied
		}
		s.ChatEnabled = enabled
		return []Effect{s.snapshotEffect()}, nil
	}
}

// TransferHost hands host authority to target. Host only; target must be a member.
func TransferHost(from, target domain.ConnID) Transition {
	return func(s *State) ([]Effect, error) {
		if from != s.Host {
			return nil, ErrPermissionDenied
		}
		if !s.IsMember(target) {
			return nil, ErrNotMember
		}
		s.Host = target
		return []Effect{s.snapshotEffect()}, nil
	}
}

// SyncStatus overwrites the sender's status string. Last write wins.
func SyncStatus(from domain.ConnID, status string) Transition {
	return func(s *State) ([]Effect, error) {
		if !s.IsMember(from) {
			return nil, ErrNotMember
		}
		s.Statuses[from] = status
		return []Effect{s.snapshotEffect()}, nil
	}
}

// Rename replaces the sender's display name. The name must already be normalized.
func Rename(from domain.ConnID, name string) Transition {
	return func(s *State) ([]Effect, error) {
		if !s.IsMember(from) {
			return nil, ErrNotMember
		}
		s.DisplayNames[from] = name
		return []Effect{s.snapshotEffect()}, nil
	}
}

// Chat forwards payload to every other member when chat is enabled or the
// sender is host. The sender never gets its own message back.
func Chat(from domain.ConnID, payload json.RawMessage) Transition {
	return func(s *State) ([]Effect, error) {
		if !s.IsMember(from) {
			return nil, ErrNotMember
		}
		if !s.ChatEnabled && from != s.Host {
			return nil, ErrPermissionDenied
		}
		others := s.others(from)
		if len(others) == 0 {
			return nil, nil
		}
		return []Effect{{
			To:  others,
			Msg: Message{Type: TypeChatMessage, From: from, Payload: payload},
		}}, nil
	}
}
