package core

import "errors"

var (
	// ErrPermissionDenied is returned for host-only actions by a non-host and for
	// chat while muted. Callers drop these silently.
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotMember        = errors.New("not a member")
	ErrAlreadyMember    = errors.New("already a member")
	ErrNotJoined        = errors.New("connection is not in a room")
	ErrUnknownTarget    = errors.New("unknown target")
	ErrRoomRetired      = errors.New("room retired")
	ErrInvariant        = errors.New("room invariant violated")
)
