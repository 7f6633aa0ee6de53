package services

import "errors"

// Sentinel errors returned by the huddle lifecycle and query services.
// Handlers map these onto HTTP status codes; everything else surfaces
// as a generic failure.
var (
	// ErrUnauthorized means the caller has no member record in the
	// target workspace.
	ErrUnauthorized = errors.New("not a member of this workspace")

	// ErrNoAccess means the caller is a workspace member but not a
	// member of the target channel or a party to the conversation.
	ErrNoAccess = errors.New("no access to this channel or conversation")

	// ErrNotFound means the target session/source does not exist or is
	// no longer active.
	ErrNotFound = errors.New("not found")

	// ErrNotAParticipant means the caller has no participant record in
	// the session.
	ErrNotAParticipant = errors.New("not a participant of this huddle")

	// ErrNotActiveParticipant means the caller's participant record
	// exists but is not currently active.
	ErrNotActiveParticipant = errors.New("not an active participant of this huddle")

	// ErrConflict means a lifecycle mutation kept losing the
	// compare-and-swap race and gave up after bounded retries.
	ErrConflict = errors.New("concurrent update conflict, retry")
)
