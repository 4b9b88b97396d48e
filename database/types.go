package database

import (
	"time"
)

// RoleKind - How a requestable role is joined
type RoleKind string

const (
	// RoleOpen - Joined immediately via command
	RoleOpen RoleKind = "open"
	// RoleRestricted - Requires moderator approval via a request
	RoleRestricted RoleKind = "restricted"
)

// RequestStatus - Lifecycle state of a role request
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusDenied    RequestStatus = "denied"
	StatusCancelled RequestStatus = "cancelled"
	StatusExpired   RequestStatus = "expired"
)

// Terminal - Everything but pending is terminal, no transitions out
func (s RequestStatus) Terminal() bool {
	return s != StatusPending
}

// RoleEntry - Requestable role record inside a guild document
type RoleEntry struct {
	Kind RoleKind
}

// Request - Role request record, keyed by its moderation message ID
type Request struct {
	User      string
	Role      string
	Channel   string
	Status    RequestStatus
	CreatedAt time.Time
}

// GuildConfig - DB document for one guild
type GuildConfig struct {
	ID string
	// Channel requests are posted to, empty disables requests
	RequestChannel   string
	HideJoins        bool
	RateLimitEnabled bool
	// map[roleID]RoleEntry
	Roles map[string]RoleEntry
	// map[messageID]Request
	Requests map[string]Request
}

func newGuildConfig(id string) GuildConfig {
	return GuildConfig{
		ID:       id,
		Roles:    make(map[string]RoleEntry),
		Requests: make(map[string]Request),
	}
}
