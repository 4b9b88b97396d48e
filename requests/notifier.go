package requests

import (
	"time"
)

// Card - Content of a moderation message. The manager decides what a
// request message says; delivery belongs to the Notifier.
type Card struct {
	Title       string
	Description string
	Color       int
	AuthorLine  string
	AuthorIcon  string
	Footer      string
	// Status - Value of the single "Status" field
	Status string
	// Timestamp - Expiry time while pending, settle time once terminal.
	// Zero means no timestamp.
	Timestamp time.Time
	// Reactions - Approve/deny affordances attached when true, cleared
	// when false
	Reactions bool
}

// Notifier - Outbound platform calls the manager depends on. All calls
// are potentially slow network operations and are never made while a
// guild document lock is held.
type Notifier interface {
	// PostRequest - Post a new moderation message, returns its ID
	PostRequest(channelID string, card Card) (messageID string, err error)
	// UpdateRequest - Replace the moderation message content
	UpdateRequest(channelID, messageID string, card Card) error
	// SendDM - Plain text direct message to a user
	SendDM(userID, content string) error
	// GrantRole - Give a guild role to a member
	GrantRole(guildID, userID, roleID string) error
}
