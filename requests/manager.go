// Package requests owns the restricted-role request lifecycle: creation,
// cancellation, moderator approval and denial via reactions, and the
// time-based expiry sweep.
package requests

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cufee/botto-requests/config"
	"github.com/cufee/botto-requests/database"
)

var (
	// ErrRequestsDisabled - Guild has no request channel configured
	ErrRequestsDisabled = errors.New("requests are disabled for this guild")
	// ErrAlreadyPending - A request for this (user, role) is still pending
	ErrAlreadyPending = errors.New("a request for this role is already pending")
	// ErrRateLimited - Too many recent requests by this user
	ErrRateLimited = errors.New("too many recent requests")
	// ErrNoPendingRequest - Nothing to cancel for this (user, role)
	ErrNoPendingRequest = errors.New("no pending request for this role")
	// ErrAlreadySet - Guild option already has the requested value
	ErrAlreadySet = errors.New("option already has that value")
)

// errNotPending - Internal marker: transition target is missing or
// already settled, callers treat it as a no-op
var errNotPending = errors.New("request is not pending")

// Requester - Display identity of the requesting member, resolved by
// the command layer
type Requester struct {
	ID        string
	Tag       string
	AvatarURL string
}

// RequestOptions - Per-guild request settings as shown to moderators
type RequestOptions struct {
	Channel          string
	HideJoins        bool
	RateLimitEnabled bool
}

// Options - Manager tuning
type Options struct {
	// TTL - Pending request lifetime, 24h by default
	TTL time.Duration
	// RateLimitMax - Score threshold, requests fail once exceeded
	RateLimitMax int
	// RetainExpired - Keep a status marker for expired requests instead
	// of deleting the record
	RetainExpired bool
}

// Manager - The request state machine. All persisted mutations happen
// under the store's per-guild lock; platform calls happen after the
// lock is released and are best-effort.
type Manager struct {
	store  *database.Store
	notify Notifier

	ttl           time.Duration
	rateLimitMax  int
	retainExpired bool

	now func() time.Time
}

func NewManager(store *database.Store, notify Notifier, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.RateLimitMax <= 0 {
		opts.RateLimitMax = 21
	}
	return &Manager{
		store:         store,
		notify:        notify,
		ttl:           opts.TTL,
		rateLimitMax:  opts.RateLimitMax,
		retainExpired: opts.RetainExpired,
		now:           time.Now,
	}
}

// CreateRequest - Submit a restricted role request for a user. Posts
// the moderation message, then stores the pending record keyed by the
// posted message ID.
func (m *Manager) CreateRequest(guildID string, user Requester, roleID string) error {
	gc, err := m.store.Guild(guildID)
	if err != nil {
		return err
	}
	if gc.RequestChannel == "" {
		return ErrRequestsDisabled
	}
	if pendingFor(gc.Requests, user.ID, roleID) != "" {
		return ErrAlreadyPending
	}
	now := m.now()
	if gc.RateLimitEnabled {
		if rateLimitScore(gc.Requests, user.ID, now.Add(-rateLimitWindow)) > m.rateLimitMax {
			return ErrRateLimited
		}
	}

	channel := gc.RequestChannel
	messageID, err := m.notify.PostRequest(channel, m.pendingCard(user, roleID, now))
	if err != nil {
		return fmt.Errorf("post request message: %w", err)
	}

	_, err = m.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		// An identical request may have won the race between validation
		// and the message post
		if pendingFor(gc.Requests, user.ID, roleID) != "" {
			return ErrAlreadyPending
		}
		gc.Requests[messageID] = database.Request{
			User:      user.ID,
			Role:      roleID,
			Channel:   channel,
			Status:    database.StatusPending,
			CreatedAt: now,
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyPending) {
		// The posted message has no record behind it, settle it visually
		orphan := database.Request{User: user.ID, Role: roleID, Channel: channel}
		if e := m.notify.UpdateRequest(channel, messageID, m.outcomeCard(orphan, OutcomeCancelled, "")); e != nil {
			log.Printf("[Requests] failed to settle orphaned message %v: %v", messageID, e)
		}
		return ErrAlreadyPending
	}
	return err
}

// CancelRequest - Cancel the user's most recent request for a role.
// No role change and no DM on this path.
func (m *Manager) CancelRequest(guildID, userID, roleID string) error {
	gc, err := m.store.Guild(guildID)
	if err != nil {
		return err
	}
	messageID := latestFor(gc.Requests, userID, roleID)
	if messageID == "" || gc.Requests[messageID].Status.Terminal() {
		return ErrNoPendingRequest
	}
	err = m.finishRequest(guildID, messageID, OutcomeCancelled, "")
	if errors.Is(err, errNotPending) {
		return ErrNoPendingRequest
	}
	return err
}

// HandleReaction - React to a reaction-add event on a moderation
// message. Unknown messages, settled requests, bot reactions and
// unrelated emojis are all no-ops.
func (m *Manager) HandleReaction(guildID, messageID, emoji, userID string, isBot bool) error {
	if isBot || userID == "" {
		return nil
	}

	var outcome Outcome
	switch emoji {
	case config.ApproveReaction:
		outcome = OutcomeApproved
	case config.DenyReaction:
		outcome = OutcomeDenied
	default:
		return nil
	}

	err := m.finishRequest(guildID, messageID, outcome, fmt.Sprintf("<@%v>", userID))
	if errors.Is(err, errNotPending) {
		return nil
	}
	return err
}

// ExpireStale - Settle every pending request older than the TTL.
// Invoked by the expiry scheduler.
func (m *Manager) ExpireStale(now time.Time) error {
	guilds, err := m.store.Guilds()
	if err != nil {
		return err
	}
	for _, gc := range guilds {
		for messageID, req := range gc.Requests {
			if req.Status != database.StatusPending {
				continue
			}
			if req.CreatedAt.Add(m.ttl).After(now) {
				continue
			}
			err := m.finishRequest(gc.ID, messageID, OutcomeExpired, "")
			if err != nil && !errors.Is(err, errNotPending) {
				log.Printf("[Requests] failed to expire request %v: %v", messageID, err)
				continue
			}
			log.Printf("[Requests] expired request %v", messageID)
		}
	}
	return nil
}

// finishRequest - Shared terminal transition. Persists the new status
// (or deletes the record for expired requests) under the guild lock,
// then performs best-effort platform work: role grant on approval,
// moderation message edit, requester DM.
func (m *Manager) finishRequest(guildID, messageID string, outcome Outcome, moderator string) error {
	var req database.Request
	_, err := m.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		r, ok := gc.Requests[messageID]
		if !ok || r.Status.Terminal() {
			return errNotPending
		}
		req = r
		if outcome == OutcomeExpired && !m.retainExpired {
			delete(gc.Requests, messageID)
			return nil
		}
		r.Status = outcome.Status()
		gc.Requests[messageID] = r
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotPending) {
			return err
		}
		return fmt.Errorf("persist %v transition: %w", outcome.Status(), err)
	}

	if outcome == OutcomeApproved {
		// The member may have left or the role may be gone, a failed
		// grant does not undo the settled request
		if err := m.notify.GrantRole(guildID, req.User, req.Role); err != nil {
			log.Printf("[Requests] failed to grant role %v to %v: %v", req.Role, req.User, err)
		}
	}

	if err := m.notify.UpdateRequest(req.Channel, messageID, m.outcomeCard(req, outcome, moderator)); err != nil {
		log.Printf("[Requests] failed to edit request message %v: %v", messageID, err)
	}

	if dm := outcome.present(moderator).dm; dm != "" {
		text := fmt.Sprintf("Your request for the <@&%v> role has %v", req.Role, dm)
		if err := m.notify.SendDM(req.User, text); err != nil {
			log.Printf("[Requests] failed to DM %v: %v", req.User, err)
		}
	}
	return nil
}

func (m *Manager) pendingCard(user Requester, roleID string, now time.Time) Card {
	return Card{
		Title:       "Restricted Role Request",
		Description: fmt.Sprintf("<@%v> requested the <@&%v> role.", user.ID, roleID),
		Color:       colorPending,
		AuthorLine:  fmt.Sprintf("%v (%v)", user.Tag, user.ID),
		AuthorIcon:  user.AvatarURL,
		Footer:      "Request expires",
		Status:      "Pending. React to approve or deny the request.",
		Timestamp:   now.Add(m.ttl),
		Reactions:   true,
	}
}

func (m *Manager) outcomeCard(req database.Request, outcome Outcome, moderator string) Card {
	l := outcome.present(moderator)
	return Card{
		Title:       "Restricted Role Request",
		Description: fmt.Sprintf("<@%v> requested the <@&%v> role.", req.User, req.Role),
		Color:       l.color,
		Footer:      l.footer,
		Status:      l.status,
		Timestamp:   m.now(),
	}
}

// Options - Current request settings for a guild
func (m *Manager) Options(guildID string) (RequestOptions, error) {
	gc, err := m.store.Guild(guildID)
	if err != nil {
		return RequestOptions{}, err
	}
	return RequestOptions{
		Channel:          gc.RequestChannel,
		HideJoins:        gc.HideJoins,
		RateLimitEnabled: gc.RateLimitEnabled,
	}, nil
}

// SetChannel - Set the channel moderation messages are posted to
func (m *Manager) SetChannel(guildID, channelID string) error {
	_, err := m.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		if gc.RequestChannel == channelID {
			return ErrAlreadySet
		}
		gc.RequestChannel = channelID
		return nil
	})
	return err
}

// DisableRequests - Clear the request channel, disabling restricted
// role requests for the guild
func (m *Manager) DisableRequests(guildID string) error {
	_, err := m.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		if gc.RequestChannel == "" {
			return ErrAlreadySet
		}
		gc.RequestChannel = ""
		return nil
	})
	return err
}

// SetHideJoins - Toggle deletion of join commands for restricted roles
func (m *Manager) SetHideJoins(guildID string, enabled bool) error {
	_, err := m.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		if gc.HideJoins == enabled {
			return ErrAlreadySet
		}
		gc.HideJoins = enabled
		return nil
	})
	return err
}

// SetRateLimit - Toggle the request rate limit
func (m *Manager) SetRateLimit(guildID string, enabled bool) error {
	_, err := m.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		if gc.RateLimitEnabled == enabled {
			return ErrAlreadySet
		}
		gc.RateLimitEnabled = enabled
		return nil
	})
	return err
}

// PurgeGuild - Drop all guild state, invoked when the bot is removed
// from a guild
func (m *Manager) PurgeGuild(guildID string) error {
	return m.store.DeleteGuild(guildID)
}

// pendingFor - Message ID of a pending request for (user, role), or ""
func pendingFor(reqs map[string]database.Request, userID, roleID string) string {
	for id, r := range reqs {
		if r.User == userID && r.Role == roleID && r.Status == database.StatusPending {
			return id
		}
	}
	return ""
}

// latestFor - Message ID of the newest request for (user, role), or ""
func latestFor(reqs map[string]database.Request, userID, roleID string) string {
	var id string
	var newest time.Time
	for mid, r := range reqs {
		if r.User != userID || r.Role != roleID {
			continue
		}
		if id == "" || r.CreatedAt.After(newest) {
			id = mid
			newest = r.CreatedAt
		}
	}
	return id
}
