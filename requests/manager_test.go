package requests

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cufee/botto-requests/config"
	"github.com/cufee/botto-requests/database"
)

const (
	guildID = "100"
	userID  = "42"
	roleID  = "7"
	chanID  = "555"
	modID   = "900"
)

var testNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

type postCall struct {
	channel string
	card    Card
	id      string
}

type updateCall struct {
	channel   string
	messageID string
	card      Card
}

type grantCall struct {
	guild, user, role string
}

type dmCall struct {
	user, content string
}

// fakeNotifier records every outbound call and hands out sequential
// message IDs
type fakeNotifier struct {
	mu      sync.Mutex
	nextID  int
	posts   []postCall
	updates []updateCall
	grants  []grantCall
	dms     []dmCall

	postErr error
}

func (f *fakeNotifier) PostRequest(channelID string, card Card) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.posts = append(f.posts, postCall{channel: channelID, card: card, id: id})
	return id, nil
}

func (f *fakeNotifier) UpdateRequest(channelID, messageID string, card Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{channel: channelID, messageID: messageID, card: card})
	return nil
}

func (f *fakeNotifier) SendDM(userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, dmCall{user: userID, content: content})
	return nil
}

func (f *fakeNotifier) GrantRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants = append(f.grants, grantCall{guild: guildID, user: userID, role: roleID})
	return nil
}

func testManager(t *testing.T, opts Options) (*Manager, *fakeNotifier, *database.Store) {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	notify := &fakeNotifier{}
	m := NewManager(store, notify, opts)
	m.now = func() time.Time { return testNow }
	return m, notify, store
}

func enableRequests(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.SetChannel(guildID, chanID); err != nil {
		t.Fatalf("SetChannel() error = %v", err)
	}
}

func requester() Requester {
	return Requester{ID: userID, Tag: "someone#1234"}
}

func storedRequest(t *testing.T, store *database.Store, messageID string) (database.Request, bool) {
	t.Helper()
	gc, err := store.Guild(guildID)
	if err != nil {
		t.Fatalf("Guild() error = %v", err)
	}
	req, ok := gc.Requests[messageID]
	return req, ok
}

func TestManager_CreateRequestDisabled(t *testing.T) {
	m, notify, _ := testManager(t, Options{})

	err := m.CreateRequest(guildID, requester(), roleID)
	if !errors.Is(err, ErrRequestsDisabled) {
		t.Fatalf("CreateRequest() error = %v, want %v", err, ErrRequestsDisabled)
	}
	if len(notify.posts) != 0 {
		t.Errorf("posts = %d, want 0 (no message for a disabled guild)", len(notify.posts))
	}
}

func TestManager_CreateRequest(t *testing.T) {
	m, notify, store := testManager(t, Options{})
	enableRequests(t, m)

	if err := m.CreateRequest(guildID, requester(), roleID); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	if len(notify.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(notify.posts))
	}
	post := notify.posts[0]
	if post.channel != chanID {
		t.Errorf("post.channel = %q, want %q", post.channel, chanID)
	}
	if post.card.Title != "Restricted Role Request" {
		t.Errorf("card.Title = %q", post.card.Title)
	}
	if post.card.Footer != "Request expires" {
		t.Errorf("card.Footer = %q, want %q", post.card.Footer, "Request expires")
	}
	if !post.card.Reactions {
		t.Error("card.Reactions = false, want approve/deny affordances")
	}
	if want := testNow.Add(24 * time.Hour); !post.card.Timestamp.Equal(want) {
		t.Errorf("card.Timestamp = %v, want %v", post.card.Timestamp, want)
	}

	req, ok := storedRequest(t, store, post.id)
	if !ok {
		t.Fatalf("request not stored under message ID %q", post.id)
	}
	if req.Status != database.StatusPending {
		t.Errorf("req.Status = %q, want %q", req.Status, database.StatusPending)
	}
	if req.User != userID || req.Role != roleID || req.Channel != chanID {
		t.Errorf("stored request = %+v", req)
	}
	if !req.CreatedAt.Equal(testNow) {
		t.Errorf("req.CreatedAt = %v, want %v", req.CreatedAt, testNow)
	}
}

func TestManager_CreateRequestAlreadyPending(t *testing.T) {
	m, notify, _ := testManager(t, Options{})
	enableRequests(t, m)

	if err := m.CreateRequest(guildID, requester(), roleID); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	err := m.CreateRequest(guildID, requester(), roleID)
	if !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("CreateRequest() error = %v, want %v", err, ErrAlreadyPending)
	}
	if len(notify.posts) != 1 {
		t.Errorf("posts = %d, want 1 (duplicate must not post)", len(notify.posts))
	}

	// A pending request for a different role is fine
	if err := m.CreateRequest(guildID, requester(), "8"); err != nil {
		t.Errorf("CreateRequest() for another role error = %v", err)
	}
}

func seedRequest(t *testing.T, store *database.Store, messageID string, req database.Request) {
	t.Helper()
	_, err := store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		gc.Requests[messageID] = req
		return nil
	})
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}
}

func TestManager_CreateRequestRateLimit(t *testing.T) {
	denied := func(created time.Time) database.Request {
		return database.Request{User: userID, Role: "1", Channel: chanID, Status: database.StatusDenied, CreatedAt: created}
	}
	cancelled := func(created time.Time) database.Request {
		return database.Request{User: userID, Role: "2", Channel: chanID, Status: database.StatusCancelled, CreatedAt: created}
	}

	tests := []struct {
		name    string
		enabled bool
		seed    []database.Request
		wantErr error
	}{
		{
			// Three denied requests score exactly 21, the boundary is allowed
			name:    "boundary score allowed",
			enabled: true,
			seed:    []database.Request{denied(testNow), denied(testNow), denied(testNow)},
		},
		{
			name:    "over boundary rejected",
			enabled: true,
			seed:    []database.Request{denied(testNow), denied(testNow), denied(testNow), cancelled(testNow)},
			wantErr: ErrRateLimited,
		},
		{
			// Requests older than the window score nothing
			name:    "stale requests ignored",
			enabled: true,
			seed: []database.Request{
				denied(testNow), denied(testNow), denied(testNow),
				cancelled(testNow.Add(-25 * time.Hour)),
			},
		},
		{
			name:    "limit disabled",
			enabled: false,
			seed: []database.Request{
				denied(testNow), denied(testNow), denied(testNow), cancelled(testNow),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, store := testManager(t, Options{})
			enableRequests(t, m)
			if tt.enabled {
				if err := m.SetRateLimit(guildID, true); err != nil {
					t.Fatalf("SetRateLimit() error = %v", err)
				}
			}
			for i, req := range tt.seed {
				seedRequest(t, store, fmt.Sprintf("seed-%d", i), req)
			}

			err := m.CreateRequest(guildID, requester(), roleID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestManager_HandleReactionApprove(t *testing.T) {
	m, notify, store := testManager(t, Options{})
	enableRequests(t, m)

	if err := m.CreateRequest(guildID, requester(), roleID); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	messageID := notify.posts[0].id

	if err := m.HandleReaction(guildID, messageID, config.ApproveReaction, modID, false); err != nil {
		t.Fatalf("HandleReaction() error = %v", err)
	}

	req, ok := storedRequest(t, store, messageID)
	if !ok {
		t.Fatal("request record gone after approval")
	}
	if req.Status != database.StatusApproved {
		t.Errorf("req.Status = %q, want %q", req.Status, database.StatusApproved)
	}

	if len(notify.grants) != 1 {
		t.Fatalf("grants = %d, want 1", len(notify.grants))
	}
	if g := notify.grants[0]; g != (grantCall{guild: guildID, user: userID, role: roleID}) {
		t.Errorf("grant = %+v", g)
	}

	if len(notify.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(notify.updates))
	}
	card := notify.updates[0].card
	if card.Footer != "Request approved" {
		t.Errorf("card.Footer = %q, want %q", card.Footer, "Request approved")
	}
	if !strings.Contains(card.Status, "<@"+modID+">") {
		t.Errorf("card.Status = %q, want moderator mention", card.Status)
	}
	if card.Reactions {
		t.Error("card.Reactions = true, want affordances cleared")
	}

	if len(notify.dms) != 1 || !strings.Contains(notify.dms[0].content, "been approved") {
		t.Errorf("dms = %+v, want one approval DM", notify.dms)
	}

	// A second reaction on the settled request is a no-op
	if err := m.HandleReaction(guildID, messageID, config.ApproveReaction, modID, false); err != nil {
		t.Fatalf("HandleReaction() again error = %v", err)
	}
	if len(notify.grants) != 1 || len(notify.updates) != 1 || len(notify.dms) != 1 {
		t.Errorf("second reaction caused side effects: grants=%d updates=%d dms=%d",
			len(notify.grants), len(notify.updates), len(notify.dms))
	}
}

func TestManager_HandleReactionDeny(t *testing.T) {
	m, notify, store := testManager(t, Options{})
	enableRequests(t, m)

	if err := m.CreateRequest(guildID, requester(), roleID); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	messageID := notify.posts[0].id

	if err := m.HandleReaction(guildID, messageID, config.DenyReaction, modID, false); err != nil {
		t.Fatalf("HandleReaction() error = %v", err)
	}

	req, _ := storedRequest(t, store, messageID)
	if req.Status != database.StatusDenied {
		t.Errorf("req.Status = %q, want %q", req.Status, database.StatusDenied)
	}
	if len(notify.grants) != 0 {
		t.Errorf("grants = %d, want 0 (no role on denial)", len(notify.grants))
	}
	if len(notify.updates) != 1 || notify.updates[0].card.Footer != "Request denied" {
		t.Errorf("updates = %+v, want one denial edit", notify.updates)
	}
	if len(notify.dms) != 1 || !strings.Contains(notify.dms[0].content, "been denied") {
		t.Errorf("dms = %+v, want one denial DM", notify.dms)
	}
}

func TestManager_HandleReactionIgnored(t *testing.T) {
	m, notify, store := testManager(t, Options{})
	enableRequests(t, m)

	if err := m.CreateRequest(guildID, requester(), roleID); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	messageID := notify.posts[0].id

	tests := []struct {
		name      string
		messageID string
		emoji     string
		isBot     bool
	}{
		{"bot reaction", messageID, config.ApproveReaction, true},
		{"unrelated emoji", messageID, "shrug:123", false},
		{"unknown message", "msg-999", config.ApproveReaction, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.HandleReaction(guildID, tt.messageID, tt.emoji, modID, tt.isBot); err != nil {
				t.Fatalf("HandleReaction() error = %v", err)
			}
		})
	}

	req, _ := storedRequest(t, store, messageID)
	if req.Status != database.StatusPending {
		t.Errorf("req.Status = %q, want still pending", req.Status)
	}
	if len(notify.grants) != 0 || len(notify.updates) != 0 || len(notify.dms) != 0 {
		t.Errorf("ignored reactions caused side effects: grants=%d updates=%d dms=%d",
			len(notify.grants), len(notify.updates), len(notify.dms))
	}
}

func TestManager_CancelRequest(t *testing.T) {
	m, notify, store := testManager(t, Options{})
	enableRequests(t, m)

	if err := m.CancelRequest(guildID, userID, roleID); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("CancelRequest() error = %v, want %v", err, ErrNoPendingRequest)
	}

	if err := m.CreateRequest(guildID, requester(), roleID); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	messageID := notify.posts[0].id

	if err := m.CancelRequest(guildID, userID, roleID); err != nil {
		t.Fatalf("CancelRequest() error = %v", err)
	}

	req, _ := storedRequest(t, store, messageID)
	if req.Status != database.StatusCancelled {
		t.Errorf("req.Status = %q, want %q", req.Status, database.StatusCancelled)
	}
	if len(notify.updates) != 1 || notify.updates[0].card.Footer != "Request cancelled" {
		t.Errorf("updates = %+v, want one cancellation edit", notify.updates)
	}
	if len(notify.dms) != 0 {
		t.Errorf("dms = %d, want 0 (no DM on cancel)", len(notify.dms))
	}
	if len(notify.grants) != 0 {
		t.Errorf("grants = %d, want 0", len(notify.grants))
	}

	// The cancelled request is terminal, a second cancel finds nothing
	if err := m.CancelRequest(guildID, userID, roleID); !errors.Is(err, ErrNoPendingRequest) {
		t.Errorf("CancelRequest() again error = %v, want %v", err, ErrNoPendingRequest)
	}
}

func TestManager_ExpireStale(t *testing.T) {
	m, notify, store := testManager(t, Options{})
	enableRequests(t, m)

	if err := m.CreateRequest(guildID, requester(), roleID); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	messageID := notify.posts[0].id

	// Younger than the TTL, untouched
	if err := m.ExpireStale(testNow.Add(24*time.Hour - time.Second)); err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	if req, ok := storedRequest(t, store, messageID); !ok || req.Status != database.StatusPending {
		t.Fatalf("request touched before expiry: ok=%v req=%+v", ok, req)
	}

	// Exactly TTL old, swept and hard-deleted
	if err := m.ExpireStale(testNow.Add(24 * time.Hour)); err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	if _, ok := storedRequest(t, store, messageID); ok {
		t.Error("expired request still stored, want hard delete")
	}
	if len(notify.updates) != 1 || notify.updates[0].card.Footer != "Request expired" {
		t.Errorf("updates = %+v, want one expiry edit", notify.updates)
	}
	if len(notify.dms) != 1 || !strings.Contains(notify.dms[0].content, "expired") {
		t.Errorf("dms = %+v, want one expiry DM", notify.dms)
	}
}

func TestManager_ExpireStaleRetained(t *testing.T) {
	m, notify, store := testManager(t, Options{RetainExpired: true})
	enableRequests(t, m)

	if err := m.CreateRequest(guildID, requester(), roleID); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	messageID := notify.posts[0].id

	if err := m.ExpireStale(testNow.Add(24 * time.Hour)); err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	req, ok := storedRequest(t, store, messageID)
	if !ok {
		t.Fatal("expired request deleted, want retained audit record")
	}
	if req.Status != database.StatusExpired {
		t.Errorf("req.Status = %q, want %q", req.Status, database.StatusExpired)
	}
}

func TestManager_SettingToggles(t *testing.T) {
	m, _, _ := testManager(t, Options{})

	if err := m.SetChannel(guildID, chanID); err != nil {
		t.Fatalf("SetChannel() error = %v", err)
	}
	if err := m.SetChannel(guildID, chanID); !errors.Is(err, ErrAlreadySet) {
		t.Errorf("SetChannel() same value error = %v, want %v", err, ErrAlreadySet)
	}

	if err := m.SetHideJoins(guildID, true); err != nil {
		t.Fatalf("SetHideJoins() error = %v", err)
	}
	if err := m.SetHideJoins(guildID, true); !errors.Is(err, ErrAlreadySet) {
		t.Errorf("SetHideJoins() same value error = %v, want %v", err, ErrAlreadySet)
	}

	if err := m.DisableRequests(guildID); err != nil {
		t.Fatalf("DisableRequests() error = %v", err)
	}
	if err := m.DisableRequests(guildID); !errors.Is(err, ErrAlreadySet) {
		t.Errorf("DisableRequests() twice error = %v, want %v", err, ErrAlreadySet)
	}

	opts, err := m.Options(guildID)
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if opts.Channel != "" || !opts.HideJoins || opts.RateLimitEnabled {
		t.Errorf("Options() = %+v", opts)
	}
}
