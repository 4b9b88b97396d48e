// Package roles manages a guild's requestable-role list.
package roles

import (
	"errors"

	"github.com/cufee/botto-requests/database"
)

var (
	// ErrAlreadyRequestable - Role is already on the requestable list
	ErrAlreadyRequestable = errors.New("role is already requestable")
	// ErrNotRequestable - Role is not on the requestable list
	ErrNotRequestable = errors.New("role is not requestable")
	// ErrInvalidRole - Everyone or platform-managed role
	ErrInvalidRole = errors.New("role cannot be made requestable")
	// ErrAlreadySet - Role already has the requested kind
	ErrAlreadySet = errors.New("role is already of that kind")
)

// RoleInfo - Platform role as resolved by the command layer
type RoleInfo struct {
	ID      string
	Name    string
	Managed bool
}

// RequestableRole - List entry pairing a platform role with its kind
type RequestableRole struct {
	RoleInfo
	Kind database.RoleKind
}

// Registry - CRUD over a guild's requestable roles
type Registry struct {
	store *database.Store
}

func NewRegistry(store *database.Store) *Registry {
	return &Registry{store: store}
}

// Add - Register a role as requestable with the given kind.
// The guild's everyone role (ID equal to the guild ID) and managed roles
// can never be requestable.
func (r *Registry) Add(guildID string, role RoleInfo, kind database.RoleKind) error {
	if role.ID == guildID || role.Managed {
		return ErrInvalidRole
	}
	if kind == "" {
		kind = database.RoleOpen
	}
	_, err := r.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		if _, ok := gc.Roles[role.ID]; ok {
			return ErrAlreadyRequestable
		}
		gc.Roles[role.ID] = database.RoleEntry{Kind: kind}
		return nil
	})
	return err
}

// Remove - Delete a role from the requestable list
func (r *Registry) Remove(guildID, roleID string) error {
	_, err := r.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		if _, ok := gc.Roles[roleID]; !ok {
			return ErrNotRequestable
		}
		delete(gc.Roles, roleID)
		return nil
	})
	return err
}

// SetKind - Change an existing requestable role between open and restricted
func (r *Registry) SetKind(guildID, roleID string, kind database.RoleKind) error {
	_, err := r.store.UpdateGuild(guildID, func(gc *database.GuildConfig) error {
		entry, ok := gc.Roles[roleID]
		if !ok {
			return ErrNotRequestable
		}
		if entry.Kind == kind {
			return ErrAlreadySet
		}
		entry.Kind = kind
		gc.Roles[roleID] = entry
		return nil
	})
	return err
}

// Classify - Look up the kind of a role, ok reports whether it is requestable
func (r *Registry) Classify(guildID, roleID string) (database.RoleKind, bool, error) {
	gc, err := r.store.Guild(guildID)
	if err != nil {
		return "", false, err
	}
	entry, ok := gc.Roles[roleID]
	return entry.Kind, ok, nil
}

// ListRequestable - Configured roles ordered by the guild hierarchy.
//
// hierarchy is the platform's role order, lowest first; the result is
// highest role first with the everyone role excluded.
func (r *Registry) ListRequestable(guildID string, hierarchy []RoleInfo) ([]RequestableRole, error) {
	gc, err := r.store.Guild(guildID)
	if err != nil {
		return nil, err
	}
	var out []RequestableRole
	for i := len(hierarchy) - 1; i >= 0; i-- {
		role := hierarchy[i]
		if role.ID == guildID {
			continue
		}
		entry, ok := gc.Roles[role.ID]
		if !ok {
			continue
		}
		out = append(out, RequestableRole{RoleInfo: role, Kind: entry.Kind})
	}
	return out, nil
}
