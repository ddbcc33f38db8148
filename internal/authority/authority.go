// Package authority decides who may run a command. Nothing is stored per user:
// every check is derived from the actor's current roles, so a revoked role
// takes effect on the very next message.
package authority

import (
	"slices"
	"sync"
)

// Everyone is the label that opens a command to every member.
const Everyone = "EVERYONE"

// Actor is the member performing an action, reduced to what the checks need.
type Actor struct {
	ID      string
	GuildID string
	Admin   bool
	Roles   []string
}

// HasRole reports whether the actor currently holds roleID.
func (a Actor) HasRole(roleID string) bool {
	return roleID != "" && slices.Contains(a.Roles, roleID)
}

// RoleMaps holds the label -> role id mapping of every guild.
type RoleMaps struct {
	mu     sync.RWMutex
	guilds map[string]map[string]string
}

func NewRoleMaps() *RoleMaps {
	return &RoleMaps{guilds: make(map[string]map[string]string)}
}

// Replace swaps the whole mapping of a guild.
func (r *RoleMaps) Replace(guildID string, labels map[string]string) {
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}

	r.mu.Lock()
	r.guilds[guildID] = cp
	r.mu.Unlock()
}

// Get returns a copy of the guild mapping. ok is false until the guild was
// populated at least once.
func (r *RoleMaps) Get(guildID string) (map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.guilds[guildID]
	if !ok {
		return nil, false
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp, true
}

// RoleID returns the role mapped to label in the guild, or "".
func (r *RoleMaps) RoleID(guildID, label string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.guilds[guildID][label]
}

// Blacklist is the set of users denied every command.
type Blacklist struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewBlacklist() *Blacklist {
	return &Blacklist{ids: make(map[string]struct{})}
}

// Replace swaps the whole set.
func (b *Blacklist) Replace(userIDs []string) {
	ids := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		ids[id] = struct{}{}
	}

	b.mu.Lock()
	b.ids = ids
	b.mu.Unlock()
}

func (b *Blacklist) Contains(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ids[userID]
	return ok
}

func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}

// Authority combines the platform admin flag, the configured full authority
// override and the per-guild role maps.
type Authority struct {
	FullAuthorityOverride string
	Roles                 *RoleMaps
}

func New(fullAuthorityOverride string, roles *RoleMaps) *Authority {
	if roles == nil {
		roles = NewRoleMaps()
	}
	return &Authority{FullAuthorityOverride: fullAuthorityOverride, Roles: roles}
}

// IsFullAuthority reports whether the actor is the configured override user.
func (a *Authority) IsFullAuthority(actor Actor) bool {
	return a.FullAuthorityOverride != "" && actor.ID == a.FullAuthorityOverride
}

// CanInvoke reports whether actor may run a command guarded by labels.
// An empty label list means administrators only.
func (a *Authority) CanInvoke(actor Actor, labels []string) bool {
	if actor.Admin || slices.Contains(labels, Everyone) {
		return true
	}
	if a.IsFullAuthority(actor) {
		return true
	}

	guildRoles, ok := a.Roles.Get(actor.GuildID)
	if !ok {
		return false
	}
	for label, roleID := range guildRoles {
		if slices.Contains(labels, label) && actor.HasRole(roleID) {
			return true
		}
	}
	return false
}

// RequiredRoles resolves labels to role ids of the guild. Labels without a
// mapping resolve to "".
func (a *Authority) RequiredRoles(guildID string, labels []string) []string {
	out := make([]string, len(labels))
	for i, label := range labels {
		out[i] = a.Roles.RoleID(guildID, label)
	}
	return out
}
