package wren

import "sort"

// ============================================================================
// Roster mirror
// ============================================================================

// RosterMirror holds the latest presence snapshot. Snapshots replace
// each other wholesale; there is no merging of partial updates. Like
// the ledger it is owned by the session loop and carries no lock.
type RosterMirror struct {
	users  []User
	byID   map[string]User
	byName map[string]User
}

func NewRosterMirror() *RosterMirror {
	return &RosterMirror{
		byID:   make(map[string]User),
		byName: make(map[string]User),
	}
}

// ApplySnapshot replaces the mirror with users and bootstraps a ledger
// entry for each one, so every known peer renders an unread count even
// before any message arrives.
func (r *RosterMirror) ApplySnapshot(users []User, ledger *UnreadLedger) {
	r.users = users
	r.byID = make(map[string]User, len(users))
	r.byName = make(map[string]User, len(users))
	for _, u := range users {
		r.byID[u.ID] = u
		r.byName[u.Name] = u
		ledger.Bootstrap(DirectKey(u.ID))
	}
}

// ByID looks a user up by their id.
func (r *RosterMirror) ByID(id string) (User, bool) {
	u, ok := r.byID[id]
	return u, ok
}

// ByName looks a user up by display name. Direct-message frames carry
// only the sender's name, so this is how inbound senders are resolved.
func (r *RosterMirror) ByName(name string) (User, bool) {
	u, ok := r.byName[name]
	return u, ok
}

// Users returns the raw snapshot in server order.
func (r *RosterMirror) Users() []User {
	return r.users
}

// Ordered returns the roster minus self, online users first, each group
// sorted by name.
func (r *RosterMirror) Ordered(selfID string) []User {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		if u.ID != selfID {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Online != out[j].Online {
			return out[i].Online
		}
		return out[i].Name < out[j].Name
	})
	return out
}
