// Package world holds the in-memory state shared between the
// upstream event router and the IRC command dispatcher: users,
// channels, direct-message bindings and the local identity. World is
// plain data — it is never locked, because spec §5's single-threaded
// cooperative model guarantees every mutation and every read happen
// on the same goroutine between I/O suspension points.
package world

import (
	"fmt"

	"github.com/vovakirdan/slackbridge/internal/ircfold"
)

// World is the sole shared state between the router (writer) and the
// command dispatcher (reader). See spec §3 for the invariants every
// method here maintains.
type World struct {
	SelfID string

	users    map[string]*User    // by id
	channels map[string]*Channel // by id

	usersByName    map[string]*User    // by folded nick
	channelsByName map[string]*Channel // by folded name
	usersByDMID    map[string]*User    // by dm channel id
}

// New returns an empty world: no users, no channels, no self id —
// the state the bridge is in before the upstream session is live.
func New() *World {
	w := &World{}
	w.reset()
	return w
}

// Reset atomically discards every entity. Called on session teardown;
// afterwards every invariant in spec §3 trivially holds (all sets
// empty).
func (w *World) Reset() {
	w.reset()
}

func (w *World) reset() {
	w.SelfID = ""
	w.users = make(map[string]*User)
	w.channels = make(map[string]*Channel)
	w.usersByName = make(map[string]*User)
	w.channelsByName = make(map[string]*Channel)
	w.usersByDMID = make(map[string]*User)
}

// IsSelf reports whether id names the local identity.
func (w *World) IsSelf(id string) bool {
	return w.SelfID != "" && id == w.SelfID
}

// Self returns the local identity's User, or nil if the session isn't
// live yet.
func (w *World) Self() *User {
	if w.SelfID == "" {
		return nil
	}
	return w.users[w.SelfID]
}

// User looks up a user by remote id.
func (w *World) User(id string) (*User, bool) {
	u, ok := w.users[id]
	return u, ok
}

// UserByName looks up a user by nick, case-folded.
func (w *World) UserByName(nick string) (*User, bool) {
	u, ok := w.usersByName[ircfold.Fold(nick)]
	return u, ok
}

// UserByDMID looks up the user whose DM conduit is dmID.
func (w *World) UserByDMID(dmID string) (*User, bool) {
	u, ok := w.usersByDMID[dmID]
	return u, ok
}

// Channel looks up a channel by remote id.
func (w *World) Channel(id string) (*Channel, bool) {
	c, ok := w.channels[id]
	return c, ok
}

// ChannelByName looks up a channel by name, case-folded.
func (w *World) ChannelByName(name string) (*Channel, bool) {
	c, ok := w.channelsByName[ircfold.Fold(name)]
	return c, ok
}

// Users returns every known user. Callers must not mutate the slice's
// contents outside the router.
func (w *World) Users() []*User {
	out := make([]*User, 0, len(w.users))
	for _, u := range w.users {
		out = append(out, u)
	}
	return out
}

// Channels returns every known channel.
func (w *World) Channels() []*Channel {
	out := make([]*Channel, 0, len(w.channels))
	for _, c := range w.channels {
		out = append(out, c)
	}
	return out
}

// UserIDByNick resolves a nick (as typed by an IRC client) to the
// remote user id it names, case-folded. Satisfies wire.Resolver.
func (w *World) UserIDByNick(nick string) (id string, ok bool) {
	u, ok := w.UserByName(nick)
	if !ok {
		return "", false
	}
	return u.ID, true
}

// ChannelIDByName resolves a channel name to its remote id,
// case-folded. Satisfies wire.Resolver.
func (w *World) ChannelIDByName(name string) (id string, ok bool) {
	c, ok := w.ChannelByName(name)
	if !ok {
		return "", false
	}
	return c.ID, true
}

// NickForUserID resolves a remote user id to its current nick.
// Self substitution (each IRC client shows its own chosen nick for
// self) is the caller's responsibility; this always returns the
// world's own record. Satisfies wire.NickResolver.
func (w *World) NickForUserID(id string) (nick string, ok bool) {
	u, ok := w.User(id)
	if !ok {
		return "", false
	}
	return u.Nick, true
}

// NameForChannelID resolves a remote channel id to its current name.
// Satisfies wire.NickResolver.
func (w *World) NameForChannelID(id string) (name string, ok bool) {
	c, ok := w.Channel(id)
	if !ok {
		return "", false
	}
	return c.Name, true
}

func (w *World) nameMapForUsers() ircfold.NameMap {
	return ircfold.MapFunc(func(folded string) bool {
		_, ok := w.usersByName[folded]
		return ok
	})
}

func (w *World) nameMapForChannels() ircfold.NameMap {
	return ircfold.MapFunc(func(folded string) bool {
		_, ok := w.channelsByName[folded]
		return ok
	})
}

// indexUser inserts u into the id and folded-name indices. Callers
// must hold no prior folded-name entry for u.Nick under the new name.
func (w *World) indexUser(u *User) {
	w.users[u.ID] = u
	w.usersByName[ircfold.Fold(u.Nick)] = u
}

func (w *World) unindexUserName(nick string) {
	delete(w.usersByName, ircfold.Fold(nick))
}

func (w *World) indexChannel(c *Channel) {
	w.channels[c.ID] = c
	w.channelsByName[ircfold.Fold(c.Name)] = c
}

// UserSnapshot is the subset of an upstream user record the world
// needs to create or refresh a User.
type UserSnapshot struct {
	ID           string
	ProposedNick string
	Realname     string
	Presence     *Presence // nil leaves presence unchanged (or defaults to active on creation)
}

// UpdateUser creates the user named by snap.ID if unknown, or
// refreshes an existing one, re-arbitrating its nick. It returns the
// user and whether its nick changed. The router's users.info refresh
// discards that flag, so a nick changed here is not broadcast as a
// NICK line to IRC clients.
func (w *World) UpdateUser(snap UserSnapshot) (u *User, nickChanged bool) {
	if existing, ok := w.users[snap.ID]; ok {
		w.unindexUserName(existing.Nick)
		newNick := ircfold.Arbitrate(snap.ProposedNick, w.nameMapForUsers())
		nickChanged = newNick != existing.Nick
		existing.Nick = newNick
		if snap.Realname != "" {
			existing.Realname = snap.Realname
		}
		if snap.Presence != nil {
			existing.Presence = *snap.Presence
		}
		w.indexUser(existing)
		return existing, nickChanged
	}

	nick := ircfold.Arbitrate(snap.ProposedNick, w.nameMapForUsers())
	u = newUser(snap.ID, nick)
	u.Realname = snap.Realname
	if snap.Presence != nil {
		u.Presence = *snap.Presence
	}
	w.indexUser(u)
	return u, false
}

// RecordUnknownUser stub-creates a user referenced by id before its
// attributes are known (e.g. a message from a user not in the
// bootstrap snapshot). The caller is responsible for issuing the
// users.info lookup and feeding the response back through UpdateUser.
func (w *World) RecordUnknownUser(id string) *User {
	if u, ok := w.users[id]; ok {
		return u
	}
	u, _ := w.UpdateUser(UserSnapshot{ID: id, ProposedNick: fmt.Sprintf("u%s", id)})
	return u
}

// ChannelSnapshot is the subset of an upstream channel/group record
// the world needs to create or refresh a Channel.
type ChannelSnapshot struct {
	ID           string
	ProposedName string
	Topic        string
	MemberIDs    []string
	// Closed marks a group the local identity is not (or no longer) a
	// participant of; its own id is excluded from the membership set
	// even if present in MemberIDs.
	Closed bool
}

// UpdateChannel creates or refreshes a channel. Channel names are
// arbitrated only on first creation, so stable references (IRC
// clients that already joined) never see a channel renamed under
// them. Every member id is ensured to exist as a user (stub-created
// if necessary) and linked bidirectionally.
func (w *World) UpdateChannel(kind Kind, snap ChannelSnapshot) *Channel {
	c, ok := w.channels[snap.ID]
	if !ok {
		proposed := snap.ProposedName
		if kind == KindGroup {
			proposed = "+" + proposed
		}
		name := ircfold.Arbitrate(proposed, w.nameMapForChannels())
		c = newChannel(snap.ID, name, kind)
		w.indexChannel(c)
	}
	c.Kind = kind
	c.Topic = snap.Topic

	for _, memberID := range snap.MemberIDs {
		if snap.Closed && w.IsSelf(memberID) {
			continue
		}
		u := w.RecordUnknownUser(memberID)
		w.link(u, c)
	}
	return c
}

// DeleteChannel removes bidirectional links from every member and
// drops the channel from both indices.
func (w *World) DeleteChannel(id string) {
	c, ok := w.channels[id]
	if !ok {
		return
	}
	for memberID := range c.Members {
		if u, ok := w.users[memberID]; ok {
			delete(u.Channels, id)
		}
	}
	delete(w.channels, id)
	delete(w.channelsByName, ircfold.Fold(c.Name))
}

// link inserts the bidirectional membership edge, idempotently.
func (w *World) link(u *User, c *Channel) {
	u.Channels[c.ID] = struct{}{}
	c.Members[u.ID] = struct{}{}
}

// Join adds userID to channelID's membership, creating the edge both
// ways. Returns true if the edge was newly created (false if the
// user was already a member — idempotent so the router can suppress
// duplicate IRC JOIN lines).
func (w *World) Join(userID, channelID string) bool {
	u, uok := w.users[userID]
	c, cok := w.channels[channelID]
	if !uok || !cok {
		return false
	}
	if c.HasMember(userID) {
		return false
	}
	w.link(u, c)
	return true
}

// Part removes userID from channelID's membership. Returns true if
// the edge existed and was removed.
func (w *World) Part(userID, channelID string) bool {
	u, uok := w.users[userID]
	c, cok := w.channels[channelID]
	if !uok || !cok {
		return false
	}
	if !c.HasMember(userID) {
		return false
	}
	delete(u.Channels, channelID)
	delete(c.Members, userID)
	return true
}

// SetDMID transitions userID's DM binding to present and returns the
// queued messages to flush, in FIFO order, with the queue now empty.
func (w *World) SetDMID(userID, dmID string) (queued []string, ok bool) {
	u, exists := w.users[userID]
	if !exists {
		return nil, false
	}
	u.DMID = dmID
	u.DMState = DMPresent
	w.usersByDMID[dmID] = u
	return u.DrainQueue(), true
}

// ClearDMID transitions userID's DM binding back to absent, draining
// (and returning, for failure-notice purposes) any queued messages.
func (w *World) ClearDMID(userID string) (drained []string, ok bool) {
	u, exists := w.users[userID]
	if !exists {
		return nil, false
	}
	if u.DMID != "" {
		delete(w.usersByDMID, u.DMID)
	}
	u.DMID = ""
	u.DMState = DMAbsent
	return u.DrainQueue(), true
}

// BeginDMPending marks userID's DM binding as in-flight (im.open
// called, no reply yet) and enqueues text. Only valid to call while
// DMState is Absent.
func (w *World) BeginDMPending(userID, text string) {
	u, ok := w.users[userID]
	if !ok {
		return
	}
	u.DMState = DMPending
	u.Enqueue(text)
}

// QueueDM appends text to userID's pending queue without changing
// DMState (used when DMState is already Pending).
func (w *World) QueueDM(userID, text string) {
	if u, ok := w.users[userID]; ok {
		u.Enqueue(text)
	}
}

// SetPresence updates userID's presence and reports whether it
// changed.
func (w *World) SetPresence(userID string, p Presence) (changed bool) {
	u, ok := w.users[userID]
	if !ok {
		return false
	}
	changed = u.Presence != p
	u.Presence = p
	return changed
}
