package world

// Presence mirrors the two presence states the remote service reports.
type Presence int

const (
	PresenceActive Presence = iota
	PresenceAway
)

// DMState tracks the three-state lifecycle of a user's direct-message
// conduit: no session requested yet, an im.open in flight, or a
// usable channel id.
type DMState int

const (
	DMAbsent DMState = iota
	DMPending
	DMPresent
)

// User is a remote identity projected into the IRC world, including
// the local identity ("self").
type User struct {
	ID       string
	Nick     string
	Realname string
	Presence Presence

	// Channels is the set of Channel.ID this user currently belongs to.
	Channels map[string]struct{}

	DMID    string
	DMState DMState

	// TxQueue holds message bodies queued for delivery once DMState
	// becomes DMPresent. Non-empty only while DMState is Absent or
	// Pending; drained FIFO the moment DMState becomes Present.
	TxQueue []string
}

func newUser(id, nick string) *User {
	return &User{
		ID:       id,
		Nick:     nick,
		Presence: PresenceActive,
		Channels: make(map[string]struct{}),
	}
}

// InChannel reports whether the user belongs to channel id.
func (u *User) InChannel(channelID string) bool {
	_, ok := u.Channels[channelID]
	return ok
}

// Enqueue appends text to the user's pending-DM queue. Only valid
// while DMState is Absent or Pending; callers enforce that.
func (u *User) Enqueue(text string) {
	u.TxQueue = append(u.TxQueue, text)
}

// DrainQueue empties and returns the queued messages in FIFO order.
func (u *User) DrainQueue() []string {
	q := u.TxQueue
	u.TxQueue = nil
	return q
}
