package dispatch

// Conn is the per-connection surface dispatch needs. Defined here,
// not in ircserver, so dispatch never imports the listener package —
// ircserver.Conn satisfies this structurally, wired by the gateway.
type Conn interface {
	ID() string

	Nick() string
	SetNick(string)
	User() string
	SetUser(string)
	Realname() string
	SetRealname(string)
	SetPassword(string)
	Password() string

	Authed() bool
	SetAuthed(bool)
	Ready() bool
	SetReady(bool)

	ResetPingCount()

	// Send writes one raw IRC line (no trailing CRLF) to this
	// connection only.
	Send(line string)

	// Close ends the connection, sending reason as an ERROR line
	// first if non-empty.
	Close(reason string)
}
