// Package sessionops declares the narrow surface the event router and
// command dispatcher use to ask the upstream session to do work on
// their behalf — an asynchronous API call, a scheduled read-mark, a
// queued direct message. It exists so router and dispatch can depend
// on "whatever can do these things" without importing the session
// package, which in turn depends on router's event-delivery
// interface; Go's structural typing lets upstream/session satisfy
// this without ever importing it.
package sessionops

// Ops is implemented by *session.Session. Every method is safe to call
// from the shared loop goroutine: implementations that need to block
// (an HTTP call) do so on a separate goroutine and re-enter the loop
// to deliver the result, per spec §5's suspension-point discipline.
type Ops interface {
	// CallAsync issues method with params off the loop goroutine and
	// invokes done back on the loop once the response (or error)
	// arrives. params may be nil.
	CallAsync(method string, params map[string]string, done func(body []byte, err error))

	// FetchFile downloads fileID's content off the loop goroutine and
	// invokes done back on the loop with the bytes (or an error).
	FetchFile(fileID string, done func(body []byte, err error))

	// ScheduleMark records that channelID has unread messages up to
	// ts; the session's 5s debounce timer issues one mark call per
	// channel using the most recently scheduled timestamp.
	ScheduleMark(channelID, ts string)

	// SendToUser delivers text to userID's DM conduit, queueing and
	// opening it if necessary, per spec §4.3's outbound DM queueing.
	SendToUser(userID, text string)

	// SendToChannel posts text to channelID directly.
	SendToChannel(channelID, text string)

	// Pong resets the upstream ping-timeout counter, called by the
	// router when a pong frame arrives.
	Pong()

	// SelfPresence requests the upstream service set self's presence.
	SelfPresence(away bool)

	// Disconnect tears the upstream session down, per the gateway
	// "disconnect" command.
	Disconnect(reason string)

	// IsLive reports whether the upstream session is in the live
	// state — a newly-authed IRC client only gets welcomed while this
	// is true.
	IsLive() bool
}
