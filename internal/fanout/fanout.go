// Package fanout declares the narrow surface the event router and
// command dispatcher use to emit IRC protocol lines to attached
// clients, without depending on the ircserver package's concrete
// connection registry (which in turn depends on dispatch to handle
// inbound lines — keeping the dependency one-directional).
package fanout

// Broadcaster is implemented by the IRC listener's client registry.
// "Ready" below means authed and welcomed, per spec §4.4's glossary
// entry; broadcasts to clients that aren't ready yet are simply not
// sent (there is nothing for them to be consistent with until then).
type Broadcaster interface {
	// Join emits a self-sourced JOIN for userID on channelID to every
	// ready client.
	Join(userID, channelID string)

	// Part emits a self-sourced PART for userID on channelID, with an
	// optional reason, to every ready client.
	Part(userID, channelID, reason string)

	// Nick emits a NICK change for userID to every ready client other
	// than userID's own connections (self's nick is shadowed per
	// client and never broadcast this way).
	Nick(userID, newNick string)

	// Presence emits the 305/306 away-state numeric to every ready
	// client, reflecting self's current presence.
	Presence(away bool)

	// Topic emits a TOPIC change on channelID, sourced from
	// sourceUserID, to every ready client.
	Topic(channelID, sourceUserID, topic string)

	// ChannelMessage emits a PRIVMSG on channelID sourced from
	// fromUserID to every ready client.
	ChannelMessage(channelID, fromUserID, text string)

	// DirectMessage emits a PRIVMSG to every ready client's view of
	// self, sourced from fromUserID.
	DirectMessage(fromUserID, text string)

	// Notice emits a server NOTICE to every authed client (ready or
	// not — notices report session-lifecycle state clients waiting on
	// welcome need to see too).
	Notice(text string)

	// DisconnectAll drops every connected client immediately, with the
	// given reason, per session teardown.
	DisconnectAll(reason string)

	// WelcomeReady is called once the upstream session becomes live;
	// it attempts the welcome sequence for every authed client still
	// waiting on it.
	WelcomeReady()
}
