package ircserver

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/slackbridge/internal/dispatch"
	"github.com/vovakirdan/slackbridge/internal/wire"
	"github.com/vovakirdan/slackbridge/internal/world"
)

// Registry tracks every live connection and implements
// fanout.Broadcaster. Like World, it is never locked: every method
// here only ever runs on the shared loop goroutine (Listener posts
// add/remove there, and router/session/dispatch call broadcasts from
// inside their own loop-posted handlers).
type Registry struct {
	world      *world.World
	dispatcher *dispatch.Dispatcher
	log        *zerolog.Logger

	conns map[string]*Conn
}

func newRegistry(w *world.World, d *dispatch.Dispatcher, log *zerolog.Logger) *Registry {
	return &Registry{world: w, dispatcher: d, log: log, conns: make(map[string]*Conn)}
}

func (r *Registry) add(c *Conn) {
	r.conns[c.ID()] = c
}

func (r *Registry) remove(c *Conn) {
	delete(r.conns, c.ID())
}

func (r *Registry) snapshot() []*Conn {
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) readyConns() []*Conn {
	var out []*Conn
	for _, c := range r.snapshot() {
		if c.Ready() {
			out = append(out, c)
		}
	}
	return out
}

// selfAwareResolver wraps world so <@self_id> resolves to this
// particular recipient's own chosen nick, per spec §4.6: self's nick
// is shadowed per client.
type selfAwareResolver struct {
	w        *world.World
	selfNick string
}

func (r selfAwareResolver) NickForUserID(id string) (string, bool) {
	if r.w.IsSelf(id) {
		return r.selfNick, true
	}
	return r.w.NickForUserID(id)
}

func (r selfAwareResolver) NameForChannelID(id string) (string, bool) {
	return r.w.NameForChannelID(id)
}

func (r *Registry) translateFor(c *Conn, text string) string {
	return wire.UnescapeInbound(text, selfAwareResolver{w: r.world, selfNick: c.Nick()})
}

func (r *Registry) channelTag(channelID string) string {
	if name, ok := r.world.NameForChannelID(channelID); ok {
		return "#" + name
	}
	return "#" + channelID
}

func (r *Registry) userPrefix(userID, asNick string) string {
	nick := asNick
	if nick == "" {
		if n, ok := r.world.NickForUserID(userID); ok {
			nick = n
		} else {
			nick = userID
		}
	}
	return fmt.Sprintf("%s!%s@%s", nick, nick, serverName)
}

// Join implements fanout.Broadcaster.
func (r *Registry) Join(userID, channelID string) {
	tag := r.channelTag(channelID)
	for _, c := range r.readyConns() {
		nick := r.displayNick(c, userID)
		c.Send(fmt.Sprintf(":%s JOIN %s", r.userPrefix(userID, nick), tag))
	}
}

// Part implements fanout.Broadcaster.
func (r *Registry) Part(userID, channelID, reason string) {
	tag := r.channelTag(channelID)
	line := ""
	for _, c := range r.readyConns() {
		nick := r.displayNick(c, userID)
		if reason != "" {
			line = fmt.Sprintf(":%s PART %s :%s", r.userPrefix(userID, nick), tag, reason)
		} else {
			line = fmt.Sprintf(":%s PART %s", r.userPrefix(userID, nick), tag)
		}
		c.Send(line)
	}
}

// Nick implements fanout.Broadcaster. Self's nick change is never
// broadcast: each client already shows its own chosen nick for self.
func (r *Registry) Nick(userID, newNick string) {
	if r.world.IsSelf(userID) {
		return
	}
	for _, c := range r.readyConns() {
		c.Send(fmt.Sprintf(":%s NICK :%s", r.userPrefix(userID, ""), newNick))
	}
}

// Presence implements fanout.Broadcaster.
func (r *Registry) Presence(away bool) {
	for _, c := range r.readyConns() {
		if away {
			c.Send(fmt.Sprintf(":%s 306 %s :You have been marked as away", serverName, c.Nick()))
		} else {
			c.Send(fmt.Sprintf(":%s 305 %s :You are no longer marked as away", serverName, c.Nick()))
		}
	}
}

// Topic implements fanout.Broadcaster.
func (r *Registry) Topic(channelID, sourceUserID, topic string) {
	tag := r.channelTag(channelID)
	for _, c := range r.readyConns() {
		nick := r.displayNick(c, sourceUserID)
		c.Send(fmt.Sprintf(":%s TOPIC %s :%s", r.userPrefix(sourceUserID, nick), tag, r.translateFor(c, topic)))
	}
}

// ChannelMessage implements fanout.Broadcaster.
func (r *Registry) ChannelMessage(channelID, fromUserID, text string) {
	tag := r.channelTag(channelID)
	for _, c := range r.readyConns() {
		nick := r.displayNick(c, fromUserID)
		c.Send(fmt.Sprintf(":%s PRIVMSG %s :%s", r.userPrefix(fromUserID, nick), tag, r.translateFor(c, text)))
	}
}

// DirectMessage implements fanout.Broadcaster.
func (r *Registry) DirectMessage(fromUserID, text string) {
	for _, c := range r.readyConns() {
		nick := r.displayNick(c, fromUserID)
		c.Send(fmt.Sprintf(":%s PRIVMSG %s :%s", r.userPrefix(fromUserID, nick), c.Nick(), r.translateFor(c, text)))
	}
}

// Notice implements fanout.Broadcaster. Sent to every authed client,
// ready or not — session-lifecycle notices matter before welcome too.
// Targeted at the client's own nick once it has one, "*" until then.
func (r *Registry) Notice(text string) {
	for _, c := range r.snapshot() {
		if !c.Authed() {
			continue
		}
		target := c.Nick()
		if target == "" {
			target = "*"
		}
		c.Send(fmt.Sprintf(":%s NOTICE %s :%s", serverName, target, text))
	}
}

// DisconnectAll implements fanout.Broadcaster.
func (r *Registry) DisconnectAll(reason string) {
	for _, c := range r.snapshot() {
		c.SetReady(false)
		c.Close(reason)
	}
}

// WelcomeReady implements fanout.Broadcaster.
func (r *Registry) WelcomeReady() {
	for _, c := range r.snapshot() {
		if c.Authed() && !c.Ready() {
			r.dispatcher.TryWelcome(c)
		}
	}
}

// displayNick substitutes c's own chosen nick when userID is self;
// otherwise "" to let the caller fall back to the world nick.
func (r *Registry) displayNick(c *Conn, userID string) string {
	if r.world.IsSelf(userID) {
		return c.Nick()
	}
	return ""
}
