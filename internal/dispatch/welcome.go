package dispatch

import (
	"fmt"

	"github.com/vovakirdan/slackbridge/internal/auth"
	"github.com/vovakirdan/slackbridge/internal/world"
)

const namesChunkSize = 8

// attemptRegistration runs after any of PASS/NICK/USER updates a
// connection's provisional fields. It authenticates the connection
// (spec §4.4: NICK+USER, and PASS if a password is configured) and,
// if that just became true, either welcomes immediately (session
// live) or tells the client to wait.
func (d *Dispatcher) attemptRegistration(c Conn) {
	if c.Authed() {
		return
	}
	if c.Nick() == "" || c.User() == "" {
		return
	}
	if d.password != "" {
		if c.Password() == "" {
			return
		}
		if !auth.Check(c.Password(), d.password) {
			c.Close("Password incorrect")
			return
		}
	}
	c.SetAuthed(true)
	d.TryWelcome(c)
}

// TryWelcome attempts to complete the welcome sequence for an authed,
// not-yet-ready connection. Called right after registration completes
// and again for every pending connection when the upstream session
// becomes live (ircserver's registry.WelcomeReady).
func (d *Dispatcher) TryWelcome(c Conn) {
	if !c.Authed() || c.Ready() {
		return
	}
	if !d.ops.IsLive() {
		c.Send(notice(serverName, "*", "Waiting for RTM connection"))
		return
	}

	self := d.world.Self()
	if self == nil {
		c.Send(notice(serverName, "*", "Waiting for RTM connection"))
		return
	}

	if other, ok := d.world.UserByName(c.Nick()); ok && other.ID != self.ID {
		c.Send(numeric(errNicknameInUse, c.Nick(), fmt.Sprintf("%s :Nickname is already in use", c.Nick())))
		c.Close("Nickname is already in use")
		return
	}

	nick := c.Nick()
	c.Send(numeric(rplWelcome, nick, fmt.Sprintf(":Welcome to the bridge, %s", nick)))
	c.Send(numeric(rplYourHost, nick, ":Your host is "+serverName))
	c.Send(numeric(rplCreated, nick, ":This server was started a while ago"))
	c.Send(numeric(rplMotd, nick, ":- bridge online"))
	c.Send(numeric(rplEndOfMotd, nick, ":End of MOTD"))

	for _, ch := range d.world.Channels() {
		if !ch.HasMember(self.ID) {
			continue
		}
		d.replayChannel(c, ch)
	}

	if self.Presence == world.PresenceAway {
		c.Send(numeric(rplNowAway, nick, ":You have been marked as away"))
	} else {
		c.Send(numeric(rplUnaway, nick, ":You are no longer marked as away"))
	}

	c.SetReady(true)
}

// replayChannel sends the self-sourced JOIN, topic numeric and a
// chunked NAMES list for one channel the self user belongs to, per
// spec §4.4's welcome replay.
func (d *Dispatcher) replayChannel(c Conn, ch *world.Channel) {
	nick := c.Nick()
	c.Send(fmt.Sprintf(":%s!%s@%s JOIN %s", nick, nick, serverName, channelWire(ch)))
	if ch.Topic != "" {
		c.Send(numeric(rplTopic, nick, fmt.Sprintf("%s :%s", channelWire(ch), ch.Topic)))
	}

	var names []string
	for memberID := range ch.Members {
		if u, ok := d.world.User(memberID); ok {
			names = append(names, u.Nick)
		}
	}
	for i := 0; i < len(names); i += namesChunkSize {
		end := i + namesChunkSize
		if end > len(names) {
			end = len(names)
		}
		chunk := joinSpace(names[i:end])
		c.Send(numeric(rplNameReply, nick, fmt.Sprintf("= %s :%s", channelWire(ch), chunk)))
	}
	c.Send(numeric(rplEndOfNames, nick, channelWire(ch)+" :End of NAMES list"))
}

func channelWire(ch *world.Channel) string {
	return "#" + ch.Name
}

func joinSpace(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
