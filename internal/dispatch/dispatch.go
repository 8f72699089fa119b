// Package dispatch implements the IRC command table and the gateway
// "X" pseudo-user sub-dispatcher from spec §4.5. It is the client
// side's only entry point into world state and upstream calls: it
// reads world directly, and reaches the upstream session exclusively
// through sessionops.Ops.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/slackbridge/internal/fanout"
	"github.com/vovakirdan/slackbridge/internal/ircfold"
	"github.com/vovakirdan/slackbridge/internal/sessionops"
	"github.com/vovakirdan/slackbridge/internal/wire"
	"github.com/vovakirdan/slackbridge/internal/world"
)

// Dispatcher holds everything command handling needs: world for
// reads, ops for upstream calls, out for broadcasts other than the
// replying connection's own (e.g. JOIN fanout after a successful
// channel join is left to the confirming event; dispatch only sends
// direct replies to the issuing connection plus optimistic group
// updates).
type Dispatcher struct {
	world    *world.World
	ops      sessionops.Ops
	out      fanout.Broadcaster
	log      *zerolog.Logger
	password string

	debugDump func(enable bool)
}

// SetDebugDumpHook wires the gateway "debug_dump" command to the
// process's wire-level log toggle (internal/logging).
func (d *Dispatcher) SetDebugDumpHook(fn func(enable bool)) {
	d.debugDump = fn
}

// SetPassword replaces the configured IRC server password, called by
// the gateway's config-file hot-reload (SPEC_FULL.md §4.9). Already
// authed connections are unaffected; only future registrations see
// the new value.
func (d *Dispatcher) SetPassword(password string) {
	d.password = password
}

// New constructs a Dispatcher. password is the configured IRC server
// password; empty means PASS is not required.
func New(w *world.World, ops sessionops.Ops, out fanout.Broadcaster, password string, log *zerolog.Logger) *Dispatcher {
	return &Dispatcher{world: w, ops: ops, out: out, password: password, log: log}
}

// Line is one parsed IRC line per spec §4.4's line parser.
type Line struct {
	Command string
	Args    []string
}

// Handle parses raw and runs the matching command. Unknown commands
// are silently ignored, matching the teacher's tolerant-client stance
// and spec §4.5's enumerated table (no "unknown command" numeric is
// specified).
func (d *Dispatcher) Handle(c Conn, raw string) {
	line, ok := Parse(raw)
	if !ok {
		return
	}

	switch strings.ToUpper(line.Command) {
	case "PASS":
		d.cmdPass(c, line)
	case "NICK":
		d.cmdNick(c, line)
	case "USER":
		d.cmdUser(c, line)
	case "AWAY":
		d.cmdAway(c, line)
	case "PING":
		d.cmdPing(c, line)
	case "PONG":
		c.ResetPingCount()
	case "JOIN":
		d.cmdJoin(c, line)
	case "PART":
		d.cmdPart(c, line)
	case "INVITE":
		d.cmdInviteKick(c, line, "invite")
	case "KICK":
		d.cmdInviteKick(c, line, "kick")
	case "MODE":
		d.cmdMode(c, line)
	case "TOPIC":
		d.cmdTopic(c, line)
	case "NAMES":
		d.cmdNames(c, line)
	case "WHO":
		d.cmdWho(c, line)
	case "WHOIS":
		d.cmdWhois(c, line)
	case "LIST":
		d.cmdList(c, line)
	case "MOTD":
		d.cmdMotd(c)
	case "PRIVMSG":
		d.cmdPrivmsg(c, line)
	case "QUIT":
		c.Close("")
	}
}

func (d *Dispatcher) cmdPass(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	c.SetPassword(line.Args[0])
	d.attemptRegistration(c)
}

func (d *Dispatcher) cmdNick(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	nick := line.Args[0]

	if !c.Ready() {
		c.SetNick(nick)
		d.attemptRegistration(c)
		return
	}

	self := d.world.Self()
	if other, ok := d.world.UserByName(nick); ok && (self == nil || other.ID != self.ID) {
		c.Send(numeric(errNicknameInUse, c.Nick(), nick+" :Nickname is already in use"))
		return
	}
	c.SetNick(nick)
}

func (d *Dispatcher) cmdUser(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	c.SetUser(line.Args[0])
	if len(line.Args) >= 4 {
		c.SetRealname(line.Args[3])
	}
	d.attemptRegistration(c)
}

func (d *Dispatcher) cmdAway(c Conn, line Line) {
	d.ops.SelfPresence(len(line.Args) > 0 && line.Args[0] != "")
}

func (d *Dispatcher) cmdPing(c Conn, line Line) {
	arg := ""
	if len(line.Args) > 0 {
		arg = line.Args[0]
	}
	c.Send(fmt.Sprintf(":%s PONG %s :%s", serverName, serverName, arg))
}

func (d *Dispatcher) channelMethodPrefix(kind world.Kind) string {
	if kind == world.KindGroup {
		return "groups"
	}
	return "channels"
}

func (d *Dispatcher) cmdJoin(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	for _, name := range strings.Split(line.Args[0], ",") {
		name = strings.TrimPrefix(name, "#")
		ch, ok := d.world.ChannelByName(name)
		if !ok {
			c.Send(numeric(errNoSuchChannel, c.Nick(), name+" :No such channel"))
			continue
		}
		self := d.world.Self()
		if self != nil && ch.HasMember(self.ID) {
			continue
		}
		if ch.Kind == world.KindGroup {
			d.ops.CallAsync("groups.open", map[string]string{"channel": ch.ID}, func(_ []byte, err error) {
				if err == nil && self != nil {
					d.world.Join(self.ID, ch.ID)
				}
			})
		} else {
			d.ops.CallAsync("channels.join", map[string]string{"name": ch.Name}, func(_ []byte, err error) {})
		}
	}
}

func (d *Dispatcher) cmdPart(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	for _, name := range strings.Split(line.Args[0], ",") {
		name = strings.TrimPrefix(name, "#")
		ch, ok := d.world.ChannelByName(name)
		if !ok {
			continue
		}
		prefix := d.channelMethodPrefix(ch.Kind)
		method := prefix + ".leave"
		if ch.Kind == world.KindGroup {
			method = prefix + ".close"
		}
		d.ops.CallAsync(method, map[string]string{"channel": ch.ID}, func(_ []byte, err error) {})
	}
}

func (d *Dispatcher) cmdInviteKick(c Conn, line Line, kind string) {
	if len(line.Args) < 2 {
		return
	}
	ch, ok := d.world.ChannelByName(strings.TrimPrefix(line.Args[1], "#"))
	if !ok {
		c.Send(numeric(errNoSuchChannel, c.Nick(), line.Args[1]+" :No such channel"))
		return
	}
	prefix := d.channelMethodPrefix(ch.Kind)
	for _, name := range strings.Split(line.Args[0], ",") {
		u, ok := d.world.UserByName(name)
		if !ok {
			c.Send(numeric(errNoSuchNick, c.Nick(), name+" :No such nick"))
			continue
		}
		d.ops.CallAsync(fmt.Sprintf("%s.%s", prefix, kind), map[string]string{"channel": ch.ID, "user": u.ID}, func(_ []byte, err error) {})
	}
}

func (d *Dispatcher) cmdMode(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	target := line.Args[0]
	if ircfold.Equal(target, c.Nick()) {
		c.Send(numeric(rplUmodeIs, c.Nick(), "+i"))
		return
	}
	name := strings.TrimPrefix(target, "#")
	ch, ok := d.world.ChannelByName(name)
	if !ok {
		c.Send(numeric(errNoSuchChannel, c.Nick(), target+" :No such channel"))
		return
	}
	if len(line.Args) >= 2 && line.Args[1] == "b" {
		c.Send(numeric(rplEndOfBanList, c.Nick(), channelWire(ch)+" :End of channel ban list"))
		return
	}
	modes := "+p"
	if ch.Kind == world.KindGroup {
		modes = "+ip"
	}
	c.Send(numeric(rplChannelModeIs, c.Nick(), channelWire(ch)+" "+modes))
	c.Send(numeric(rplCreationTime, c.Nick(), channelWire(ch)+" 0"))
}

func (d *Dispatcher) cmdTopic(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	ch, ok := d.world.ChannelByName(strings.TrimPrefix(line.Args[0], "#"))
	if !ok {
		c.Send(numeric(errNoSuchChannel, c.Nick(), line.Args[0]+" :No such channel"))
		return
	}
	if len(line.Args) < 2 {
		c.Send(numeric(rplTopic, c.Nick(), channelWire(ch)+" :"+ch.Topic))
		return
	}
	prefix := d.channelMethodPrefix(ch.Kind)
	d.ops.CallAsync(prefix+".setTopic", map[string]string{"channel": ch.ID, "topic": line.Args[1]}, func(_ []byte, err error) {})
}

func (d *Dispatcher) cmdNames(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	ch, ok := d.world.ChannelByName(strings.TrimPrefix(line.Args[0], "#"))
	if !ok {
		return
	}
	d.replayNames(c, ch)
}

func (d *Dispatcher) replayNames(c Conn, ch *world.Channel) {
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
		c.Send(numeric(rplNameReply, c.Nick(), fmt.Sprintf("= %s :%s", channelWire(ch), joinSpace(names[i:end]))))
	}
	c.Send(numeric(rplEndOfNames, c.Nick(), channelWire(ch)+" :End of NAMES list"))
}

func (d *Dispatcher) cmdWho(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	ch, ok := d.world.ChannelByName(strings.TrimPrefix(line.Args[0], "#"))
	if !ok {
		c.Send(numeric(rplEndOfWho, c.Nick(), line.Args[0]+" :End of WHO list"))
		return
	}
	for memberID := range ch.Members {
		u, ok := d.world.User(memberID)
		if !ok {
			continue
		}
		flag := "H"
		if u.Presence == world.PresenceAway {
			flag = "G"
		}
		c.Send(numeric(rplWhoReply, c.Nick(), fmt.Sprintf("%s %s %s %s %s %s :0 %s",
			channelWire(ch), u.Nick, serverName, serverName, u.Nick, flag, u.Realname)))
	}
	c.Send(numeric(rplEndOfWho, c.Nick(), channelWire(ch)+" :End of WHO list"))
}

func (d *Dispatcher) cmdWhois(c Conn, line Line) {
	if len(line.Args) == 0 {
		return
	}
	nick := line.Args[0]
	if ircfold.Equal(nick, ircfold.ReservedNick) {
		c.Send(numeric(rplWhoisUser, c.Nick(), "x x "+serverName+" * :gateway control"))
		c.Send(numeric(rplWhoisServer, c.Nick(), "x "+serverName+" :bridge gateway"))
		c.Send(numeric(rplEndOfWhois, c.Nick(), "x :End of WHOIS list"))
		return
	}
	u, ok := d.world.UserByName(nick)
	if !ok {
		c.Send(numeric(errNoSuchNick, c.Nick(), nick+" :No such nick"))
		return
	}
	c.Send(numeric(rplWhoisUser, c.Nick(), fmt.Sprintf("%s %s %s * :%s", u.Nick, u.Nick, serverName, u.Realname)))
	c.Send(numeric(rplWhoisServer, c.Nick(), fmt.Sprintf("%s %s :bridge", u.Nick, serverName)))
	var chans []string
	for chID := range u.Channels {
		if ch, ok := d.world.Channel(chID); ok {
			chans = append(chans, channelWire(ch))
		}
	}
	if len(chans) > 0 {
		c.Send(numeric(rplWhoisChannels, c.Nick(), fmt.Sprintf("%s :%s", u.Nick, joinSpace(chans))))
	}
	if u.Presence == world.PresenceAway {
		c.Send(numeric(rplAway, c.Nick(), u.Nick+" :away"))
	}
	c.Send(numeric(rplEndOfWhois, c.Nick(), u.Nick+" :End of WHOIS list"))
}

func (d *Dispatcher) cmdList(c Conn, line Line) {
	for _, ch := range d.world.Channels() {
		c.Send(numeric(rplList, c.Nick(), fmt.Sprintf("%s %d :%s", channelWire(ch), len(ch.Members), ch.Topic)))
	}
	c.Send(numeric(rplListEnd, c.Nick(), ":End of LIST"))
}

func (d *Dispatcher) cmdMotd(c Conn) {
	c.Send(numeric(rplMotd, c.Nick(), ":- bridge online"))
	c.Send(numeric(rplEndOfMotd, c.Nick(), ":End of MOTD"))
}

func (d *Dispatcher) cmdPrivmsg(c Conn, line Line) {
	if len(line.Args) < 2 {
		return
	}
	target, text := line.Args[0], line.Args[1]

	if ircfold.Equal(target, ircfold.ReservedNick) {
		d.handleGatewayCommand(c, text)
		return
	}

	escaped := wire.EscapeOutbound(text, d.world)

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "+") {
		name := strings.TrimPrefix(target, "#")
		ch, ok := d.world.ChannelByName(name)
		if !ok {
			c.Send(numeric(errNoSuchChannel, c.Nick(), target+" :No such channel"))
			return
		}
		d.ops.SendToChannel(ch.ID, escaped)
		return
	}

	u, ok := d.world.UserByName(target)
	if !ok {
		c.Send(numeric(errNoSuchNick, c.Nick(), target+" :No such nick"))
		return
	}
	d.ops.SendToUser(u.ID, escaped)
}
