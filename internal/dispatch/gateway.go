package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/slackbridge/internal/world"
)

const (
	gatewaySource    = "x!x@" + serverName
	maxCatFileBytes  = 65536
)

// handleGatewayCommand implements the `X` pseudo-user sub-dispatcher
// from spec §4.5: PRIVMSG X commands, split on runs of spaces, with
// NOTICE replies sourced from x!x@localhost.
func (d *Dispatcher) handleGatewayCommand(c Conn, text string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "newgroup":
		d.gatewayNewChannel(c, args, world.KindGroup)
	case "newchan":
		d.gatewayNewChannel(c, args, world.KindPublic)
	case "archive":
		d.gatewayArchive(c, args)
	case "close":
		d.gatewayClose(c, args)
	case "cat":
		d.gatewayCat(c, args)
	case "disconnect":
		d.ops.Disconnect("disconnect requested")
	case "delim":
		d.gatewayDelim(c, args)
	case "debug_dump_state":
		d.gatewayDumpState(c)
	case "debug_dump":
		d.gatewayDebugDump(c, args)
	default:
		d.gatewayNotice(c, "unknown command: "+cmd)
	}
}

func (d *Dispatcher) gatewayNotice(c Conn, text string) {
	c.Send(notice(gatewaySource, c.Nick(), text))
}

func (d *Dispatcher) gatewayNewChannel(c Conn, args []string, kind world.Kind) {
	if len(args) == 0 {
		d.gatewayNotice(c, "usage: newgroup|newchan <name>")
		return
	}
	name := args[0]
	method := "channels.create"
	if kind == world.KindGroup {
		method = "groups.create"
	}
	d.ops.CallAsync(method, map[string]string{"name": name}, func(_ []byte, err error) {
		if err != nil {
			d.gatewayNotice(c, "create failed: "+err.Error())
		}
	})
}

func (d *Dispatcher) gatewayArchive(c Conn, args []string) {
	if len(args) == 0 {
		d.gatewayNotice(c, "usage: archive <name>")
		return
	}
	ch, ok := d.world.ChannelByName(strings.TrimPrefix(args[0], "#"))
	if !ok {
		d.gatewayNotice(c, "no such channel: "+args[0])
		return
	}
	method := d.channelMethodPrefix(ch.Kind) + ".archive"
	d.ops.CallAsync(method, map[string]string{"channel": ch.ID}, func(_ []byte, err error) {
		if err != nil {
			d.gatewayNotice(c, "archive failed: "+err.Error())
		}
	})
}

func (d *Dispatcher) gatewayClose(c Conn, args []string) {
	if len(args) == 0 {
		d.gatewayNotice(c, "usage: close <name>")
		return
	}
	ch, ok := d.world.ChannelByName(strings.TrimPrefix(args[0], "#"))
	if !ok {
		d.gatewayNotice(c, "no such channel: "+args[0])
		return
	}
	if ch.Kind != world.KindGroup {
		d.gatewayNotice(c, "not a group: "+args[0])
		return
	}
	d.ops.CallAsync("groups.close", map[string]string{"channel": ch.ID}, func(_ []byte, err error) {
		if err != nil {
			d.gatewayNotice(c, "close failed: "+err.Error())
		}
	})
}

// gatewayCat fetches a file's content and replays it as NOTICEs
// delimited by "---- BEGIN <id> ----" / "---- END <id> ----", per
// spec §4.5, refusing files over the inline size cap.
func (d *Dispatcher) gatewayCat(c Conn, args []string) {
	if len(args) == 0 {
		d.gatewayNotice(c, "usage: cat <file-id>")
		return
	}
	fileID := args[0]
	d.ops.FetchFile(fileID, func(body []byte, err error) {
		if err != nil {
			d.gatewayNotice(c, "cat failed: "+err.Error())
			return
		}
		if len(body) > maxCatFileBytes {
			d.gatewayNotice(c, fmt.Sprintf("file %s too large to display", fileID))
			return
		}
		d.gatewayNotice(c, fmt.Sprintf("---- BEGIN %s ----", fileID))
		for _, line := range strings.Split(string(body), "\n") {
			d.gatewayNotice(c, line)
		}
		d.gatewayNotice(c, fmt.Sprintf("---- END %s ----", fileID))
	})
}

// gatewayDelim is a no-op acknowledgement: the source's "delim" sets a
// per-viewer display preference that has no IRC-side equivalent here,
// since every client already gets one PRIVMSG per line unconditionally.
func (d *Dispatcher) gatewayDelim(c Conn, args []string) {
	d.gatewayNotice(c, "delim acknowledged")
}

// stateDumpUser and stateDumpChannel are the YAML-serializable shapes
// debug_dump_state emits; spec §4.5 lists the command but leaves its
// output format unspecified, so this follows SPEC_FULL.md §10's
// choice of structured YAML over ad hoc text.
type stateDumpUser struct {
	ID       string   `yaml:"id"`
	Nick     string   `yaml:"nick"`
	Presence string   `yaml:"presence"`
	DMState  string   `yaml:"dm_state"`
	Channels []string `yaml:"channels"`
}

type stateDumpChannel struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Topic   string   `yaml:"topic,omitempty"`
	Members []string `yaml:"members"`
}

type stateDump struct {
	SelfID   string             `yaml:"self_id"`
	Users    []stateDumpUser    `yaml:"users"`
	Channels []stateDumpChannel `yaml:"channels"`
}

func presenceName(p world.Presence) string {
	if p == world.PresenceAway {
		return "away"
	}
	return "active"
}

func dmStateName(s world.DMState) string {
	switch s {
	case world.DMPending:
		return "pending"
	case world.DMPresent:
		return "present"
	default:
		return "absent"
	}
}

func channelKindName(k world.Kind) string {
	if k == world.KindGroup {
		return "group"
	}
	return "public"
}

// gatewayDumpState serializes the world snapshot as YAML and replays
// it as chunked NOTICEs, the same line-by-line discipline gatewayCat
// already uses for file replay.
func (d *Dispatcher) gatewayDumpState(c Conn) {
	dump := stateDump{SelfID: d.world.SelfID}

	for _, u := range d.world.Users() {
		channels := make([]string, 0, len(u.Channels))
		for chID := range u.Channels {
			channels = append(channels, chID)
		}
		dump.Users = append(dump.Users, stateDumpUser{
			ID:       u.ID,
			Nick:     u.Nick,
			Presence: presenceName(u.Presence),
			DMState:  dmStateName(u.DMState),
			Channels: channels,
		})
	}

	for _, ch := range d.world.Channels() {
		members := make([]string, 0, len(ch.Members))
		for memberID := range ch.Members {
			members = append(members, memberID)
		}
		dump.Channels = append(dump.Channels, stateDumpChannel{
			ID:      ch.ID,
			Name:    ch.Name,
			Kind:    channelKindName(ch.Kind),
			Topic:   ch.Topic,
			Members: members,
		})
	}

	out, err := yaml.Marshal(dump)
	if err != nil {
		d.gatewayNotice(c, "debug_dump_state failed: "+err.Error())
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		d.gatewayNotice(c, line)
	}
}

func (d *Dispatcher) gatewayDebugDump(c Conn, args []string) {
	enable := true
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			enable = v != 0
		}
	}
	if d.debugDump != nil {
		d.debugDump(enable)
	}
	d.gatewayNotice(c, fmt.Sprintf("debug_dump=%d", boolToInt(enable)))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
