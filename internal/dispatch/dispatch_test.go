package dispatch

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/slackbridge/internal/sessionops"
	"github.com/vovakirdan/slackbridge/internal/world"
)

// fakeConn is a minimal in-memory stand-in for ircserver.Conn: it
// records every line sent to it instead of writing to a socket.
type fakeConn struct {
	id       string
	nick     string
	user     string
	realname string
	password string
	authed   bool
	ready    bool

	sent   []string
	closed string
}

func (c *fakeConn) ID() string             { return c.id }
func (c *fakeConn) Nick() string           { return c.nick }
func (c *fakeConn) SetNick(n string)       { c.nick = n }
func (c *fakeConn) User() string           { return c.user }
func (c *fakeConn) SetUser(u string)       { c.user = u }
func (c *fakeConn) Realname() string       { return c.realname }
func (c *fakeConn) SetRealname(r string)   { c.realname = r }
func (c *fakeConn) Password() string       { return c.password }
func (c *fakeConn) SetPassword(p string)   { c.password = p }
func (c *fakeConn) Authed() bool           { return c.authed }
func (c *fakeConn) SetAuthed(a bool)       { c.authed = a }
func (c *fakeConn) Ready() bool            { return c.ready }
func (c *fakeConn) SetReady(r bool)        { c.ready = r }
func (c *fakeConn) ResetPingCount()        {}
func (c *fakeConn) Send(line string)       { c.sent = append(c.sent, line) }
func (c *fakeConn) Close(reason string)    { c.closed = reason }

// fakeOps is a no-op sessionops.Ops recording every call for
// assertions, with IsLive toggled per test.
type fakeOps struct {
	live  bool
	calls []string
}

func (o *fakeOps) CallAsync(method string, params map[string]string, done func([]byte, error)) {
	o.calls = append(o.calls, method)
}
func (o *fakeOps) FetchFile(fileID string, done func([]byte, error)) {
	done(nil, nil)
}
func (o *fakeOps) ScheduleMark(string, string)   {}
func (o *fakeOps) SendToUser(userID, text string) {
	o.calls = append(o.calls, "im:"+userID+":"+text)
}
func (o *fakeOps) SendToChannel(channelID, text string) {
	o.calls = append(o.calls, "chan:"+channelID+":"+text)
}
func (o *fakeOps) Pong()             {}
func (o *fakeOps) SelfPresence(bool) {}
func (o *fakeOps) Disconnect(reason string) {
	o.calls = append(o.calls, "disconnect:"+reason)
}
func (o *fakeOps) IsLive() bool { return o.live }

// fakeBroadcaster is a no-op fanout.Broadcaster, sufficient for tests
// that don't assert on fan-out (dispatch itself never calls most of
// these; TryWelcome and gateway commands are what exercise dispatch
// directly).
type fakeBroadcaster struct{}

func (fakeBroadcaster) Join(string, string)                   {}
func (fakeBroadcaster) Part(string, string, string)           {}
func (fakeBroadcaster) Nick(string, string)                   {}
func (fakeBroadcaster) Presence(bool)                         {}
func (fakeBroadcaster) Topic(string, string, string)          {}
func (fakeBroadcaster) ChannelMessage(string, string, string) {}
func (fakeBroadcaster) DirectMessage(string, string)          {}
func (fakeBroadcaster) Notice(string)                         {}
func (fakeBroadcaster) DisconnectAll(string)                  {}
func (fakeBroadcaster) WelcomeReady()                         {}

func newTestDispatcher(w *world.World, ops sessionops.Ops, password string) *Dispatcher {
	logger := zerolog.Nop()
	return New(w, ops, fakeBroadcaster{}, password, &logger)
}

func lastSent(c *fakeConn) string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

func TestRegistrationWaitsForLiveSessionThenWelcomes(t *testing.T) {
	w := world.New()
	ops := &fakeOps{live: false}
	d := newTestDispatcher(w, ops, "")
	c := &fakeConn{id: "1"}

	d.Handle(c, "NICK alice")
	d.Handle(c, "USER a 0 * :Alice")

	if !c.authed {
		t.Fatalf("expected connection to be authed once NICK+USER seen with no password configured")
	}
	if c.ready {
		t.Fatalf("should not be ready before the upstream session is live")
	}
	if !strings.Contains(lastSent(c), "Waiting for RTM connection") {
		t.Fatalf("expected wait notice, got %q", lastSent(c))
	}

	w.SelfID = "U1"
	w.UpdateUser(world.UserSnapshot{ID: "U1", ProposedNick: "alice"})
	ops.live = true
	d.TryWelcome(c)

	if !c.ready {
		t.Fatalf("expected client to become ready once session is live")
	}
	joined := strings.Join(c.sent, "\n")
	if !strings.Contains(joined, "001") {
		t.Fatalf("expected 001 welcome numeric, got:\n%s", joined)
	}
}

func TestRegistrationRequiresMatchingPassword(t *testing.T) {
	w := world.New()
	ops := &fakeOps{live: true}
	d := newTestDispatcher(w, ops, "secret")
	c := &fakeConn{id: "1"}

	d.Handle(c, "PASS wrong")
	d.Handle(c, "NICK alice")
	d.Handle(c, "USER a 0 * :Alice")

	if c.authed {
		t.Fatalf("wrong password must not authenticate")
	}
	if c.closed == "" {
		t.Fatalf("expected connection to be closed on bad password")
	}
}

func TestNickCollisionRejectsRegistration(t *testing.T) {
	w := world.New()
	w.SelfID = "U1"
	w.UpdateUser(world.UserSnapshot{ID: "U1", ProposedNick: "gateway"})
	w.UpdateUser(world.UserSnapshot{ID: "U_BOB", ProposedNick: "alice"})
	ops := &fakeOps{live: true}
	d := newTestDispatcher(w, ops, "")
	c := &fakeConn{id: "1"}

	d.Handle(c, "NICK alice")
	d.Handle(c, "USER a 0 * :Alice")

	if c.ready {
		t.Fatalf("registration should fail on nick collision with a non-self user")
	}
	if c.closed == "" {
		t.Fatalf("expected connection closed after nick collision")
	}
	if !strings.Contains(lastSent(c), "433") {
		t.Fatalf("expected 433 numeric, got %q", lastSent(c))
	}
}

func TestJoinUnknownChannelReplies401(t *testing.T) {
	w := world.New()
	ops := &fakeOps{live: true}
	d := newTestDispatcher(w, ops, "")
	c := &fakeConn{id: "1", nick: "alice", authed: true, ready: true}

	d.Handle(c, "JOIN #ghost")

	if !strings.Contains(lastSent(c), "401") {
		t.Fatalf("expected 401 for unknown channel, got %q", lastSent(c))
	}
}

func TestJoinAlreadyMemberIsSilent(t *testing.T) {
	w := world.New()
	w.SelfID = "U1"
	w.UpdateUser(world.UserSnapshot{ID: "U1", ProposedNick: "me"})
	w.UpdateChannel(world.KindPublic, world.ChannelSnapshot{ID: "C1", ProposedName: "general", MemberIDs: []string{"U1"}})
	ops := &fakeOps{live: true}
	d := newTestDispatcher(w, ops, "")
	c := &fakeConn{id: "1", nick: "me", authed: true, ready: true}

	d.Handle(c, "JOIN #general")

	if len(c.sent) != 0 {
		t.Fatalf("expected no reply for already-joined channel, got %v", c.sent)
	}
	if len(ops.calls) != 0 {
		t.Fatalf("expected no upstream call for already-joined channel, got %v", ops.calls)
	}
}

func TestJoinGroupCallsGroupsOpenAndUpdatesOptimistically(t *testing.T) {
	w := world.New()
	w.SelfID = "U1"
	w.UpdateUser(world.UserSnapshot{ID: "U1", ProposedNick: "me"})
	w.UpdateChannel(world.KindGroup, world.ChannelSnapshot{ID: "G1", ProposedName: "secret"})

	invokeOps := &invokingOps{fakeOps: &fakeOps{live: true}}
	d := newTestDispatcher(w, invokeOps, "")
	c := &fakeConn{id: "1", nick: "me", authed: true, ready: true}

	d.Handle(c, "JOIN #+secret") // wire form for a group carries its arbitrated "+" name

	ch, _ := w.Channel("G1")
	if !ch.HasMember("U1") {
		t.Fatalf("expected optimistic self-join on groups.open success")
	}
	if len(invokeOps.calls) == 0 || invokeOps.calls[0] != "groups.open" {
		t.Fatalf("expected groups.open call, got %v", invokeOps.calls)
	}
}

// invokingOps wraps fakeOps but immediately invokes the completion
// callback with success, for tests asserting on the optimistic-update
// side effect of a successful CallAsync.
type invokingOps struct {
	*fakeOps
}

func (o *invokingOps) CallAsync(method string, params map[string]string, done func([]byte, error)) {
	o.fakeOps.calls = append(o.fakeOps.calls, method)
	done([]byte(`{"ok":true}`), nil)
}

func TestPrivmsgUnknownTargetsReply401(t *testing.T) {
	w := world.New()
	ops := &fakeOps{live: true}
	d := newTestDispatcher(w, ops, "")
	c := &fakeConn{id: "1", nick: "alice", authed: true, ready: true}

	d.Handle(c, "PRIVMSG #ghost :hi")
	if !strings.Contains(lastSent(c), "401") {
		t.Fatalf("expected 401 for unknown channel target, got %q", lastSent(c))
	}

	c.sent = nil
	d.Handle(c, "PRIVMSG ghost :hi")
	if !strings.Contains(lastSent(c), "401") {
		t.Fatalf("expected 401 for unknown nick target, got %q", lastSent(c))
	}
}

func TestPrivmsgToChannelEscapesAndForwards(t *testing.T) {
	w := world.New()
	w.UpdateChannel(world.KindPublic, world.ChannelSnapshot{ID: "C1", ProposedName: "general"})
	w.UpdateUser(world.UserSnapshot{ID: "U_BOB", ProposedNick: "bob"})
	ops := &fakeOps{live: true}
	d := newTestDispatcher(w, ops, "")
	c := &fakeConn{id: "1", nick: "alice", authed: true, ready: true}

	d.Handle(c, "PRIVMSG #general :hello <@bob> & bye")

	want := "chan:C1:hello <@U_BOB> &amp; bye"
	if len(ops.calls) != 1 || ops.calls[0] != want {
		t.Fatalf("got calls %v, want [%q]", ops.calls, want)
	}
}

func TestGatewayCommandAddressedToX(t *testing.T) {
	w := world.New()
	ops := &fakeOps{live: true}
	d := newTestDispatcher(w, ops, "")
	c := &fakeConn{id: "1", nick: "alice", authed: true, ready: true}

	d.Handle(c, "PRIVMSG x :disconnect")

	if len(ops.calls) == 0 {
		t.Fatalf("expected gateway disconnect command to call ops.Disconnect")
	}
}

func TestInviteKickUnknownNickEchoesRequestedName(t *testing.T) {
	w := world.New()
	w.UpdateChannel(world.KindPublic, world.ChannelSnapshot{ID: "C1", ProposedName: "general"})
	ops := &fakeOps{live: true}
	d := newTestDispatcher(w, ops, "")
	c := &fakeConn{id: "1", nick: "alice", authed: true, ready: true}

	d.Handle(c, "INVITE ghost #general")

	if !strings.Contains(lastSent(c), "ghost") {
		t.Fatalf("expected 401 to echo the originally requested name %q, got %q", "ghost", lastSent(c))
	}
}
