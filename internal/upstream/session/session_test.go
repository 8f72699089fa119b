package session

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vovakirdan/slackbridge/internal/loop"
	"github.com/vovakirdan/slackbridge/internal/upstream/events"
	"github.com/vovakirdan/slackbridge/internal/world"
)

// fakeTransport is a minimal, deterministic stand-in for
// transport.Transport: CallMethod records every call it received so
// tests can assert on method/params, and the event/close channels are
// driven explicitly by the test instead of a real socket.
type fakeTransport struct {
	bootstrapBody []byte
	bootstrapErr  error
	dialErr       error

	eventsCh chan events.Event
	closedCh chan struct{}
	calls    chan recordedCall
}

type recordedCall struct {
	method string
	params url.Values
}

func newFakeTransport(bootstrapBody []byte) *fakeTransport {
	return &fakeTransport{
		bootstrapBody: bootstrapBody,
		eventsCh:      make(chan events.Event, 8),
		closedCh:      make(chan struct{}),
		calls:         make(chan recordedCall, 16),
	}
}

func (f *fakeTransport) Dial(ctx context.Context, streamURL string) error { return f.dialErr }

func (f *fakeTransport) CallMethod(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	select {
	case f.calls <- recordedCall{method, params}:
	default:
	}
	if method == "rtm.start" {
		return f.bootstrapBody, f.bootstrapErr
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeTransport) SendFrame(ctx context.Context, frameType string) error { return nil }
func (f *fakeTransport) Events() <-chan events.Event                          { return f.eventsCh }
func (f *fakeTransport) Closed() <-chan struct{}                              { return f.closedCh }

func (f *fakeTransport) Close() error {
	select {
	case <-f.closedCh:
	default:
		close(f.closedCh)
	}
	return nil
}

func (f *fakeTransport) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return []byte("file-body"), nil
}

type fakeRouter struct {
	handled chan events.Event
}

func (r *fakeRouter) Handle(ev events.Event) {
	select {
	case r.handled <- ev:
	default:
	}
}

// fakeBroadcaster implements fanout.Broadcaster with buffered channels
// instead of real IRC writes, so tests can assert on what the session
// asked to be broadcast.
type fakeBroadcaster struct {
	notices      chan string
	welcomeReady chan struct{}
	disconnects  chan string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		notices:      make(chan string, 16),
		welcomeReady: make(chan struct{}, 4),
		disconnects:  make(chan string, 4),
	}
}

func (b *fakeBroadcaster) Join(string, string)                    {}
func (b *fakeBroadcaster) Part(string, string, string)            {}
func (b *fakeBroadcaster) Nick(string, string)                    {}
func (b *fakeBroadcaster) Presence(bool)                          {}
func (b *fakeBroadcaster) Topic(string, string, string)           {}
func (b *fakeBroadcaster) ChannelMessage(string, string, string)  {}
func (b *fakeBroadcaster) DirectMessage(string, string)           {}

func (b *fakeBroadcaster) Notice(text string) {
	select {
	case b.notices <- text:
	default:
	}
}

func (b *fakeBroadcaster) DisconnectAll(reason string) {
	select {
	case b.disconnects <- reason:
	default:
	}
}

func (b *fakeBroadcaster) WelcomeReady() {
	select {
	case b.welcomeReady <- struct{}{}:
	default:
	}
}

const bootstrapFixture = `{
  "self": {"id": "U1"},
  "url": "wss://example.invalid/stream",
  "users": [{"id":"U1","name":"alice","real_name":"Alice"}],
  "channels": [{"id":"C1","name":"general","is_member":true,"members":["U1"]}],
  "groups": [],
  "ims": []
}`

func TestSessionBootstrapGoesLiveAndPopulatesWorld(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := newFakeTransport([]byte(bootstrapFixture))
	w := world.New()
	router := &fakeRouter{handled: make(chan events.Event, 8)}
	broadcaster := newFakeBroadcaster()
	l := loop.New(64)
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	s := New(l, tr, w, router, broadcaster, &logger)
	s.Start(ctx)

	select {
	case <-broadcaster.welcomeReady:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for WelcomeReady")
	}

	require.Equal(t, Live, s.State())

	var self *world.User
	var ok bool
	l.PostSync(func() { self, ok = w.User("U1") })
	require.True(t, ok)
	require.Equal(t, "alice", self.Nick)

	var ch *world.Channel
	l.PostSync(func() { ch, ok = w.Channel("C1") })
	require.True(t, ok)
	require.True(t, ch.HasMember("U1"))

	cancel()
	tr.Close()
}

func TestSessionBootstrapFailureNoticesAndCoolsDown(t *testing.T) {
	tr := newFakeTransport(nil)
	tr.bootstrapErr = context.DeadlineExceeded
	w := world.New()
	router := &fakeRouter{handled: make(chan events.Event, 8)}
	broadcaster := newFakeBroadcaster()
	l := loop.New(64)
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	s := New(l, tr, w, router, broadcaster, &logger)
	s.Start(ctx)

	select {
	case notice := <-broadcaster.notices:
		require.Contains(t, notice, "RTM connection failed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bootstrap-failure notice")
	}

	require.Eventually(t, func() bool { return s.State() == Cooling }, time.Second, 10*time.Millisecond)
}

func TestRecordPingMissTearsDownOnSecondConsecutiveMiss(t *testing.T) {
	tr := newFakeTransport(nil)
	w := world.New()
	l := loop.New(8)
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	s := New(l, tr, w, &fakeRouter{handled: make(chan events.Event, 1)}, newFakeBroadcaster(), &logger)

	require.False(t, s.recordPingMiss(), "first missed pong must not tear down yet")
	require.True(t, s.recordPingMiss(), "second consecutive missed pong must tear down")
}

func TestTeardownBroadcastsNoticeOnStreamClose(t *testing.T) {
	tr := newFakeTransport(nil)
	w := world.New()
	l := loop.New(8)
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	broadcaster := newFakeBroadcaster()
	s := New(l, tr, w, &fakeRouter{handled: make(chan events.Event, 1)}, broadcaster, &logger)

	s.teardown("stream closed")

	select {
	case notice := <-broadcaster.notices:
		require.Equal(t, "stream closed", notice)
	case <-time.After(time.Second):
		t.Fatal("expected a NOTICE broadcast before disconnecting on stream close")
	}

	select {
	case reason := <-broadcaster.disconnects:
		require.Equal(t, "stream closed", reason)
	case <-time.After(time.Second):
		t.Fatal("expected DisconnectAll to run")
	}

	require.Equal(t, TearingDown, s.State())

	// A second teardown call is a no-op: no further notice or disconnect.
	s.teardown("stream closed")
	select {
	case n := <-broadcaster.notices:
		t.Fatalf("expected no second notice, got %q", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleMarkKeepsOnlyLastTimestampPerChannel(t *testing.T) {
	tr := newFakeTransport(nil)
	w := world.New()
	w.UpdateChannel(world.KindPublic, world.ChannelSnapshot{ID: "C1", ProposedName: "general"})
	l := loop.New(8)
	logger := zerolog.Nop()
	s := New(l, tr, w, &fakeRouter{handled: make(chan events.Event, 1)}, newFakeBroadcaster(), &logger)

	s.ScheduleMark("C1", "100.1")
	s.ScheduleMark("C1", "100.9")
	require.Len(t, s.markQueue, 1)
	require.Equal(t, "100.9", s.markQueue["C1"])

	s.flushMarks()
	require.Empty(t, s.markQueue)

	select {
	case c := <-tr.calls:
		require.Equal(t, "channels.mark", c.method)
		require.Equal(t, "100.9", c.params.Get("ts"))
	case <-time.After(time.Second):
		t.Fatal("expected exactly one channels.mark call")
	}
}

func TestSendToUserQueuesThenFlushesOnDMOpen(t *testing.T) {
	tr := newFakeTransport(nil)
	w := world.New()
	w.UpdateUser(world.UserSnapshot{ID: "U_BOB", ProposedNick: "bob"})
	l := loop.New(8)
	logger := zerolog.Nop()
	s := New(l, tr, w, &fakeRouter{handled: make(chan events.Event, 1)}, newFakeBroadcaster(), &logger)

	s.SendToUser("U_BOB", "hi")
	s.SendToUser("U_BOB", "there")

	u, ok := w.User("U_BOB")
	require.True(t, ok)
	require.Equal(t, world.DMPending, u.DMState)
	require.Equal(t, []string{"hi", "there"}, u.TxQueue)

	queued, ok := w.SetDMID("U_BOB", "D1")
	require.True(t, ok)
	require.Equal(t, []string{"hi", "there"}, queued)
	require.Empty(t, u.TxQueue)
}
