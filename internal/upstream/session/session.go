// Package session implements the upstream session lifecycle state
// machine from spec §4.3: bootstrap, live event delivery, ping
// watchdog, read-mark batching, outbound DM queueing, teardown and
// cooldown-and-retry. It is the one component with its own driver
// goroutine — bootstrap and API calls block on HTTP, which must never
// block the shared loop — and every touch of world or the router goes
// through loop.Post/PostSync so the single-mutator invariant holds.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/slackbridge/internal/fanout"
	"github.com/vovakirdan/slackbridge/internal/loop"
	"github.com/vovakirdan/slackbridge/internal/upstream/events"
	"github.com/vovakirdan/slackbridge/internal/upstream/transport"
	"github.com/vovakirdan/slackbridge/internal/world"
)

// State enumerates the lifecycle states spec §4.3 names.
type State int

const (
	Idle State = iota
	Bootstrapping
	Live
	TearingDown
	Cooling
)

const (
	pingInterval    = 60 * time.Second
	maxPingMisses   = 2
	markDebounce    = 5 * time.Second
	cooldownPeriod  = 5 * time.Second
	bootstrapMethod = "rtm.start"
)

// EventHandler is the router's shape, from session's point of view:
// apply one decoded event to the world and fan it out. Defined here
// (not in router) so session never imports router — gateway wires a
// *router.Router into this field, satisfied structurally.
type EventHandler interface {
	Handle(ev events.Event)
}

// Session drives the upstream lifecycle. Construct with New, then
// call Start once; it re-bootstraps itself forever on teardown until
// ctx is cancelled.
type Session struct {
	log         *zerolog.Logger
	loop        *loop.Loop
	transport   transport.Transport
	world       *world.World
	router      EventHandler
	broadcaster fanout.Broadcaster

	ctx    context.Context
	cancel context.CancelFunc

	state      State
	pingMisses int
	pingTimer  *time.Timer

	markQueue map[string]string
	markArmed bool
}

// New constructs a Session. Start must be called once to begin the
// bootstrapping→live→... cycle.
func New(l *loop.Loop, t transport.Transport, w *world.World, router EventHandler, b fanout.Broadcaster, log *zerolog.Logger) *Session {
	return &Session{
		log:         log,
		loop:        l,
		transport:   t,
		world:       w,
		router:      router,
		broadcaster: b,
	}
}

// Start begins the bootstrap cycle. ctx governs the session's entire
// lifetime: cancelling it closes the event stream and stops retrying.
// No teardown NOTICE is broadcast and the world is left as it was.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.bootstrapLoop()
}

// State reports the current lifecycle state. Safe to call from any
// goroutine: state is only ever mutated on the shared loop, and a
// stale read racing a concurrent transition is harmless — callers
// (e.g. a freshly accepted IRC connection deciding whether to welcome
// immediately) re-check after the transition settles.
func (s *Session) State() State {
	var st State
	s.loop.PostSync(func() { st = s.state })
	return st
}

func (s *Session) bootstrapLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.loop.Post(func() { s.state = Bootstrapping })

		if err := s.bootstrapOnce(); err != nil {
			s.log.Warn().Err(err).Msg("bootstrap failed, cooling down")
			msg := fmt.Sprintf("RTM connection failed: %s", err)
			s.loop.Post(func() { s.broadcaster.Notice(msg) })
			s.cool()
			continue
		}

		s.loop.Post(func() {
			s.state = Live
			s.broadcaster.WelcomeReady()
		})
		s.runPingWatchdog()
		if s.ctx.Err() != nil {
			// The shared loop may already have stopped with the same
			// context, so a loop-posted teardown could never run.
			_ = s.transport.Close()
			return
		}
		// runPingWatchdog returns when the stream closes or ping
		// times out; either way we tear down and cool before retrying.
		s.teardown("stream closed")
		s.cool()
	}
}

type bootstrapResponse struct {
	Self struct {
		ID string `json:"id"`
	} `json:"self"`
	URL      string             `json:"url"`
	Users    []bootstrapUser    `json:"users"`
	Channels []bootstrapChannel `json:"channels"`
	Groups   []bootstrapChannel `json:"groups"`
	IMs      []bootstrapIM      `json:"ims"`
}

type bootstrapUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Presence string `json:"presence"`
}

type bootstrapChannel struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Topic    struct{ Value string `json:"value"` } `json:"topic"`
	Members  []string `json:"members"`
	IsMember bool     `json:"is_member"`
	IsOpen   bool     `json:"is_open"`
}

type bootstrapIM struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

// bootstrapOnce runs the blocking handshake and event-stream dial on
// this driver goroutine, then populates the world and starts the
// event-forwarding goroutine via PostSync so nothing can observe the
// world between self_id being set and entities being populated.
func (s *Session) bootstrapOnce() error {
	body, err := s.transport.CallMethod(s.ctx, bootstrapMethod, nil)
	if err != nil {
		return err
	}

	var resp bootstrapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode bootstrap response: %w", err)
	}

	if err := s.transport.Dial(s.ctx, resp.URL); err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}

	s.loop.PostSync(func() { s.populateWorld(resp) })
	go s.forwardEvents()
	return nil
}

func (s *Session) populateWorld(resp bootstrapResponse) {
	s.world.SelfID = resp.Self.ID

	for _, u := range resp.Users {
		presence := world.PresenceActive
		if u.Presence == "away" {
			presence = world.PresenceAway
		}
		s.world.UpdateUser(world.UserSnapshot{
			ID:           u.ID,
			ProposedNick: u.Name,
			Realname:     u.RealName,
			Presence:     &presence,
		})
	}

	for _, c := range resp.Channels {
		if !c.IsMember {
			continue
		}
		s.world.UpdateChannel(world.KindPublic, world.ChannelSnapshot{
			ID:           c.ID,
			ProposedName: c.Name,
			Topic:        c.Topic.Value,
			MemberIDs:    c.Members,
		})
	}

	for _, g := range resp.Groups {
		s.world.UpdateChannel(world.KindGroup, world.ChannelSnapshot{
			ID:           g.ID,
			ProposedName: g.Name,
			Topic:        g.Topic.Value,
			MemberIDs:    g.Members,
			Closed:       !g.IsOpen,
		})
	}

	for _, im := range resp.IMs {
		s.world.SetDMID(im.User, im.ID)
	}
}

func (s *Session) forwardEvents() {
	evs := s.transport.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			evCopy := ev
			s.loop.Post(func() { s.router.Handle(evCopy) })
		}
	}
}

// runPingWatchdog sends a ping frame every 60s and blocks until the
// stream closes or two consecutive pongs are missed.
func (s *Session) runPingWatchdog() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.transport.Closed():
			return
		case <-ticker.C:
			if s.recordPingMiss() {
				s.teardown("RTM ping timeout")
				return
			}
			_ = s.transport.SendFrame(s.ctx, "ping")
		}
	}
}

// recordPingMiss increments the miss counter and reports whether the
// session has now missed maxPingMisses consecutive pongs.
func (s *Session) recordPingMiss() bool {
	var timedOut bool
	s.loop.PostSync(func() {
		s.pingMisses++
		timedOut = s.pingMisses >= maxPingMisses
	})
	return timedOut
}

// Pong resets the ping-miss counter. Called by the router when a pong
// frame arrives; always invoked from the loop goroutine.
func (s *Session) Pong() {
	s.pingMisses = 0
}

// teardown is idempotent: a ping timeout and a concurrent stream close
// can both try to tear down the same live session, but only the first
// does anything.
func (s *Session) teardown(reason string) {
	var proceed bool
	s.loop.PostSync(func() {
		if s.state == TearingDown || s.state == Cooling {
			return
		}
		proceed = true
		s.state = TearingDown
		s.broadcaster.Notice(reason)
		s.world.Reset()
		s.markQueue = nil
		s.markArmed = false
		s.pingMisses = 0
		s.broadcaster.DisconnectAll(reason)
	})
	if !proceed {
		return
	}
	_ = s.transport.Close()
}

func (s *Session) cool() {
	s.loop.Post(func() { s.state = Cooling })
	select {
	case <-s.ctx.Done():
	case <-time.After(cooldownPeriod):
	}
}

// CallAsync implements sessionops.Ops.
func (s *Session) CallAsync(method string, params map[string]string, done func(body []byte, err error)) {
	go func() {
		vals := url.Values{}
		for k, v := range params {
			vals.Set(k, v)
		}
		body, err := s.transport.CallMethod(s.ctx, method, vals)
		s.loop.Post(func() {
			if err != nil {
				s.broadcaster.Notice("API error: " + err.Error())
			}
			done(body, err)
		})
	}()
}

// FetchFile implements sessionops.Ops: resolve the file's download URL
// via files.info, then fetch its bytes.
func (s *Session) FetchFile(fileID string, done func(body []byte, err error)) {
	go func() {
		body, err := s.transport.CallMethod(s.ctx, "files.info", url.Values{"file": {fileID}})
		if err != nil {
			s.loop.Post(func() { done(nil, err) })
			return
		}
		var resp struct {
			File struct {
				URLPrivate string `json:"url_private"`
			} `json:"file"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			s.loop.Post(func() { done(nil, fmt.Errorf("decode files.info response: %w", err)) })
			return
		}
		data, err := s.transport.Download(s.ctx, resp.File.URLPrivate)
		s.loop.Post(func() { done(data, err) })
	}()
}

// ScheduleMark implements sessionops.Ops. Always called from the loop
// goroutine (router runs inside a posted closure), so the queue
// itself needs no synchronization; only the debounce timer's fire
// re-enters via Post.
func (s *Session) ScheduleMark(channelID, ts string) {
	if s.markQueue == nil {
		s.markQueue = make(map[string]string)
	}
	s.markQueue[channelID] = ts
	if s.markArmed {
		return
	}
	s.markArmed = true
	time.AfterFunc(markDebounce, func() { s.loop.Post(s.flushMarks) })
}

func (s *Session) flushMarks() {
	queue := s.markQueue
	s.markQueue = nil
	s.markArmed = false

	for channelID, ts := range queue {
		method := "channels.mark"
		if c, ok := s.world.Channel(channelID); ok && c.Kind == world.KindGroup {
			method = "groups.mark"
		}
		cid, timestamp := channelID, ts
		s.CallAsync(method, map[string]string{"channel": cid, "ts": timestamp}, func(_ []byte, err error) {
			if err != nil {
				s.log.Warn().Err(err).Str("channel", cid).Msg("read-mark failed")
			}
		})
	}
}

// SendToUser implements sessionops.Ops, per spec §4.3's outbound DM
// queueing: send immediately if the conduit is present, queue and
// kick off im.open if absent, just queue if already pending.
func (s *Session) SendToUser(userID, text string) {
	u, ok := s.world.User(userID)
	if !ok {
		return
	}
	switch u.DMState {
	case world.DMPresent:
		s.sendChannelText(u.DMID, text)
	case world.DMPending:
		s.world.QueueDM(userID, text)
	case world.DMAbsent:
		s.world.BeginDMPending(userID, text)
		nick := u.Nick
		s.CallAsync("im.open", map[string]string{"user": userID}, func(_ []byte, err error) {
			if err == nil {
				// Success: the im_open stream event (already inbound,
				// or about to arrive) drives world.SetDMID and the
				// queue flush via the router.
				return
			}
			drained, _ := s.world.ClearDMID(userID)
			for _, msg := range drained {
				s.broadcaster.Notice(fmt.Sprintf("DM to %s failed: %s", nick, msg))
			}
		})
	}
}

// SendToChannel implements sessionops.Ops.
func (s *Session) SendToChannel(channelID, text string) {
	s.sendChannelText(channelID, text)
}

func (s *Session) sendChannelText(channelID, text string) {
	s.CallAsync("chat.postMessage", map[string]string{"channel": channelID, "text": text}, func(_ []byte, err error) {
		if err != nil {
			s.log.Warn().Err(err).Str("channel", channelID).Msg("send failed")
		}
	})
}

// SelfPresence implements sessionops.Ops.
func (s *Session) SelfPresence(away bool) {
	presence := "active"
	if away {
		presence = "away"
	}
	s.CallAsync("users.setPresence", map[string]string{"presence": presence}, func(_ []byte, err error) {
		if err != nil {
			s.log.Warn().Err(err).Msg("set presence failed")
		}
	})
}

// IsLive implements sessionops.Ops. Always called from the loop
// goroutine by dispatch, same as every other state read.
func (s *Session) IsLive() bool {
	return s.state == Live
}

// Disconnect implements sessionops.Ops: tear down now, independent of
// the bootstrap loop's own retry timing (it will pick back up from
// cooling, same as any other teardown).
func (s *Session) Disconnect(reason string) {
	go func() {
		s.teardown(reason)
	}()
}
