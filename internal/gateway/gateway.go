// Package gateway wires the world, upstream transport, session,
// router, dispatcher and IRC listener together and runs the shared
// loop — the supervisor component from spec §2.
package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/slackbridge/internal/dispatch"
	"github.com/vovakirdan/slackbridge/internal/ircserver"
	logdump "github.com/vovakirdan/slackbridge/internal/logging"
	"github.com/vovakirdan/slackbridge/internal/loop"
	"github.com/vovakirdan/slackbridge/internal/router"
	"github.com/vovakirdan/slackbridge/internal/upstream/session"
	"github.com/vovakirdan/slackbridge/internal/upstream/transport"
	"github.com/vovakirdan/slackbridge/internal/world"
)

const loopBuffer = 256

// Config is everything the supervisor needs to start the bridge.
type Config struct {
	UpstreamBaseURL string
	UpstreamToken   string

	Port           int
	UnixSocketPath string
	Password       string

	// DebugDump is the config file's initial debug_dump value; the
	// gateway "debug_dump" command and config hot-reload both toggle
	// it afterwards.
	DebugDump bool
	// DebugDumpPath is where wire-level frames are written when
	// dumping is enabled. Not a config.Config field (spec.md §6 names
	// no such key); fixed relative to the working directory.
	DebugDumpPath string
}

// Gateway is the assembled, runnable bridge.
type Gateway struct {
	cfg        Config
	log        *zerolog.Logger
	loop       *loop.Loop
	world      *world.World
	listener   *ircserver.Listener
	session    *session.Session
	dispatcher *dispatch.Dispatcher
	wireDump   *logdump.WireDumper
}

// New assembles every component without starting anything.
func New(cfg Config, log *zerolog.Logger) (*Gateway, error) {
	ln, err := ircserver.Bind(cfg.Port, cfg.UnixSocketPath)
	if err != nil {
		return nil, fmt.Errorf("bind listener: %w", err)
	}

	l := loop.New(loopBuffer)
	w := world.New()

	dumpPath := cfg.DebugDumpPath
	if dumpPath == "" {
		dumpPath = "slackbridge-wire.log"
	}
	wireDump := logdump.NewWireDumper(dumpPath, cfg.DebugDump)

	tr := transport.New(transport.Config{BaseURL: cfg.UpstreamBaseURL, Token: cfg.UpstreamToken, WireDump: wireDump}, log)

	// ops and broadcaster are both implemented by components
	// constructed below; the forward declarations here exist only
	// because router, dispatcher and listener each need a reference to
	// the other two before all three exist.
	var sess *session.Session
	var reg *ircserver.Registry

	opsRef := &opsForwarder{}
	broadcastRef := &broadcastForwarder{}

	rt := router.New(w, opsRef, broadcastRef, log)
	sess = session.New(l, tr, w, rt, broadcastRef, log)
	opsRef.target = sess

	d := dispatch.New(w, opsRef, broadcastRef, cfg.Password, log)
	d.SetDebugDumpHook(wireDump.SetEnabled)

	lst := ircserver.New(ln, l, w, d, log)
	reg = lst.Registry()
	broadcastRef.target = reg

	gw := &Gateway{cfg: cfg, log: log, loop: l, world: w, listener: lst, session: sess, dispatcher: d, wireDump: wireDump}
	return gw, nil
}

// Run starts the listener and upstream session, then drains the
// shared loop until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	go g.listener.Serve(ctx)
	g.session.Start(ctx)
	g.loop.Run(ctx)
	_ = g.wireDump.Close()
}

// SetPassword hot-swaps the IRC server password, called by the
// config-file watcher (SPEC_FULL.md §4.9). The watcher runs on its
// own goroutine; the write is posted onto the shared loop so it lands
// at a suspension point rather than racing a line currently being
// dispatched, per spec §5.
func (g *Gateway) SetPassword(password string) {
	g.loop.Post(func() { g.dispatcher.SetPassword(password) })
}

// SetDebugDump hot-swaps wire-level dumping, called by the config-file
// watcher. The toggle itself is a lock-free atomic on WireDumper, so
// no loop hop is required, but it is never reached from a world-touching
// path either way.
func (g *Gateway) SetDebugDump(enabled bool) {
	g.wireDump.SetEnabled(enabled)
}
