package ircserver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/slackbridge/internal/dispatch"
	"github.com/vovakirdan/slackbridge/internal/loop"
	"github.com/vovakirdan/slackbridge/internal/world"
)

const serverName = "localhost"

// Listener binds the IRC-facing socket — loopback TCP or a
// chmod-0600 filesystem socket — and feeds every accepted
// connection's lines through Dispatcher.Handle on the shared loop.
type Listener struct {
	net.Listener
	loop       *loop.Loop
	dispatcher *dispatch.Dispatcher
	registry   *Registry
	log        *zerolog.Logger
}

// Bind opens the listening socket. If unixSocketPath is non-empty it
// takes precedence over port, per spec §6.
func Bind(port int, unixSocketPath string) (net.Listener, error) {
	if unixSocketPath != "" {
		_ = os.Remove(unixSocketPath)
		ln, err := net.Listen("unix", unixSocketPath)
		if err != nil {
			return nil, fmt.Errorf("bind unix socket %s: %w", unixSocketPath, err)
		}
		if err := os.Chmod(unixSocketPath, 0o600); err != nil {
			return nil, fmt.Errorf("chmod unix socket: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind 127.0.0.1:%d: %w", port, err)
	}
	return ln, nil
}

// New constructs a Listener around an already-bound net.Listener.
func New(ln net.Listener, l *loop.Loop, w *world.World, d *dispatch.Dispatcher, log *zerolog.Logger) *Listener {
	return &Listener{
		Listener:   ln,
		loop:       l,
		dispatcher: d,
		registry:   newRegistry(w, d, log),
		log:        log,
	}
}

// Registry exposes the client registry, for wiring as
// fanout.Broadcaster into router and session.
func (s *Listener) Registry() *Registry { return s.registry }

// Serve accepts connections until ctx is cancelled or Accept fails.
func (s *Listener) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		nc, err := s.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.log.Warn().Err(err).Msg("accept failed")
				return
			}
		}
		s.handleConn(nc)
	}
}

func (s *Listener) handleConn(nc net.Conn) {
	c := newConn(nc, s.loop, s.log, func(conn *Conn) { s.registry.remove(conn) })
	s.loop.Post(func() { s.registry.add(c) })
	c.startPingWatchdog()

	go func() {
		reader := bufio.NewReader(nc)
		for {
			raw, err := reader.ReadString('\n')
			if raw == "" && err != nil {
				break
			}
			line := strings.TrimRight(raw, "\r\n")
			if line != "" {
				capturedLine := line
				s.loop.Post(func() { s.dispatcher.Handle(c, capturedLine) })
			}
			if err != nil {
				break
			}
		}
		c.Close("")
	}()
}
