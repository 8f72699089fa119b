// Package ircserver accepts local IRC connections, parses lines, and
// tracks per-connection registration state (spec §4.4). It owns the
// single-writer socket discipline the teacher's ws_handler.go uses
// (one goroutine reads, writes go through a mutex-guarded bufio
// writer) and the client registry that implements fanout.Broadcaster.
package ircserver

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/slackbridge/internal/dispatch"
	"github.com/vovakirdan/slackbridge/internal/loop"
	"github.com/vovakirdan/slackbridge/internal/utils"
)

const (
	firstPingDelay = 30 * time.Second
	pingCadence    = 60 * time.Second
	maxPingMisses  = 3
)

// Conn is one accepted IRC connection. It satisfies dispatch.Conn.
type Conn struct {
	id string

	netConn net.Conn
	w       *bufio.Writer
	writeMu sync.Mutex

	loop *loop.Loop
	log  *zerolog.Logger

	nick     string
	user     string
	realname string
	password string
	authed   bool
	ready    bool

	pingMisses int
	pingTimer  *time.Timer

	closed   bool
	onClosed func(*Conn)
}

func newConn(nc net.Conn, l *loop.Loop, log *zerolog.Logger, onClosed func(*Conn)) *Conn {
	return &Conn{
		id:       utils.NewID(),
		netConn:  nc,
		w:        bufio.NewWriter(nc),
		loop:     l,
		log:      log,
		onClosed: onClosed,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Nick() string            { return c.nick }
func (c *Conn) SetNick(n string)        { c.nick = n }
func (c *Conn) User() string            { return c.user }
func (c *Conn) SetUser(u string)        { c.user = u }
func (c *Conn) Realname() string        { return c.realname }
func (c *Conn) SetRealname(r string)    { c.realname = r }
func (c *Conn) Password() string        { return c.password }
func (c *Conn) SetPassword(p string)    { c.password = p }
func (c *Conn) Authed() bool            { return c.authed }
func (c *Conn) SetAuthed(a bool)        { c.authed = a }
func (c *Conn) Ready() bool             { return c.ready }
func (c *Conn) SetReady(r bool)         { c.ready = r }
func (c *Conn) ResetPingCount()         { c.pingMisses = 0 }

// Send writes one line to this connection, terminated with CRLF.
// Safe to call from any goroutine; writes are serialized.
func (c *Conn) Send(line string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	if _, err := c.w.WriteString(line + "\r\n"); err != nil {
		return
	}
	_ = c.w.Flush()
}

// Close ends the connection. Safe to call more than once.
func (c *Conn) Close(reason string) {
	if reason != "" {
		c.Send(fmt.Sprintf("ERROR :Closing Link: %s", reason))
	}
	c.writeMu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.writeMu.Unlock()
	if alreadyClosed {
		return
	}
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	_ = c.netConn.Close()
	if c.onClosed != nil {
		c.loop.Post(func() { c.onClosed(c) })
	}
}

// startPingWatchdog implements spec §4.4: first PING at 30s,
// subsequent PINGs every 60s, disconnect on the third missed PONG.
func (c *Conn) startPingWatchdog() {
	c.pingTimer = time.AfterFunc(firstPingDelay, c.pingTick)
}

func (c *Conn) pingTick() {
	var shouldClose bool
	c.loop.PostSync(func() {
		c.pingMisses++
		shouldClose = c.pingMisses >= maxPingMisses
	})
	if shouldClose {
		c.Close("Ping timeout")
		return
	}
	c.Send(fmt.Sprintf("PING :%s", serverName))
	c.pingTimer = time.AfterFunc(pingCadence, c.pingTick)
}

var _ dispatch.Conn = (*Conn)(nil)
