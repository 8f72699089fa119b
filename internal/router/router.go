// Package router is the sole mutator of the world (spec §4.7): it
// applies one decoded upstream event at a time, updates world state,
// and fans the consequence out to every ready IRC client. It depends
// on sessionops.Ops for anything that needs an upstream API call
// (file fetches, deferred user lookups) and fanout.Broadcaster for
// emitting IRC lines, never importing either's concrete package.
package router

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/slackbridge/internal/fanout"
	"github.com/vovakirdan/slackbridge/internal/sessionops"
	"github.com/vovakirdan/slackbridge/internal/upstream/events"
	"github.com/vovakirdan/slackbridge/internal/wire"
	"github.com/vovakirdan/slackbridge/internal/world"
)

const maxInlineFileBytes = 65536

// Router applies upstream events to the world and broadcasts.
type Router struct {
	world *world.World
	ops   sessionops.Ops
	out   fanout.Broadcaster
	log   *zerolog.Logger
}

// New constructs a Router. ops and out are narrow interfaces
// satisfied by *session.Session and the IRC listener's client
// registry respectively, wired by the gateway supervisor.
func New(w *world.World, ops sessionops.Ops, out fanout.Broadcaster, log *zerolog.Logger) *Router {
	return &Router{world: w, ops: ops, out: out, log: log}
}

// Handle dispatches one decoded event per spec §4.7. Always called
// from the shared loop goroutine.
func (r *Router) Handle(ev events.Event) {
	switch ev.Kind {
	case events.KindPresenceChange, events.KindManualPresenceChange:
		r.handlePresence(ev.Presence)
	case events.KindIMOpen:
		r.handleIMOpen(ev.IMOpen)
	case events.KindIMClose:
		r.handleIMClose(ev.IMClose)
	case events.KindGroupJoined:
		r.handleChannelLinked(world.KindGroup, ev.ChannelLinked)
	case events.KindChannelJoined:
		r.handleChannelLinked(world.KindPublic, ev.ChannelLinked)
	case events.KindGroupLeft, events.KindChannelLeft:
		r.handleChannelLeft(ev.ChannelLeft)
	case events.KindGroupArchive, events.KindChannelArchive:
		r.handleChannelArchive(ev.ChannelGone)
	case events.KindMemberJoinedChannel:
		r.handleMembership(ev.Membership, true)
	case events.KindMemberLeftChannel:
		r.handleMembership(ev.Membership, false)
	case events.KindMessage:
		r.handleMessage(ev.Message)
	case events.KindPong:
		r.ops.Pong()
	case events.KindError:
		if ev.Error != nil {
			r.out.Notice(ev.Error.Msg)
		}
	case events.KindUnknown:
		// Ignored per spec §4.7.
	}
}

func (r *Router) handlePresence(p *events.PresenceChange) {
	if p == nil {
		return
	}
	presence := world.PresenceActive
	if p.Presence == "away" {
		presence = world.PresenceAway
	}
	changed := r.world.SetPresence(p.User, presence)
	if changed && r.world.IsSelf(p.User) {
		r.out.Presence(presence == world.PresenceAway)
	}
}

func (r *Router) handleIMOpen(ev *events.IMOpen) {
	if ev == nil {
		return
	}
	queued, ok := r.world.SetDMID(ev.User, ev.Channel)
	if !ok {
		return
	}
	for _, msg := range queued {
		r.ops.SendToUser(ev.User, msg)
	}
}

func (r *Router) handleIMClose(ev *events.IMClose) {
	if ev == nil {
		return
	}
	r.world.ClearDMID(ev.User)
}

func (r *Router) handleChannelLinked(kind world.Kind, ev *events.ChannelLinked) {
	if ev == nil {
		return
	}
	c := ev.Channel
	r.world.UpdateChannel(kind, world.ChannelSnapshot{
		ID:           c.ID,
		ProposedName: c.Name,
		Topic:        c.Topic.Value,
		MemberIDs:    c.Members,
	})
	if self := r.world.Self(); self != nil {
		r.out.Join(self.ID, c.ID)
	}
}

func (r *Router) handleChannelLeft(ev *events.ChannelLeftEvent) {
	if ev == nil {
		return
	}
	self := r.world.Self()
	if self == nil {
		return
	}
	if r.world.Part(self.ID, ev.Channel) {
		r.out.Part(self.ID, ev.Channel, "")
	}
}

func (r *Router) handleChannelArchive(ev *events.ChannelArchived) {
	if ev == nil {
		return
	}
	self := r.world.Self()
	if self != nil && r.world.Part(self.ID, ev.Channel) {
		r.out.Part(self.ID, ev.Channel, "")
	}
	r.world.DeleteChannel(ev.Channel)
}

func (r *Router) handleMembership(ev *events.MembershipChange, joined bool) {
	if ev == nil {
		return
	}
	if joined {
		if r.world.Join(ev.User, ev.Channel) {
			r.out.Join(ev.User, ev.Channel)
		}
		return
	}
	if r.world.Part(ev.User, ev.Channel) {
		r.out.Part(ev.User, ev.Channel, "")
	}
}

func (r *Router) handleMessage(m *events.Message) {
	if m == nil {
		return
	}
	authorID := m.AuthorID()
	if authorID == "" {
		return
	}
	if _, ok := r.world.User(authorID); !ok {
		r.recordUnknownUser(authorID)
	}

	body := m.Text
	for _, a := range m.Attachments {
		body = wire.FlattenAttachment(body, a.Title, a.Text, a.TitleLink)
	}

	if m.Channel != "" {
		if m.Subtype == "channel_topic" || m.Subtype == "group_topic" {
			if c, ok := r.world.Channel(m.Channel); ok {
				c.Topic = m.Text
				r.out.Topic(m.Channel, authorID, m.Text)
			}
			return
		}
		for _, line := range wire.SplitLines(wire.WithSubtypePrefix(m.Subtype, body)) {
			r.out.ChannelMessage(m.Channel, authorID, line)
		}
		r.ops.ScheduleMark(m.Channel, m.TS)
	} else {
		for _, line := range wire.SplitLines(wire.WithSubtypePrefix(m.Subtype, body)) {
			r.out.DirectMessage(authorID, line)
		}
	}

	if m.Subtype == "file_share" && m.File != nil {
		r.inlineFile(m.Channel, authorID, m.File.ID)
	}
}

func (r *Router) recordUnknownUser(id string) {
	r.world.RecordUnknownUser(id)
	r.ops.CallAsync("users.info", map[string]string{"user": id}, func(body []byte, err error) {
		if err != nil {
			r.log.Warn().Err(err).Str("user", id).Msg("users.info lookup failed")
			return
		}
		var resp struct {
			User struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				RealName string `json:"real_name"`
			} `json:"user"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			r.log.Warn().Err(err).Str("user", id).Msg("decode users.info response")
			return
		}
		r.world.UpdateUser(world.UserSnapshot{
			ID:           resp.User.ID,
			ProposedNick: resp.User.Name,
			Realname:     resp.User.RealName,
		})
	})
}

// inlineFile fetches a shared file's content and emits it as a
// message with a ">file_id" pseudo-subtype, per spec §4.7. Files over
// the inline size cap are suppressed, not truncated.
func (r *Router) inlineFile(channelID, authorID, fileID string) {
	r.ops.FetchFile(fileID, func(body []byte, err error) {
		if err != nil {
			r.log.Warn().Err(err).Str("file", fileID).Msg("file fetch failed")
			return
		}
		if len(body) > maxInlineFileBytes {
			return
		}
		prefix := fmt.Sprintf(">%s", fileID)
		for _, line := range wire.SplitLines(wire.WithSubtypePrefix(prefix, string(body))) {
			if channelID != "" {
				r.out.ChannelMessage(channelID, authorID, line)
			} else {
				r.out.DirectMessage(authorID, line)
			}
		}
	})
}
