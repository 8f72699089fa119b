// Package events decodes upstream real-time-stream frames into typed
// Go values. Design note §9 in the spec calls for turning the
// upstream's dynamically-typed "frame with a type field" into tagged
// variants rather than passing raw maps around; this package is that
// boundary — everything past Decode deals in concrete struct types,
// never json.RawMessage or map[string]any.
package events

import "encoding/json"

// envelope is the wire shape every stream frame shares: a
// discriminator plus whatever payload goes with it.
type envelope struct {
	Type string `json:"type"`
}

// Kind enumerates the event types the router in spec §4.7 recognizes.
// Anything else decodes to KindUnknown and the router drops it.
type Kind string

const (
	KindPresenceChange       Kind = "presence_change"
	KindManualPresenceChange Kind = "manual_presence_change"
	KindIMOpen               Kind = "im_open"
	KindIMClose              Kind = "im_close"
	KindGroupJoined          Kind = "group_joined"
	KindChannelJoined        Kind = "channel_joined"
	KindGroupLeft            Kind = "group_left"
	KindChannelLeft          Kind = "channel_left"
	KindGroupArchive         Kind = "group_archive"
	KindChannelArchive       Kind = "channel_archive"
	KindMemberJoinedChannel  Kind = "member_joined_channel"
	KindMemberLeftChannel    Kind = "member_left_channel"
	KindMessage              Kind = "message"
	KindPong                 Kind = "pong"
	KindError                Kind = "error"
	KindUnknown              Kind = ""
)

// Event is the sum type the router switches on. Exactly one of the
// typed fields below is meaningful, selected by Kind; Decode never
// populates more than one.
type Event struct {
	Kind Kind

	Presence      *PresenceChange
	IMOpen        *IMOpen
	IMClose       *IMClose
	ChannelLinked *ChannelLinked // group_joined / channel_joined
	ChannelLeft   *ChannelLeftEvent
	ChannelGone   *ChannelArchived // group_archive / channel_archive
	Membership    *MembershipChange
	Message       *Message
	Error         *ErrorEvent
}

// PresenceChange covers presence_change and manual_presence_change.
type PresenceChange struct {
	User     string `json:"user"`
	Presence string `json:"presence"`
}

// IMOpen is emitted when a direct-message conduit becomes usable.
type IMOpen struct {
	User    string `json:"user"`
	Channel string `json:"channel"`
}

// IMClose is emitted when a direct-message conduit is torn down.
type IMClose struct {
	User    string `json:"user"`
	Channel string `json:"channel"`
}

// ChannelLinked covers group_joined / channel_joined: self has joined
// (or been added to) a channel or group.
type ChannelLinked struct {
	Channel ChannelPayload `json:"channel"`
}

// ChannelPayload is the nested channel/group object several event
// kinds carry.
type ChannelPayload struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Topic   TopicRef `json:"topic"`
	Members []string `json:"members"`
	IsGroup bool     `json:"is_group"`
	IsOpen  bool     `json:"is_open,omitempty"`
}

// TopicRef mirrors the nested {value: "..."} shape topic fields carry.
type TopicRef struct {
	Value string `json:"value"`
}

// ChannelLeftEvent covers group_left / channel_left.
type ChannelLeftEvent struct {
	Channel string `json:"channel"`
}

// ChannelArchived covers group_archive / channel_archive.
type ChannelArchived struct {
	Channel string `json:"channel"`
}

// MembershipChange covers member_joined_channel / member_left_channel.
type MembershipChange struct {
	User    string `json:"user"`
	Channel string `json:"channel"`
}

// Message covers the message event, including its optional subtype
// and attachments.
type Message struct {
	Channel string       `json:"channel"`
	User    string       `json:"user"`
	BotID   string       `json:"bot_id"`
	Text    string       `json:"text"`
	TS      string       `json:"ts"`
	Subtype string       `json:"subtype"`
	File    *FileRef     `json:"file,omitempty"`
	Comment *CommentRef  `json:"comment,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// CommentRef carries the commenting user for file_comment-style
// messages, one of the three places spec §4.7 says to resolve a
// message's author from.
type CommentRef struct {
	User string `json:"user"`
}

// FileRef references an uploaded file for file_share subtype messages.
type FileRef struct {
	ID string `json:"id"`
}

// Attachment is flattened into the message body per spec §4.6.
type Attachment struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	TitleLink string `json:"title_link"`
}

// AuthorID resolves the message's author per spec §4.7: user, then
// comment.user, then bot_id, in that order.
func (m *Message) AuthorID() string {
	if m.User != "" {
		return m.User
	}
	if m.Comment != nil && m.Comment.User != "" {
		return m.Comment.User
	}
	return m.BotID
}

// ErrorEvent is a server-pushed error frame, broadcast as a NOTICE.
type ErrorEvent struct {
	Msg string `json:"msg"`
}

// Decode parses a raw stream frame into an Event. Unrecognized Type
// values produce a KindUnknown event; the caller (router) ignores
// those, per spec §4.7's "unknown event types are ignored."
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, err
	}

	ev := Event{Kind: Kind(env.Type)}

	switch ev.Kind {
	case KindPresenceChange, KindManualPresenceChange:
		var p PresenceChange
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.Presence = &p
	case KindIMOpen:
		var p IMOpen
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.IMOpen = &p
	case KindIMClose:
		var p IMClose
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.IMClose = &p
	case KindGroupJoined, KindChannelJoined:
		var p ChannelLinked
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.ChannelLinked = &p
	case KindGroupLeft, KindChannelLeft:
		var p ChannelLeftEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.ChannelLeft = &p
	case KindGroupArchive, KindChannelArchive:
		var p ChannelArchived
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.ChannelGone = &p
	case KindMemberJoinedChannel, KindMemberLeftChannel:
		var p MembershipChange
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.Membership = &p
	case KindMessage:
		var p Message
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.Message = &p
	case KindError:
		var p ErrorEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return Event{}, err
		}
		ev.Error = &p
	case KindPong:
		// No payload beyond the envelope.
	default:
		ev.Kind = KindUnknown
	}

	return ev, nil
}
