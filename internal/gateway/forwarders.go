package gateway

import (
	"github.com/vovakirdan/slackbridge/internal/fanout"
	"github.com/vovakirdan/slackbridge/internal/sessionops"
)

// opsForwarder and broadcastForwarder break the construction cycle
// between router, session, dispatcher and the IRC listener's
// registry: each needs a reference to one of the other two before all
// three concrete values exist. A forwarder is handed out first,
// satisfying sessionops.Ops / fanout.Broadcaster, and its target is
// filled in once construction finishes — nothing calls through it
// before Gateway.Run starts the loop.
type opsForwarder struct {
	target sessionops.Ops
}

func (f *opsForwarder) CallAsync(method string, params map[string]string, done func(body []byte, err error)) {
	f.target.CallAsync(method, params, done)
}
func (f *opsForwarder) FetchFile(fileID string, done func(body []byte, err error)) {
	f.target.FetchFile(fileID, done)
}
func (f *opsForwarder) ScheduleMark(channelID, ts string)    { f.target.ScheduleMark(channelID, ts) }
func (f *opsForwarder) SendToUser(userID, text string)       { f.target.SendToUser(userID, text) }
func (f *opsForwarder) SendToChannel(channelID, text string) { f.target.SendToChannel(channelID, text) }
func (f *opsForwarder) Pong()                                { f.target.Pong() }
func (f *opsForwarder) SelfPresence(away bool)                { f.target.SelfPresence(away) }
func (f *opsForwarder) Disconnect(reason string)              { f.target.Disconnect(reason) }
func (f *opsForwarder) IsLive() bool                          { return f.target.IsLive() }

type broadcastForwarder struct {
	target fanout.Broadcaster
}

func (f *broadcastForwarder) Join(userID, channelID string) { f.target.Join(userID, channelID) }
func (f *broadcastForwarder) Part(userID, channelID, reason string) {
	f.target.Part(userID, channelID, reason)
}
func (f *broadcastForwarder) Nick(userID, newNick string) { f.target.Nick(userID, newNick) }
func (f *broadcastForwarder) Presence(away bool)          { f.target.Presence(away) }
func (f *broadcastForwarder) Topic(channelID, sourceUserID, topic string) {
	f.target.Topic(channelID, sourceUserID, topic)
}
func (f *broadcastForwarder) ChannelMessage(channelID, fromUserID, text string) {
	f.target.ChannelMessage(channelID, fromUserID, text)
}
func (f *broadcastForwarder) DirectMessage(fromUserID, text string) {
	f.target.DirectMessage(fromUserID, text)
}
func (f *broadcastForwarder) Notice(text string)          { f.target.Notice(text) }
func (f *broadcastForwarder) DisconnectAll(reason string) { f.target.DisconnectAll(reason) }
func (f *broadcastForwarder) WelcomeReady()               { f.target.WelcomeReady() }
