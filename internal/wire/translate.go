// Package wire implements the identifier-translation and escaping
// rules from spec §4.6: HTML-style escaping going out to the upstream
// service, and mention rewriting (plus unescaping) coming back in.
package wire

import (
	"strings"
)

// Resolver looks up the ids a PRIVMSG's <@nick>/<#name> mentions
// refer to. Implemented by the world model; kept as an interface here
// so this package stays independent of world's concrete types.
type Resolver interface {
	UserIDByNick(nick string) (id string, ok bool)
	ChannelIDByName(name string) (id string, ok bool)
}

// EscapeOutbound prepares text typed by an IRC client for the
// upstream wire: HTML-escape &<>" in that order, then rewrite
// <@nick>/<#name> mentions to <@id>/<#id> using r. Mentions of
// unknown names pass through unchanged.
func EscapeOutbound(text string, r Resolver) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	text = strings.ReplaceAll(text, `"`, "&quot;")

	text = rewriteMentions(text, "&lt;@", "&gt;", "<@", ">", func(name string) (string, bool) {
		return r.UserIDByNick(name)
	})
	text = rewriteMentions(text, "&lt;#", "&gt;", "<#", ">", func(name string) (string, bool) {
		return r.ChannelIDByName(name)
	})
	return text
}

// NickResolver looks up the nick to substitute for an id, from the
// perspective of one particular receiving IRC client (so <@selfID>
// renders as that client's own chosen nick).
type NickResolver interface {
	NickForUserID(id string) (nick string, ok bool)
	NameForChannelID(id string) (name string, ok bool)
}

// UnescapeInbound reverses EscapeOutbound for a message arriving from
// the upstream, rewriting <@id>/<#id> to <@nick>/<#name> for the
// given receiver, then unescaping &lt; &gt; &quot; &amp; in that
// order (amp last, so an escaped "&amp;lt;" comes back as the literal
// "&lt;" rather than being unescaped twice into "<").
func UnescapeInbound(text string, r NickResolver) string {
	text = rewriteMentions(text, "<@", ">", "<@", ">", func(id string) (string, bool) {
		return r.NickForUserID(id)
	})
	text = rewriteMentions(text, "<#", ">", "<#", ">", func(id string) (string, bool) {
		return r.NameForChannelID(id)
	})

	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&amp;", "&")
	return text
}

// rewriteMentions scans text for occurrences of open immediately
// followed by an identifier and close, replacing the identifier via
// lookup. Every recognized mention, resolved or not, is written back
// with writeOpen/writeClose rather than open/close: outbound mention
// syntax is never data to be HTML-escaped, so even an unresolved
// mention like <@ghost> must come out literal, not as the escaped
// &lt;@ghost&gt; the earlier escaping pass produced.
func rewriteMentions(text, open, closeTag, writeOpen, writeClose string, lookup func(string) (string, bool)) string {
	var b strings.Builder
	rest := text
	for {
		idx := strings.Index(rest, open)
		if idx < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:idx])
		afterOpen := rest[idx+len(open):]
		end := strings.Index(afterOpen, closeTag)
		if end < 0 {
			b.WriteString(rest[idx:])
			break
		}
		name := afterOpen[:end]
		if replacement, ok := lookup(name); ok {
			name = replacement
		}
		b.WriteString(writeOpen)
		b.WriteString(name)
		b.WriteString(writeClose)
		rest = afterOpen[end+len(closeTag):]
	}
	return b.String()
}

// SplitLines splits a message body on \n, for emitting one PRIVMSG
// per line (spec §4.6).
func SplitLines(body string) []string {
	return strings.Split(body, "\n")
}

// WithSubtypePrefix prepends "[subtype] " in bold IRC formatting, if
// subtype is non-empty.
func WithSubtypePrefix(subtype, body string) string {
	if subtype == "" {
		return body
	}
	return "\x02[" + subtype + "]\x02 " + body
}

// FlattenAttachment renders an attachment as "title text title_link"
// joined on a new line to the body, per spec §4.6.
func FlattenAttachment(body, title, text, titleLink string) string {
	parts := make([]string, 0, 3)
	if title != "" {
		parts = append(parts, title)
	}
	if text != "" {
		parts = append(parts, text)
	}
	if titleLink != "" {
		parts = append(parts, titleLink)
	}
	if len(parts) == 0 {
		return body
	}
	line := strings.Join(parts, " ")
	if body == "" {
		return line
	}
	return body + "\n" + line
}
