package dispatch

import "fmt"

// Server-prefix every reply is sourced from; the bridge never exposes
// a real hostname since it only ever binds loopback or a local socket.
const serverName = "localhost"

// Numerics used across §4.4 and §4.5. Named by RFC mnemonic in
// comments, not by decimal code, so the table below stays legible.
const (
	rplWelcome       = 1
	rplYourHost      = 2
	rplCreated       = 3
	rplUmodeIs       = 221
	rplAway          = 301
	rplUnaway        = 305
	rplNowAway       = 306
	rplWhoisUser     = 311
	rplWhoisServer   = 312
	rplEndOfWho      = 315
	rplListEnd       = 323
	rplChannelModeIs = 324
	rplCreationTime  = 329
	rplWhoisChannels = 319
	rplList          = 322
	rplTopic         = 332
	rplWhoReply      = 352
	rplNameReply     = 353
	rplEndOfNames    = 366
	rplEndOfBanList  = 368
	rplMotd          = 372
	rplEndOfMotd     = 376
	errNoSuchChannel = 401
	errNoSuchNick    = 401
	errNoSuchServer  = 403
	errNicknameInUse = 433
	rplEndOfWhois    = 318
)

// numeric formats a standard "<server> <code> <target> ... :<trailing>"
// reply line, sourced from the server.
func numeric(code int, target string, rest string) string {
	if rest == "" {
		return fmt.Sprintf(":%s %03d %s", serverName, code, target)
	}
	return fmt.Sprintf(":%s %03d %s %s", serverName, code, target, rest)
}

func notice(source, target, text string) string {
	return fmt.Sprintf(":%s NOTICE %s :%s", source, target, text)
}
