// Package irc owns the single server connection used by the pipe.
//
// Ownership boundary:
// - dial (plain TCP or TLS) with retry/backoff
// - registration: PASS/NICK/USER, nickname retries, PING/PONG
// - joining configured channels once the MOTD ends
// - serialized, flood-controlled writes and a single QUIT
//
// Line parsing and encoding is delegated to ircmsg.
package irc
