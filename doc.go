// Package parley implements a framed TCP chat fabric: a length-prefixed
// wire format, a capacity-bounded connection registry, heartbeat liveness
// monitoring, per-connection rate limiting, and a command/broadcast
// engine. A single Node type covers every role — server, client, and
// hybrid peer that both listens and dials — the roles differ only in
// configuration.
//
// Wire format: each frame is a 4-byte big-endian unsigned length followed
// by that many bytes of UTF-8 text, capped at 40960 bytes. A connection
// introduces itself with USERNAME:<name> or SETUP:<name>:<port>; PING and
// PONG frames carry liveness; everything else is chat text or a
// slash-command.
package parley
