package pipe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/hashpipe/internal/irc"
	"github.com/danmuck/hashpipe/internal/observability"
	"github.com/rs/zerolog/log"
)

// Connection is the live server connection shared by all workers. Sends
// and Disconnect may be called concurrently; ReadMessage has one caller.
type Connection interface {
	Identify() error
	ReadMessage() (irc.Message, error)
	Send(msg irc.Message) error
	SendTo(target, text string) error
	Disconnect(reason string) error
	Nick() string
}

// reader owns the inbound side of the connection and stdout.
type reader struct {
	conn   Connection
	out    *bufio.Writer
	rawOut bool
	quiet  bool
	events chan<- Event
}

func newReader(conn Connection, out io.Writer, rawOut, quiet bool, events chan<- Event) *reader {
	return &reader{
		conn:   conn,
		out:    bufio.NewWriter(out),
		rawOut: rawOut,
		quiet:  quiet,
		events: events,
	}
}

// run identifies, then classifies inbound messages until the stream ends.
// Whatever ends it, the last event is PeerQuit.
func (r *reader) run(ctx context.Context) {
	if err := r.conn.Identify(); err != nil {
		r.emit(ctx, readFailure(OpIdentify, err))
		r.emit(ctx, PeerQuit{Reason: "identify failed"})
		return
	}
	for {
		msg, err := r.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, irc.ErrMalformedLine) {
				if r.rawOut && msg.Raw != "" {
					if err := r.print(msg.Raw + "\r\n"); err != nil {
						r.emit(ctx, outputFailure(err))
					}
				}
				r.emit(ctx, ProtocolFailure{Op: OpReadConn, Err: err})
				continue
			}
			r.emit(ctx, readFailure(OpReadConn, err))
			r.emit(ctx, PeerQuit{Reason: "connection closed"})
			return
		}
		observability.RecordInbound()
		log.Trace().Str("line", msg.String()).Msg("pipe.reader received")

		if r.rawOut {
			if err := r.print(msg.String() + "\r\n"); err != nil {
				r.emit(ctx, outputFailure(err))
			}
		}
		if ev := r.classify(msg); ev != nil {
			r.emit(ctx, ev)
		}
	}
}

// classify maps one inbound message to at most one event. Messages that
// matter to nobody map to nil.
func (r *reader) classify(msg irc.Message) Event {
	switch msg.Command {
	case "JOIN":
		if strings.EqualFold(msg.SourceNick(), r.conn.Nick()) {
			return ChannelJoined{Channel: msg.Param(0)}
		}
	case "PRIVMSG":
		if r.rawOut || r.quiet {
			return nil
		}
		line := fmt.Sprintf("%s->%s: %s\n", msg.SourceNick(), msg.Param(0), msg.Param(1))
		if err := r.print(line); err != nil {
			return outputFailure(err)
		}
	case "QUIT":
		if msg.Source == "" || strings.EqualFold(msg.SourceNick(), r.conn.Nick()) {
			return PeerQuit{Reason: msg.Param(0)}
		}
	case "ERROR":
		return PeerQuit{Reason: msg.Param(0)}
	case irc.ERR_NOSUCHCHANNEL,
		irc.ERR_TOOMANYCHANNELS,
		irc.ERR_CHANNELISFULL,
		irc.ERR_INVITEONLYCHAN,
		irc.ERR_BANNEDFROMCHAN,
		irc.ERR_BADCHANNELKEY,
		irc.ERR_BADCHANMASK,
		irc.ERR_NEEDREGGEDNICK,
		irc.ERR_UNAVAILRESOURCE,
		irc.ERR_SECUREONLYCHAN:
		return joinFailure(msg)
	case irc.ERR_LINKCHANNEL:
		// Forwarded: the JOIN that follows names the other channel and is
		// not counted.
		return linkFailure(msg)
	case irc.RPL_ENDOFMOTD, irc.ERR_NOMOTD:
		return Connected{}
	}
	return nil
}

// joinFailure builds the event for a numeric of the form
// "<nick> <channel> :<text>".
func joinFailure(msg irc.Message) Event {
	channel := msg.Param(1)
	text := msg.Param(len(msg.Params) - 1)
	if len(msg.Params) < 3 {
		text = "cannot join channel (" + msg.Command + ")"
	}
	return ChannelJoinFailed{
		Channel: channel,
		Reason:  fmt.Sprintf("%s: %s", channel, text),
	}
}

// linkFailure handles "<nick> <channel> <forward> :<text>".
func linkFailure(msg irc.Message) Event {
	channel := msg.Param(1)
	forward := msg.Param(2)
	if len(msg.Params) < 4 || forward == "" {
		return joinFailure(msg)
	}
	return ChannelJoinFailed{
		Channel: channel,
		Reason:  fmt.Sprintf("%s: forwarded to %s", channel, forward),
	}
}

func (r *reader) print(s string) error {
	if _, err := r.out.WriteString(s); err != nil {
		return err
	}
	return r.out.Flush()
}

// emit hands ev to the supervisor. It returns false when the supervisor
// has stopped listening.
func (r *reader) emit(ctx context.Context, ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		log.Debug().Str("event", kindOf(ev)).Msg("pipe.reader dropped event after shutdown")
		return false
	}
}
