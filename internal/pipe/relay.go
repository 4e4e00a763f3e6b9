package pipe

import (
	"bufio"
	"context"
	"io"

	"github.com/danmuck/hashpipe/internal/irc"
	"github.com/danmuck/hashpipe/internal/observability"
	"github.com/rs/zerolog/log"
)

// maxInputLine bounds one stdin line; the server truncates far earlier.
const maxInputLine = 64 * 1024

const (
	modeFormatted = "formatted"
	modeRaw       = "raw"
)

// relay owns stdin and turns each line into outbound sends. It closes its
// event channel when input ends.
type relay struct {
	conn    Connection
	in      io.Reader
	targets []string
	raw     bool
	events  chan<- Event
}

func newRelay(conn Connection, in io.Reader, targets []string, raw bool, events chan<- Event) *relay {
	return &relay{
		conn:    conn,
		in:      in,
		targets: targets,
		raw:     raw,
		events:  events,
	}
}

func (r *relay) run(ctx context.Context) {
	defer close(r.events)

	mode := modeFormatted
	if r.raw {
		mode = modeRaw
	}
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 4096), maxInputLine)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		observability.RecordLine(mode)

		var ok bool
		if r.raw {
			ok = r.sendRaw(ctx, line)
		} else {
			ok = r.sendFormatted(ctx, line)
		}
		if !ok {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		r.emit(ctx, inputFailure(err))
		return
	}
	log.Debug().Str("mode", mode).Msg("pipe.relay input finished")
}

// sendFormatted sends line to every target in order. A failed send is
// reported and the remaining targets are still attempted.
func (r *relay) sendFormatted(ctx context.Context, line string) bool {
	for _, target := range r.targets {
		if err := r.conn.SendTo(target, line); err != nil {
			observability.RecordSendFailure(modeFormatted)
			if !r.emit(ctx, sendFailure(target, err)) {
				return false
			}
		}
	}
	return true
}

func (r *relay) sendRaw(ctx context.Context, line string) bool {
	msg, err := irc.ParseLine(line + "\r\n")
	if err != nil {
		return r.emit(ctx, ParseFailure{Line: line, Reason: err.Error()})
	}
	if err := r.conn.Send(msg); err != nil {
		observability.RecordSendFailure(modeRaw)
		return r.emit(ctx, sendFailure(rawTarget(msg), err))
	}
	return true
}

// rawTarget is the destination of a raw command, or "" when it has none.
func rawTarget(msg irc.Message) string {
	switch msg.Command {
	case "PRIVMSG", "NOTICE", "JOIN", "PART", "TOPIC", "MODE", "KICK":
		return msg.Param(0)
	}
	return ""
}

func (r *relay) emit(ctx context.Context, ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
