package pipe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/danmuck/hashpipe/internal/irc"
)

// Op names where a failure was first detected.
type Op string

const (
	OpIdentify    Op = "identify"
	OpReadConn    Op = "read connection"
	OpWriteOutput Op = "write output"
	OpReadInput   Op = "read input"
	OpSend        Op = "send"
)

// Event is everything a worker can report to the supervisor. The set of
// variants is closed: only types in this file implement it.
type Event interface {
	isEvent()
}

// Connected reports that registration finished, at end of MOTD or on a
// missing MOTD.
type Connected struct{}

// ChannelJoined reports that the server confirmed our JOIN.
type ChannelJoined struct {
	Channel string
}

// ChannelJoinFailed reports that the server refused or redirected a JOIN.
type ChannelJoinFailed struct {
	Channel string
	Reason  string
}

// PeerQuit reports that the connection is gone or going. It is always the
// last event the reader emits.
type PeerQuit struct {
	Reason string
}

// IoFailure is a stream or transport fault. Target is set for failed sends.
type IoFailure struct {
	Op     Op
	Target string
	Err    error
}

// ProtocolFailure is a fault reported by the connection layer that is not
// a transport fault.
type ProtocolFailure struct {
	Op     Op
	Target string
	Err    error
}

// ParseFailure carries a raw input line that did not parse and was dropped.
type ParseFailure struct {
	Line   string
	Reason string
}

func (Connected) isEvent()         {}
func (ChannelJoined) isEvent()     {}
func (ChannelJoinFailed) isEvent() {}
func (PeerQuit) isEvent()          {}
func (IoFailure) isEvent()         {}
func (ProtocolFailure) isEvent()   {}
func (ParseFailure) isEvent()      {}

func (e IoFailure) Error() string {
	return failureText("io", e.Op, e.Target, e.Err)
}

func (e IoFailure) Unwrap() error { return e.Err }

func (e ProtocolFailure) Error() string {
	return failureText("protocol", e.Op, e.Target, e.Err)
}

func (e ProtocolFailure) Unwrap() error { return e.Err }

func failureText(class string, op Op, target string, err error) string {
	if target != "" {
		return fmt.Sprintf("%s failure: %s %s: %v", class, op, target, err)
	}
	return fmt.Sprintf("%s failure: %s: %v", class, op, err)
}

// kindOf names an event for logs and metrics.
func kindOf(ev Event) string {
	switch ev.(type) {
	case Connected:
		return "connected"
	case ChannelJoined:
		return "channel_joined"
	case ChannelJoinFailed:
		return "channel_join_failed"
	case PeerQuit:
		return "peer_quit"
	case IoFailure:
		return "io_failure"
	case ProtocolFailure:
		return "protocol_failure"
	case ParseFailure:
		return "parse_failure"
	default:
		panic(fmt.Sprintf("pipe: unknown event %T", ev))
	}
}

// readFailure maps an error from the inbound message stream.
func readFailure(op Op, err error) Event {
	if isTransportError(err) {
		return IoFailure{Op: op, Err: err}
	}
	return ProtocolFailure{Op: op, Err: err}
}

// sendFailure maps an error from an outbound send.
func sendFailure(target string, err error) Event {
	if isTransportError(err) {
		return IoFailure{Op: OpSend, Target: target, Err: err}
	}
	return ProtocolFailure{Op: OpSend, Target: target, Err: err}
}

// outputFailure maps an error writing or flushing stdout.
func outputFailure(err error) Event {
	return IoFailure{Op: OpWriteOutput, Err: err}
}

// inputFailure maps an error reading stdin.
func inputFailure(err error) Event {
	return IoFailure{Op: OpReadInput, Err: err}
}

func isTransportError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, irc.ErrClosed):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
