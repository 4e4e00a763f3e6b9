package pipe

import (
	"context"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/danmuck/hashpipe/internal/observability"
	"github.com/rs/zerolog/log"
)

const DefaultQuitMessage = "#|"

// Phase is the supervisor's position in the pipe lifecycle.
type Phase int

const (
	PhaseJoining Phase = iota
	PhaseRelaying
)

func (p Phase) String() string {
	switch p {
	case PhaseJoining:
		return "joining"
	case PhaseRelaying:
		return "relaying"
	default:
		return "unknown"
	}
}

// StopReason is why the supervisor went to shutdown.
type StopReason int

const (
	StopInputDone StopReason = iota
	StopSignal
	StopPeerQuit
	StopConnectionLost
	StopInputFailure
)

func (r StopReason) String() string {
	switch r {
	case StopInputDone:
		return "input finished"
	case StopSignal:
		return "signal"
	case StopPeerQuit:
		return "peer quit"
	case StopConnectionLost:
		return "connection lost"
	case StopInputFailure:
		return "input failure"
	default:
		return "unknown"
	}
}

const (
	ExitOK             = 0
	ExitConnectionLost = 2
	ExitInputFailure   = 3
	exitSignalBase     = 128
)

// Outcome reports how a Run ended.
type Outcome struct {
	Reason StopReason
	Phase  Phase
	Signal os.Signal
	Err    error
}

// ExitCode maps the outcome to a process exit status. Signals follow the
// shell convention of 128 plus the signal number.
func (o Outcome) ExitCode() int {
	switch o.Reason {
	case StopInputDone:
		return ExitOK
	case StopSignal:
		if sig, ok := o.Signal.(syscall.Signal); ok {
			return exitSignalBase + int(sig)
		}
		return exitSignalBase
	case StopPeerQuit, StopConnectionLost:
		return ExitConnectionLost
	case StopInputFailure:
		return ExitInputFailure
	default:
		return 1
	}
}

// Config holds the startup choices the workers need.
type Config struct {
	Targets     []string
	RawIn       bool
	RawOut      bool
	Quiet       bool
	QuitMessage string
}

// JoinProgress tracks the JOINING phase. Each target counts at most once,
// either as joined or as failed.
type JoinProgress struct {
	Joined    int
	Required  int
	Connected bool

	pending map[string]struct{}
}

func newJoinProgress(targets []string, rawIn bool) JoinProgress {
	p := JoinProgress{pending: make(map[string]struct{})}
	if rawIn {
		return p
	}
	for _, target := range targets {
		key := strings.ToLower(target)
		if _, dup := p.pending[key]; dup {
			continue
		}
		p.pending[key] = struct{}{}
		p.Required++
	}
	return p
}

// Done reports whether the supervisor may leave JOINING.
func (p *JoinProgress) Done() bool {
	return p.Connected && p.Joined >= p.Required
}

func (p *JoinProgress) join(channel string) bool {
	key := strings.ToLower(channel)
	if _, ok := p.pending[key]; !ok {
		return false
	}
	delete(p.pending, key)
	p.Joined++
	return true
}

func (p *JoinProgress) fail(channel string) bool {
	key := strings.ToLower(channel)
	if _, ok := p.pending[key]; !ok {
		return false
	}
	delete(p.pending, key)
	p.Required--
	return true
}

// Supervisor runs the reader and relay workers and decides when to stop.
type Supervisor struct {
	conn    Connection
	cfg     Config
	in      io.Reader
	out     io.Writer
	signals <-chan os.Signal
}

func NewSupervisor(conn Connection, cfg Config, in io.Reader, out io.Writer, signals <-chan os.Signal) *Supervisor {
	if cfg.QuitMessage == "" {
		cfg.QuitMessage = DefaultQuitMessage
	}
	return &Supervisor{
		conn:    conn,
		cfg:     cfg,
		in:      in,
		out:     out,
		signals: signals,
	}
}

// Run drives JOINING then RELAYING and always ends with exactly one
// Disconnect. Workers are not joined; they exit when their source ends.
func (s *Supervisor) Run() Outcome {
	ctx, cancel := context.WithCancel(context.Background())

	readerEvents := make(chan Event)
	go newReader(s.conn, s.out, s.cfg.RawOut, s.cfg.Quiet, readerEvents).run(ctx)

	outcome, joined := s.join(readerEvents)
	if joined {
		outcome = s.relay(ctx, readerEvents)
	}

	cancel()
	s.shutdown(outcome)
	return outcome
}

func (s *Supervisor) join(readerEvents <-chan Event) (Outcome, bool) {
	progress := newJoinProgress(s.cfg.Targets, s.cfg.RawIn)
	log.Info().Int("required", progress.Required).Msg("pipe.Supervisor.join waiting for registration")

	for !progress.Done() {
		select {
		case sig := <-s.signals:
			log.Warn().Str("signal", sig.String()).Msg("pipe.Supervisor.join interrupted")
			return Outcome{Reason: StopSignal, Phase: PhaseJoining, Signal: sig}, false
		case ev := <-readerEvents:
			observability.RecordEvent("reader", kindOf(ev))
			switch ev := ev.(type) {
			case Connected:
				progress.Connected = true
				log.Info().Msg("pipe.Supervisor.join registered")
			case ChannelJoined:
				if progress.join(ev.Channel) {
					log.Info().Str("channel", ev.Channel).Int("joined", progress.Joined).Int("required", progress.Required).Msg("pipe.Supervisor.join channel joined")
				}
			case ChannelJoinFailed:
				if progress.fail(ev.Channel) {
					log.Warn().Str("channel", ev.Channel).Str("reason", ev.Reason).Int("required", progress.Required).Msg("pipe.Supervisor.join channel dropped")
				}
			case PeerQuit:
				log.Error().Str("reason", ev.Reason).Msg("pipe.Supervisor.join peer quit")
				return Outcome{Reason: StopPeerQuit, Phase: PhaseJoining}, false
			case IoFailure:
				log.Error().Err(ev).Msg("pipe.Supervisor.join connection failed")
				return Outcome{Reason: StopConnectionLost, Phase: PhaseJoining, Err: ev}, false
			case ProtocolFailure:
				log.Warn().Err(ev).Msg("pipe.Supervisor.join protocol failure")
			}
		}
	}

	log.Info().Int("joined", progress.Joined).Msg("pipe.Supervisor.join complete")
	return Outcome{}, true
}

func (s *Supervisor) relay(ctx context.Context, readerEvents <-chan Event) Outcome {
	relayEvents := make(chan Event)
	go newRelay(s.conn, s.in, s.cfg.Targets, s.cfg.RawIn, relayEvents).run(ctx)

	for {
		select {
		case sig := <-s.signals:
			log.Warn().Str("signal", sig.String()).Msg("pipe.Supervisor.relay interrupted")
			return Outcome{Reason: StopSignal, Phase: PhaseRelaying, Signal: sig}
		case ev, ok := <-relayEvents:
			if !ok {
				log.Info().Msg("pipe.Supervisor.relay input finished")
				return Outcome{Reason: StopInputDone, Phase: PhaseRelaying}
			}
			observability.RecordEvent("relay", kindOf(ev))
			switch ev := ev.(type) {
			case IoFailure:
				if ev.Op == OpSend {
					log.Warn().Err(ev).Msg("pipe.Supervisor.relay send failed")
					continue
				}
				log.Error().Err(ev).Msg("pipe.Supervisor.relay input failed")
				return Outcome{Reason: StopInputFailure, Phase: PhaseRelaying, Err: ev}
			case ProtocolFailure:
				log.Warn().Err(ev).Msg("pipe.Supervisor.relay send rejected")
			case ParseFailure:
				log.Warn().Str("line", ev.Line).Str("reason", ev.Reason).Msg("pipe.Supervisor.relay dropped unparsable line")
			}
		case ev := <-readerEvents:
			observability.RecordEvent("reader", kindOf(ev))
			switch ev := ev.(type) {
			case PeerQuit:
				log.Error().Str("reason", ev.Reason).Msg("pipe.Supervisor.relay peer quit")
				return Outcome{Reason: StopPeerQuit, Phase: PhaseRelaying}
			case IoFailure:
				log.Error().Err(ev).Msg("pipe.Supervisor.relay connection failed")
				return Outcome{Reason: StopConnectionLost, Phase: PhaseRelaying, Err: ev}
			case ProtocolFailure:
				log.Warn().Err(ev).Msg("pipe.Supervisor.relay protocol failure")
			case ChannelJoinFailed:
				log.Warn().Str("channel", ev.Channel).Str("reason", ev.Reason).Msg("pipe.Supervisor.relay join failed")
			}
		}
	}
}

func (s *Supervisor) shutdown(outcome Outcome) {
	log.Info().
		Str("reason", outcome.Reason.String()).
		Str("phase", outcome.Phase.String()).
		Msg("pipe.Supervisor.shutdown disconnecting")
	if err := s.conn.Disconnect(s.cfg.QuitMessage); err != nil {
		log.Warn().Err(err).Msg("pipe.Supervisor.shutdown disconnect failed")
	}
}
