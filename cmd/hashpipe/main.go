package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/hashpipe/internal/irc"
	"github.com/danmuck/hashpipe/internal/logging"
	"github.com/danmuck/hashpipe/internal/observability"
	"github.com/danmuck/hashpipe/internal/pipe"
	"github.com/rs/zerolog/log"
)

var version = "dev"

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGPIPE}

// exitError carries a non-zero exit status that needs no further message.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func (e exitError) ExitCode() int {
	return e.code
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "hashpipe: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, fs, err := parseOptions(args)
	if err != nil {
		return err
	}
	if opts.help {
		printHelp(os.Stderr, fs)
		return nil
	}
	if opts.version {
		fmt.Printf("hashpipe %s\n", version)
		return nil
	}
	logging.ConfigureRuntime(opts.verbosity)

	// Registered before dialing so a signal during connect is not lost.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, shutdownSignals...)
	defer signal.Stop(signals)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if opts.metricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, opts.metricsAddr); err != nil {
				log.Warn().Err(err).Str("addr", opts.metricsAddr).Msg("hashpipe metrics server stopped")
			}
		}()
	}

	client, err := dial(ctx, opts.ircConfig(), signals)
	if err != nil {
		return err
	}

	outcome := pipe.NewSupervisor(client, opts.pipeConfig(), os.Stdin, os.Stdout, signals).Run()
	if code := outcome.ExitCode(); code != pipe.ExitOK {
		return exitError{code: code}
	}
	return nil
}

// dial connects while watching for shutdown signals. A signal that arrives
// before the connection is up ends the process with the signal's status.
func dial(ctx context.Context, cfg irc.Config, signals <-chan os.Signal) (*irc.Client, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		client *irc.Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		client, err := irc.Dial(dialCtx, cfg)
		done <- result{client: client, err: err}
	}()

	select {
	case res := <-done:
		return res.client, res.err
	case sig := <-signals:
		log.Info().Str("signal", sig.String()).Msg("hashpipe dial interrupted")
		cancel()
		if res := <-done; res.client != nil {
			_ = res.client.Disconnect(pipe.DefaultQuitMessage)
		}
		return nil, exitError{code: pipe.Outcome{Reason: pipe.StopSignal, Signal: sig}.ExitCode()}
	}
}
