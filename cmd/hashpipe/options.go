package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/hashpipe/internal/irc"
	"github.com/danmuck/hashpipe/internal/pipe"
	"github.com/spf13/pflag"
)

const defaultChannel = "#hashpipe"

var errServerRequired = errors.New("hashpipe: --server is required")

// options is the merged result of defaults, the config file and flags.
type options struct {
	server        string
	port          int
	tls           bool
	tlsInsecure   bool
	tlsCAFile     string
	nick          string
	password      string
	channels      []string
	channelsSet   bool
	rawOut        bool
	rawIn         bool
	quiet         bool
	verbosity     int
	quitMessage   string
	metricsAddr   string
	floodBurst    int
	floodInterval time.Duration
	configPath    string

	help    bool
	version bool
}

func defaultOptions() options {
	def := irc.DefaultConfig()
	return options{
		nick:          def.Nick,
		quitMessage:   pipe.DefaultQuitMessage,
		floodBurst:    def.FloodBurst,
		floodInterval: def.FloodInterval,
	}
}

func newFlagSet(flags *options, channels *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("hashpipe", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&flags.server, "server", "s", "", "IRC server to connect to")
	fs.IntVarP(&flags.port, "port", "p", 0, "server port (default 6667, or 6697 with --tls)")
	fs.BoolVarP(&flags.tls, "tls", "t", false, "connect with TLS")
	fs.BoolVar(&flags.tlsInsecure, "tls-insecure", false, "skip TLS certificate verification")
	fs.StringVarP(&flags.nick, "nick", "n", flags.nick, "nickname to use")
	fs.StringVarP(channels, "channels", "c", "", "comma-separated channels to speak in (default \"#hashpipe\", none with --raw-in)")
	fs.BoolVarP(&flags.rawOut, "raw-out", "o", false, "echo everything from the IRC server directly")
	fs.BoolVarP(&flags.rawIn, "raw-in", "i", false, "interpret stdin as raw IRC commands")
	fs.BoolVarP(&flags.quiet, "quiet", "q", false, "do not print channel messages")
	fs.CountVarP(&flags.verbosity, "verbose", "v", "log more (repeatable)")
	fs.StringVar(&flags.quitMessage, "quit-message", flags.quitMessage, "QUIT message sent on shutdown")
	fs.StringVar(&flags.configPath, "config", "", "TOML config file; explicit flags take precedence")
	fs.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.BoolVarP(&flags.help, "help", "h", false, "show help")
	fs.BoolVar(&flags.version, "version", false, "print version and exit")
	return fs
}

// parseOptions parses args (without the program name). The returned flag
// set is used for help output.
func parseOptions(args []string) (options, *pflag.FlagSet, error) {
	flags := defaultOptions()
	var channels string
	fs := newFlagSet(&flags, &channels)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			flags.help = true
			return flags, fs, nil
		}
		return options{}, fs, err
	}
	if flags.help || flags.version {
		return flags, fs, nil
	}
	if rest := fs.Args(); len(rest) > 0 {
		return options{}, fs, fmt.Errorf("hashpipe: unexpected argument: %s", rest[0])
	}

	opts := defaultOptions()
	if flags.configPath != "" {
		var err error
		opts, err = loadConfigFile(flags.configPath, opts)
		if err != nil {
			return options{}, fs, err
		}
		opts.configPath = flags.configPath
	}
	if fs.Changed("channels") {
		flags.channels = splitChannels(channels)
		flags.channelsSet = true
	}
	opts = overlayFlags(opts, flags, fs)
	opts = finalize(opts)

	if opts.server == "" {
		return options{}, fs, errServerRequired
	}
	return opts, fs, nil
}

func overlayFlags(opts, flags options, fs *pflag.FlagSet) options {
	if fs.Changed("server") {
		opts.server = flags.server
	}
	if fs.Changed("port") {
		opts.port = flags.port
	}
	if fs.Changed("tls") {
		opts.tls = flags.tls
	}
	if fs.Changed("tls-insecure") {
		opts.tlsInsecure = flags.tlsInsecure
	}
	if fs.Changed("nick") {
		opts.nick = flags.nick
	}
	if flags.channelsSet {
		opts.channels = flags.channels
		opts.channelsSet = true
	}
	if fs.Changed("raw-out") {
		opts.rawOut = flags.rawOut
	}
	if fs.Changed("raw-in") {
		opts.rawIn = flags.rawIn
	}
	if fs.Changed("quiet") {
		opts.quiet = flags.quiet
	}
	if fs.Changed("verbose") {
		opts.verbosity = flags.verbosity
	}
	if fs.Changed("quit-message") {
		opts.quitMessage = flags.quitMessage
	}
	if fs.Changed("metrics-addr") {
		opts.metricsAddr = flags.metricsAddr
	}
	return opts
}

// finalize applies defaults that depend on other options.
func finalize(opts options) options {
	opts.server = strings.TrimSpace(opts.server)
	opts.nick = strings.TrimSpace(opts.nick)
	if !opts.channelsSet {
		opts.channels = nil
		if !opts.rawIn {
			opts.channels = []string{defaultChannel}
		}
	}
	return opts
}

// splitChannels splits a comma-separated list, dropping empty entries.
func splitChannels(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (o options) ircConfig() irc.Config {
	cfg := irc.DefaultConfig()
	cfg.Server = o.server
	cfg.Port = o.port
	cfg.Nick = o.nick
	cfg.Password = o.password
	cfg.Channels = append([]string(nil), o.channels...)
	cfg.TLS = irc.TLSConfig{
		Enabled:            o.tls,
		InsecureSkipVerify: o.tlsInsecure,
		CAFile:             o.tlsCAFile,
	}
	cfg.FloodBurst = o.floodBurst
	cfg.FloodInterval = o.floodInterval
	return cfg.WithDefaults()
}

func (o options) pipeConfig() pipe.Config {
	return pipe.Config{
		Targets:     append([]string(nil), o.channels...),
		RawIn:       o.rawIn,
		RawOut:      o.rawOut,
		Quiet:       o.quiet,
		QuitMessage: o.quitMessage,
	}
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `hashpipe pipes data to and from an IRC connection.

Lines read from stdin are sent to every channel (or, with --raw-in, to the
server as raw IRC commands). Channel messages are printed to stdout as
"sender->target: text".

Usage:
  hashpipe --server HOST [flags]

Flags:
%s`, fs.FlagUsages())
}
