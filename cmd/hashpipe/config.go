package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Server                string   `toml:"server"`
	Port                  int      `toml:"port"`
	TLS                   bool     `toml:"tls"`
	TLSInsecureSkipVerify bool     `toml:"tls_insecure_skip_verify"`
	TLSCAFile             string   `toml:"tls_ca_file"`
	Nick                  string   `toml:"nick"`
	Password              string   `toml:"password"`
	Channels              []string `toml:"channels"`
	RawOut                bool     `toml:"raw_out"`
	RawIn                 bool     `toml:"raw_in"`
	Quiet                 bool     `toml:"quiet"`
	Verbosity             int      `toml:"verbosity"`
	QuitMessage           string   `toml:"quit_message"`
	MetricsAddr           string   `toml:"metrics_addr"`
	FloodBurst            int      `toml:"flood_burst"`
	FloodInterval         string   `toml:"flood_interval"`
}

// loadConfigFile overlays the keys present in path onto opts.
func loadConfigFile(path string, opts options) (options, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return options{}, fmt.Errorf("load hashpipe config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return options{}, fmt.Errorf("load hashpipe config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("server") {
		opts.server = strings.TrimSpace(raw.Server)
	}
	if meta.IsDefined("port") {
		opts.port = raw.Port
	}
	if meta.IsDefined("tls") {
		opts.tls = raw.TLS
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		opts.tlsInsecure = raw.TLSInsecureSkipVerify
	}
	if meta.IsDefined("tls_ca_file") {
		opts.tlsCAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("nick") {
		if nick := strings.TrimSpace(raw.Nick); nick != "" {
			opts.nick = nick
		}
	}
	if meta.IsDefined("password") {
		opts.password = raw.Password
	}
	if meta.IsDefined("channels") {
		opts.channels = normalizeChannels(raw.Channels)
		opts.channelsSet = true
	}
	if meta.IsDefined("raw_out") {
		opts.rawOut = raw.RawOut
	}
	if meta.IsDefined("raw_in") {
		opts.rawIn = raw.RawIn
	}
	if meta.IsDefined("quiet") {
		opts.quiet = raw.Quiet
	}
	if meta.IsDefined("verbosity") {
		opts.verbosity = raw.Verbosity
	}
	if meta.IsDefined("quit_message") {
		opts.quitMessage = raw.QuitMessage
	}
	if meta.IsDefined("metrics_addr") {
		opts.metricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("flood_burst") {
		opts.floodBurst = raw.FloodBurst
	}
	if meta.IsDefined("flood_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.FloodInterval))
		if err != nil {
			return options{}, fmt.Errorf("parse flood_interval: %w", err)
		}
		opts.floodInterval = d
	}
	return opts, nil
}

func normalizeChannels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, channel := range in {
		v := strings.TrimSpace(channel)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
