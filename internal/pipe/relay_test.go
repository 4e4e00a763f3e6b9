package pipe

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/danmuck/hashpipe/internal/irc"
	"github.com/danmuck/hashpipe/internal/testutil/testlog"
)

// collectRelay runs the relay to completion and returns every event it
// emitted before closing its channel.
func collectRelay(t *testing.T, r *relay, events chan Event) []Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx)

	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("relay did not finish")
			return nil
		}
	}
}

func TestRelayFormattedFanOutInOrder(t *testing.T) {
	testlog.Start(t)

	conn := newFakeConn()
	events := make(chan Event)
	r := newRelay(conn, strings.NewReader("first\r\nsecond\n\nthird"), []string{"#a", "#b"}, false, events)

	if got := collectRelay(t, r, events); len(got) != 0 {
		t.Fatalf("unexpected events: %#v", got)
	}
	want := []sentMessage{
		{target: "#a", text: "first"}, {target: "#b", text: "first"},
		{target: "#a", text: "second"}, {target: "#b", text: "second"},
		{target: "#a", text: "third"}, {target: "#b", text: "third"},
	}
	sent := conn.Sent()
	if len(sent) != len(want) {
		t.Fatalf("unexpected sends: %+v", sent)
	}
	for i := range want {
		if sent[i].target != want[i].target || sent[i].text != want[i].text {
			t.Fatalf("send %d: got %+v want %+v", i, sent[i], want[i])
		}
	}
}

func TestRelayFormattedSendFailureReportedOnce(t *testing.T) {
	testlog.Start(t)

	conn := newFakeConn()
	conn.failTargets["#b"] = syscall.EPIPE
	events := make(chan Event)
	targets := []string{"#a", "#b", "#c", "#d"}
	r := newRelay(conn, strings.NewReader("hello\n"), targets, false, events)

	got := collectRelay(t, r, events)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %#v", got)
	}
	ioErr, ok := got[0].(IoFailure)
	if !ok || ioErr.Op != OpSend || ioErr.Target != "#b" {
		t.Fatalf("unexpected event: %#v", got[0])
	}
	if sent := conn.Sent(); len(sent) != len(targets)-1 {
		t.Fatalf("expected remaining sends attempted, got %+v", sent)
	}
}

func TestRelayFormattedProtocolRejection(t *testing.T) {
	testlog.Start(t)

	conn := newFakeConn()
	conn.failTargets["#a"] = irc.ErrLineTooLong
	events := make(chan Event)
	r := newRelay(conn, strings.NewReader("x\n"), []string{"#a"}, false, events)

	got := collectRelay(t, r, events)
	if len(got) != 1 {
		t.Fatalf("unexpected events: %#v", got)
	}
	if pErr, ok := got[0].(ProtocolFailure); !ok || pErr.Target != "#a" {
		t.Fatalf("expected protocol failure for #a, got %#v", got[0])
	}
}

func TestRelayRawSkipsUnparsableLines(t *testing.T) {
	testlog.Start(t)

	conn := newFakeConn()
	events := make(chan Event)
	input := ":lonely-prefix\nPRIVMSG #test :still sent\nJOIN #other\n"
	r := newRelay(conn, strings.NewReader(input), nil, true, events)

	got := collectRelay(t, r, events)
	if len(got) != 1 {
		t.Fatalf("expected one parse failure, got %#v", got)
	}
	parseErr, ok := got[0].(ParseFailure)
	if !ok || parseErr.Line != ":lonely-prefix" || parseErr.Reason == "" {
		t.Fatalf("unexpected event: %#v", got[0])
	}

	sent := conn.Sent()
	if len(sent) != 2 {
		t.Fatalf("unexpected sends: %+v", sent)
	}
	if sent[0].raw.Command != "PRIVMSG" || sent[0].raw.Param(0) != "#test" || sent[0].raw.Param(1) != "still sent" {
		t.Fatalf("unexpected first raw send: %+v", sent[0].raw)
	}
	if sent[1].raw.Command != "JOIN" || sent[1].raw.Param(0) != "#other" {
		t.Fatalf("unexpected second raw send: %+v", sent[1].raw)
	}
}

func TestRelayRawSendFailure(t *testing.T) {
	testlog.Start(t)

	conn := newFakeConn()
	conn.sendErr = irc.ErrClosed
	events := make(chan Event)
	r := newRelay(conn, strings.NewReader("NOTICE #test :hi\n"), nil, true, events)

	got := collectRelay(t, r, events)
	if len(got) != 1 {
		t.Fatalf("unexpected events: %#v", got)
	}
	ioErr, ok := got[0].(IoFailure)
	if !ok || ioErr.Op != OpSend || !errors.Is(ioErr, irc.ErrClosed) {
		t.Fatalf("expected send io failure, got %#v", got[0])
	}
	if ioErr.Target != "#test" {
		t.Fatalf("expected destination as target, got %q", ioErr.Target)
	}
}

func TestRelayRawTarget(t *testing.T) {
	cases := map[string]string{
		"PRIVMSG #a :hi": "#a",
		"NOTICE bob :hi": "bob",
		"JOIN #b":        "#b",
		"QUIT :bye":      "",
		"PING :server":   "",
		"AWAY :lunch":    "",
	}
	for line, want := range cases {
		if got := rawTarget(mustParse(t, line)); got != want {
			t.Fatalf("%q: got %q want %q", line, got, want)
		}
	}
}

func TestRelayInputErrorReported(t *testing.T) {
	testlog.Start(t)

	events := make(chan Event)
	r := newRelay(newFakeConn(), failingInput{}, []string{"#a"}, false, events)

	got := collectRelay(t, r, events)
	if len(got) != 1 {
		t.Fatalf("unexpected events: %#v", got)
	}
	if ioErr, ok := got[0].(IoFailure); !ok || ioErr.Op != OpReadInput {
		t.Fatalf("expected input io failure, got %#v", got[0])
	}
}

func TestRelayStopsWhenSupervisorGone(t *testing.T) {
	testlog.Start(t)

	conn := newFakeConn()
	conn.failTargets["#a"] = syscall.EPIPE
	events := make(chan Event)
	r := newRelay(conn, strings.NewReader("one\ntwo\n"), []string{"#a"}, false, events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.run(ctx)

	if _, ok := <-events; ok {
		t.Fatalf("expected closed channel")
	}
}
