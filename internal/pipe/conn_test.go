package pipe

import (
	"io"
	"sync"
	"testing"

	"github.com/danmuck/hashpipe/internal/irc"
)

type inbound struct {
	msg irc.Message
	err error
}

type sentMessage struct {
	target string
	text   string
	raw    irc.Message
}

// fakeConn stands in for the IRC client. Inbound messages are fed through
// a channel; Disconnect ends the inbound stream like a closed socket.
type fakeConn struct {
	nick        string
	identifyErr error
	inbound     chan inbound

	mu          sync.Mutex
	sent        []sentMessage
	failTargets map[string]error
	sendErr     error
	disconnects int
	quitReason  string

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		nick:        "hashpipe",
		inbound:     make(chan inbound),
		failTargets: make(map[string]error),
		closed:      make(chan struct{}),
	}
}

func (f *fakeConn) Identify() error { return f.identifyErr }

func (f *fakeConn) Nick() string { return f.nick }

func (f *fakeConn) ReadMessage() (irc.Message, error) {
	select {
	case in, ok := <-f.inbound:
		if !ok {
			return irc.Message{}, io.EOF
		}
		return in.msg, in.err
	case <-f.closed:
		return irc.Message{}, irc.ErrClosed
	}
}

func (f *fakeConn) Send(msg irc.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{raw: msg})
	return nil
}

func (f *fakeConn) SendTo(target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTargets[target]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{target: target, text: text})
	return nil
}

func (f *fakeConn) Disconnect(reason string) error {
	f.mu.Lock()
	f.disconnects++
	f.quitReason = reason
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeConn) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// push delivers one inbound line; it blocks until the reader picks it up.
func (f *fakeConn) push(t *testing.T, line string) {
	t.Helper()
	msg, err := irc.ParseLine(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	f.inbound <- inbound{msg: msg}
}

func (f *fakeConn) pushErr(err error) {
	f.inbound <- inbound{err: err}
}

func mustParse(t *testing.T, line string) irc.Message {
	t.Helper()
	msg, err := irc.ParseLine(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return msg
}
