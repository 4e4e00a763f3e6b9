package irc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

// MaxLineLength is the RFC 1459 limit, CRLF included.
const MaxLineLength = 512

var (
	ErrMalformedLine = errors.New("irc: malformed line")
	ErrLineTooLong   = errors.New("irc: line too long")
)

const (
	RPL_WELCOME          = "001"
	ERR_NOSUCHCHANNEL    = "403"
	ERR_TOOMANYCHANNELS  = "405"
	ERR_NOMOTD           = "422"
	ERR_ERRONEUSNICKNAME = "432"
	ERR_NICKNAMEINUSE    = "433"
	ERR_NICKCOLLISION    = "436"
	ERR_UNAVAILRESOURCE  = "437"
	ERR_LINKCHANNEL      = "470"
	ERR_CHANNELISFULL    = "471"
	ERR_INVITEONLYCHAN   = "473"
	ERR_BANNEDFROMCHAN   = "474"
	ERR_BADCHANNELKEY    = "475"
	ERR_BADCHANMASK      = "476"
	ERR_NEEDREGGEDNICK   = "477"
	ERR_SECUREONLYCHAN   = "489"
	RPL_ENDOFMOTD        = "376"
)

// Message is one protocol line. Raw holds the line as received, without
// the trailing CRLF; it is empty for locally built messages.
type Message struct {
	ircmsg.Message
	Raw string
}

// ParseLine parses one wire line; a trailing CRLF is accepted.
func ParseLine(line string) (Message, error) {
	msg, err := ircmsg.ParseLine(line)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return Message{
		Message: msg,
		Raw:     strings.TrimRight(line, "\r\n"),
	}, nil
}

func NewMessage(command string, params ...string) Message {
	return Message{Message: ircmsg.MakeMessage(nil, "", command, params...)}
}

// Param returns the i-th parameter or "".
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// SourceNick returns the nickname part of a nick!user@host source.
func (m Message) SourceNick() string {
	src := m.Source
	if i := strings.IndexByte(src, '!'); i >= 0 {
		src = src[:i]
	}
	if i := strings.IndexByte(src, '@'); i >= 0 {
		src = src[:i]
	}
	return src
}

// Wire encodes the message with its CRLF terminator.
func (m Message) Wire() (string, error) {
	line, err := m.Message.Line()
	if err != nil {
		return "", fmt.Errorf("irc: encode %s: %w", m.Command, err)
	}
	if len(line) > MaxLineLength {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrLineTooLong, m.Command, len(line))
	}
	return line, nil
}

func (m Message) String() string {
	if m.Raw != "" {
		return m.Raw
	}
	line, err := m.Message.Line()
	if err != nil {
		return m.Command
	}
	return strings.TrimRight(line, "\r\n")
}

