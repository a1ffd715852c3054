// Package mail wraps RFC822 messages for the import pipeline: parsing,
// header access and stamping, plain-text body extraction, and
// Message-ID handling.
package mail

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Header names with special meaning to the engine.
const (
	HeaderMessageID = "Message-ID"
	HeaderInReplyTo = "In-Reply-To"
	HeaderSubject   = "Subject"
	HeaderFrom      = "From"
	HeaderTo        = "To"
	HeaderCc        = "Cc"
	HeaderDate      = "Date"
	HeaderReceived  = "Received"

	// HeaderControl marks messages generated by the engine itself.
	// Inbound messages carrying it are rejected to prevent feedback
	// loops.
	HeaderControl = "X-LightBTS-Control"

	// HeaderStatus seeds the intended status before the body is
	// scanned for directives.
	HeaderStatus = "X-LightBTS-Status"
)

type headerEntry struct {
	key   string // canonical form as received
	value string
}

// Message is a mutable RFC822 message. Headers keep their original
// order; stamped headers are prepended.
type Message struct {
	headers []headerEntry
	body    []byte
}

// New returns an empty message.
func New() *Message {
	return &Message{}
}

// Parse splits raw into headers and body. Folded header lines are
// unfolded; header order is preserved.
func Parse(raw []byte) (*Message, error) {
	m := &Message{}

	r := bufio.NewReader(bytes.NewReader(raw))
	var last *headerEntry
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			// End of headers; the rest is the body.
			body, err := io.ReadAll(r)
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			m.body = body
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			// Continuation of the previous header.
			if last == nil {
				return nil, fmt.Errorf("malformed header: continuation without header line")
			}
			last.value += " " + strings.TrimSpace(trimmed)
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", trimmed)
		}
		m.headers = append(m.headers, headerEntry{key: strings.TrimSpace(key), value: strings.TrimSpace(value)})
		last = &m.headers[len(m.headers)-1]
		if err == io.EOF {
			break
		}
	}

	return m, nil
}

// Bytes serializes the message.
func (m *Message) Bytes() []byte {
	var buf bytes.Buffer
	for _, h := range m.headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.key, h.value)
	}
	buf.WriteString("\r\n")
	buf.Write(m.body)
	return buf.Bytes()
}

// Header returns the first value of the named header, or "".
func (m *Message) Header(key string) string {
	for _, h := range m.headers {
		if strings.EqualFold(h.key, key) {
			return h.value
		}
	}
	return ""
}

// SetHeader replaces the named header, or prepends it if absent.
func (m *Message) SetHeader(key, value string) {
	for i := range m.headers {
		if strings.EqualFold(m.headers[i].key, key) {
			m.headers[i].value = value
			return
		}
	}
	m.headers = append([]headerEntry{{key: key, value: value}}, m.headers...)
}

// AddHeader prepends the named header without replacing existing ones.
func (m *Message) AddHeader(key, value string) {
	m.headers = append([]headerEntry{{key: key, value: value}}, m.headers...)
}

// SetBody replaces the message body with plain text.
func (m *Message) SetBody(text string) {
	m.body = []byte(text)
}

// MessageID returns the unquoted Message-ID, without angle brackets.
func (m *Message) MessageID() string {
	return Unquote(m.Header(HeaderMessageID))
}

// InReplyTo returns the unquoted message id of the reply-reference
// header, or "".
func (m *Message) InReplyTo() string {
	return Unquote(m.Header(HeaderInReplyTo))
}

// Subject returns the Subject header.
func (m *Message) Subject() string {
	return m.Header(HeaderSubject)
}

// Date returns the parsed Date header, or the zero time.
func (m *Message) Date() time.Time {
	t, err := netmail.ParseDate(m.Header(HeaderDate))
	if err != nil {
		return time.Time{}
	}
	return t
}

// From returns the bare address of the first From address, or the raw
// header value when it cannot be parsed.
func (m *Message) From() string {
	raw := m.Header(HeaderFrom)
	addr, err := netmail.ParseAddress(raw)
	if err != nil {
		return raw
	}
	return addr.Address
}

// Participants returns the bare addresses found in the From, To and Cc
// headers. Display names are dropped; unparsable headers are skipped.
func (m *Message) Participants() []string {
	var out []string
	for _, key := range []string{HeaderFrom, HeaderTo, HeaderCc} {
		raw := m.Header(key)
		if raw == "" {
			continue
		}
		addrs, err := netmail.ParseAddressList(raw)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			out = append(out, a.Address)
		}
	}
	return out
}

// IsControl reports whether the message carries the internal control
// marker.
func (m *Message) IsControl() bool {
	return m.Header(HeaderControl) != ""
}

// Body returns the decoded plain-text part of the message. For
// multipart messages the first text/plain leaf wins; for everything
// else the raw body is returned as-is.
func (m *Message) Body() string {
	ct := m.Header("Content-Type")
	body := decodeTransferEncoding(m.body, m.Header("Content-Transfer-Encoding"))
	if ct == "" {
		return string(body)
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return string(body)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return string(body)
	}
	text, ok := findTextPart(bytes.NewReader(m.body), params["boundary"])
	if !ok {
		return ""
	}
	return text
}

func findTextPart(r io.Reader, boundary string) (string, bool) {
	if boundary == "" {
		return "", false
	}
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			return "", false
		}
		ct := part.Header.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(ct)
		if err != nil && ct != "" {
			continue
		}
		switch {
		case ct == "", strings.HasPrefix(mediaType, "text/plain"):
			data, err := io.ReadAll(part)
			if err != nil {
				return "", false
			}
			return string(decodeTransferEncoding(data, part.Header.Get("Content-Transfer-Encoding"))), true
		case strings.HasPrefix(mediaType, "multipart/"):
			if text, ok := findTextPart(part, params["boundary"]); ok {
				return text, true
			}
		}
	}
}

func decodeTransferEncoding(data []byte, encoding string) []byte {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return decoded
	case "base64":
		decoded, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return decoded
	default:
		return data
	}
}

// Unquote strips the angle-bracket quoting convention from a message
// id so store and load derive identical keys.
func Unquote(msgid string) string {
	msgid = strings.TrimSpace(msgid)
	msgid = strings.TrimPrefix(msgid, "<")
	msgid = strings.TrimSuffix(msgid, ">")
	return msgid
}

// Quote wraps a message id in angle brackets if it is not already.
func Quote(msgid string) string {
	if strings.HasPrefix(msgid, "<") {
		return msgid
	}
	return "<" + msgid + ">"
}

// NewMessageID generates a unique message id for messages that arrive
// without one and for engine-built control messages.
func NewMessageID(project string) string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	host := strings.ToLower(strings.ReplaceAll(project, " ", "-"))
	if host == "" {
		host = "lightbts"
	}
	return fmt.Sprintf("%s@%s", id, host)
}
