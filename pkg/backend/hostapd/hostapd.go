// Package hostapd implements the control-socket backend (spec component
// C): text request/response over a hostapd-style AF_UNIX datagram socket,
// plus a lazily-opened second socket carrying the unsolicited event
// stream.
package hostapd

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

// Backend talks to a local hostapd control socket for a single radio
// interface.
type Backend struct {
	logger      *logx.Logger
	ctrlPath    string // directory holding the control socket named after iface
	iface       string
	readTimeout time.Duration

	mu       sync.Mutex // serialises (re)opening either socket
	cmdConn  *net.UnixConn
	evtConn  *net.UnixConn
	tmpDir   string
	nextSeq  int
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithReadTimeout overrides the default per-request read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(b *Backend) { b.readTimeout = d }
}

// New creates a control-socket backend for iface, whose socket lives at
// <ctrlPath>/<iface>.
func New(ctrlPath, iface string, logger *logx.Logger, opts ...Option) *Backend {
	b := &Backend{
		logger:      logger.WithComponent("backend.hostapd"),
		ctrlPath:    ctrlPath,
		iface:       iface,
		readTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return "hostapd:" + b.iface }

func (b *Backend) socketPath() string {
	return filepath.Join(b.ctrlPath, b.iface)
}

// openCommandSocket opens (or reuses) the socket used for SubmitBlocking.
// Serialised by b.mu because the underlying unix-socket client library the
// original links against is not re-entrant (spec.md §4.C).
func (b *Backend) openCommandSocket() (*net.UnixConn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmdConn != nil {
		return b.cmdConn, nil
	}
	conn, err := b.dial()
	if err != nil {
		return nil, err
	}
	b.cmdConn = conn
	return conn, nil
}

// openEventSocket opens (or reuses) the distinct socket used for
// unsolicited events, attaching for notifications on first open.
func (b *Backend) openEventSocket() (*net.UnixConn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.evtConn != nil {
		return b.evtConn, nil
	}
	conn, err := b.dial()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte("ATTACH")); err != nil {
		conn.Close()
		return nil, fmt.Errorf("hostapd: attach failed: %w", err)
	}
	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(b.readTimeout))
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("hostapd: attach ack failed: %w", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "OK") {
		conn.Close()
		return nil, fmt.Errorf("hostapd: attach rejected: %q", string(buf[:n]))
	}
	b.evtConn = conn
	return conn, nil
}

func (b *Backend) dial() (*net.UnixConn, error) {
	if b.tmpDir == "" {
		dir, err := os.MkdirTemp("", "dcsd-hostapd-")
		if err != nil {
			return nil, fmt.Errorf("hostapd: mktemp: %w", err)
		}
		b.tmpDir = dir
	}
	b.nextSeq++
	local := &net.UnixAddr{
		Name: filepath.Join(b.tmpDir, strconv.Itoa(b.nextSeq)),
		Net:  "unixgram",
	}
	remote := &net.UnixAddr{Name: b.socketPath(), Net: "unixgram"}

	conn, err := net.DialUnix("unixgram", local, remote)
	if err != nil {
		return nil, fmt.Errorf("hostapd: dial %s: %w", remote.Name, err)
	}
	return conn, nil
}

// Close releases both sockets and the scratch directory used for the
// client-side socket names.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	if b.cmdConn != nil {
		if err := b.cmdConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.cmdConn = nil
	}
	if b.evtConn != nil {
		if err := b.evtConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.evtConn = nil
	}
	if b.tmpDir != "" {
		os.RemoveAll(b.tmpDir)
		b.tmpDir = ""
	}
	return firstErr
}

// SubmitBlocking sends request's string-keyed value as a single command
// line and parses the multi-line key=value response into an *item.Item
// list.
func (b *Backend) SubmitBlocking(ctx context.Context, request *item.Item) (*item.Item, error) {
	conn, err := b.openCommandSocket()
	if err != nil {
		return nil, err
	}

	line := request.ValueString()
	deadline := time.Now().Add(b.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(line)); err != nil {
		b.invalidateCommandSocket()
		return nil, fmt.Errorf("hostapd: write %q: %w", line, err)
	}

	buf := make([]byte, 8192)
	n, err := conn.Read(buf)
	if err != nil {
		b.invalidateCommandSocket()
		return nil, fmt.Errorf("hostapd: read reply to %q: %w", line, err)
	}

	return parseResponse(buf[:n]), nil
}

func (b *Backend) invalidateCommandSocket() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmdConn != nil {
		b.cmdConn.Close()
		b.cmdConn = nil
	}
}

// PumpAsync blocks up to timeout for one unsolicited event line, stripping
// a leading "<N>" priority marker before parsing the first token as the
// event's key.
func (b *Backend) PumpAsync(ctx context.Context, timeout time.Duration) (*item.Item, error) {
	if timeout > backend.MaxPumpTimeout {
		timeout = backend.MaxPumpTimeout
	}
	conn, err := b.openEventSocket()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, backend.ErrTimeout
		}
		return nil, fmt.Errorf("hostapd: event read: %w", err)
	}

	return parseEvent(buf[:n]), nil
}

// ParseRequestArgs builds a single-line command request from positional
// string arguments, space-joined.
func (b *Backend) ParseRequestArgs(args ...interface{}) (*item.Item, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return item.New([]byte(strings.Join(parts, " "))), nil
}

// parseResponse turns a "key=value\n"-per-line control reply into a
// sibling list of *item.Item. A single bare line with no "=" (e.g. "OK",
// "FAIL") becomes one item whose string key is the first token and whose
// value is the whole line, so callers can test for a literal "OK" key.
func parseResponse(data []byte) *item.Item {
	var head *item.Item
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '='); idx >= 0 {
			key := line[:idx]
			val := line[idx+1:]
			head = item.Append(head, item.NewString(item.StringKey(key), val))
			continue
		}
		head = item.Append(head, item.NewString(item.StringKey(line), line))
	}
	return head
}

// parseEvent strips an optional "<N>" priority prefix and turns the first
// whitespace-delimited token into the event's key; the remainder of the
// line is carried as the item's value for any caller that wants it.
func parseEvent(data []byte) *item.Item {
	line := strings.TrimRight(string(data), "\r\n")
	if strings.HasPrefix(line, "<") {
		if idx := strings.IndexByte(line, '>'); idx > 0 {
			line = line[idx+1:]
		}
	}
	fields := strings.Fields(line)
	name := line
	if len(fields) > 0 {
		name = fields[0]
	}
	return item.NewString(item.StringKey(name), line)
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.RequestArgsParser = (*Backend)(nil)
var _ backend.Closer = (*Backend)(nil)
