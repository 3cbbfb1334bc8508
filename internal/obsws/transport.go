package obsws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultPort is the port obs-websocket listens on unless configured otherwise.
const DefaultPort = 4455

const (
	readLimit    = 1 << 20
	writeTimeout = 5 * time.Second
)

// frameHandler receives everything the read loop produces.
type frameHandler interface {
	handleFrame(f Frame)
	handleClose(err error)
}

// transport owns one WebSocket connection.
type transport struct {
	conn *websocket.Conn
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Endpoint builds the WebSocket URL for host. A host that already carries a
// port is used as is.
func Endpoint(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return "ws://" + host
	}
	if port <= 0 {
		port = DefaultPort
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func dialTransport(ctx context.Context, url string, log *slog.Logger) (*transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)

	tctx, cancel := context.WithCancel(context.Background())
	return &transport{conn: conn, log: log, ctx: tctx, cancel: cancel}, nil
}

// run reads until the connection fails, handing every decoded frame to h.
// Malformed frames are logged and dropped. handleClose is called exactly once.
func (t *transport) run(h frameHandler) {
	for {
		typ, data, err := t.conn.Read(t.ctx)
		if err != nil {
			h.handleClose(err)
			return
		}
		if typ != websocket.MessageText {
			t.log.Warn("dropping non-text frame", slog.Int("type", int(typ)))
			continue
		}

		f, err := DecodeFrame(data)
		if err != nil {
			t.log.Warn("dropping malformed frame", slog.String("error", err.Error()), slog.Int("size", len(data)))
			continue
		}
		h.handleFrame(f)
	}
}

// send writes f as a single text message. Writes are bounded by the
// transport's own context: a cancelled write context closes the connection,
// so caller contexts must not reach conn.Write.
func (t *transport) send(f Frame) error {
	b, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(t.ctx, writeTimeout)
	defer cancel()
	if err := t.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("write op %d: %w", f.Op(), err)
	}
	return nil
}

// close performs a normal closure and stops the read loop.
func (t *transport) close() {
	t.closeOnce.Do(func() {
		if err := t.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			t.log.Debug("close handshake incomplete", slog.String("error", err.Error()))
		}
		t.cancel()
	})
}

// cleanClose reports whether err ends the connection through a close frame or
// a local close, as opposed to a broken connection.
func cleanClose(err error) bool {
	return websocket.CloseStatus(err) != -1 || errors.Is(err, net.ErrClosed)
}

// closeStatus returns the close code carried by err, or -1.
func closeStatus(err error) int {
	return int(websocket.CloseStatus(err))
}
