// ABOUTME: WebSocket link carrying network events between two processes
// ABOUTME: Handles listen/dial, the hello handshake and bridging to a device attachment
package netlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hactar-dev/hactar-sim/internal/protocol"
	"github.com/hactar-dev/hactar-sim/internal/version"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Path is the HTTP path the link is served on
const Path = "/hactar"

const handshakeTimeout = 5 * time.Second

// ErrBusy is reported to a second peer while a link is already being accepted
var ErrBusy = errors.New("link busy")

// ErrSameName is returned when the peer uses this end's device name. Click
// counts are keyed by name, so the two ends must differ.
var ErrSameName = errors.New("peer uses the same device name")

// Conn is an established link
type Conn struct {
	ws     *websocket.Conn
	local  protocol.Hello
	remote protocol.Hello
	logger *zap.Logger

	closeOnce sync.Once
}

func newHello(device string) protocol.Hello {
	return protocol.Hello{
		SessionID: uuid.NewString(),
		Device:    device,
		Version:   version.Version,
	}
}

// Dial connects to a listening peer at addr (host:port) as device
func Dial(ctx context.Context, addr, device string, logger *zap.Logger) (*Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	logger.Info("connecting", zap.String("url", u.String()))

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Conn{ws: ws, local: newHello(device), logger: logger.Named("netlink")}
	if err := c.sendHello(); err != nil {
		ws.Close()
		return nil, err
	}
	if err := c.readHello(); err != nil {
		ws.Close()
		return nil, err
	}

	c.logger.Info("link established",
		zap.String("peer", c.remote.Device),
		zap.String("session", c.remote.SessionID))
	return c, nil
}

func (c *Conn) sendHello() error {
	msg := protocol.Message{Type: protocol.MessageHello, Payload: c.local}
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}
	return nil
}

func (c *Conn) readHello() error {
	c.ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code == websocket.ClosePolicyViolation && ce.Text == ErrSameName.Error() {
			return fmt.Errorf("peer rejected hello: %w", ErrSameName)
		}
		return fmt.Errorf("failed to read hello: %w", err)
	}
	c.ws.SetReadDeadline(time.Time{})

	var msg struct {
		Type    string         `json:"type"`
		Payload protocol.Hello `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse hello: %w", err)
	}
	if msg.Type != protocol.MessageHello {
		return fmt.Errorf("expected hello, got %s", msg.Type)
	}
	if msg.Payload.Device == "" {
		return fmt.Errorf("hello without device name")
	}
	if msg.Payload.Device == c.local.Device {
		return fmt.Errorf("hello from %q: %w", msg.Payload.Device, ErrSameName)
	}

	c.remote = msg.Payload
	return nil
}

// Local returns the hello this end sent
func (c *Conn) Local() protocol.Hello { return c.local }

// Remote returns the hello the peer sent
func (c *Conn) Remote() protocol.Hello { return c.remote }

// Close closes the underlying connection
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.ws.Close() })
	return err
}

// Bridge carries the attachment's outbound events to the peer and the peer's
// events into the attachment until either side closes or ctx is done. Order
// is preserved in both directions. The attachment's inbound sender is closed
// on return.
func (c *Conn) Bridge(ctx context.Context, att protocol.Attachment) error {
	defer att.Inbound.Close()
	defer att.Outbound.Abandon()
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := &errgroup.Group{}

	g.Go(func() error {
		<-ctx.Done()
		c.Close()
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return c.writeLoop(ctx, att)
	})

	g.Go(func() error {
		defer cancel()
		return c.readLoop(ctx, att)
	})

	return g.Wait()
}

func (c *Conn) writeLoop(ctx context.Context, att protocol.Attachment) error {
	sent := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-att.Outbound.C():
			if !ok {
				c.logger.Debug("local side closed", zap.Int("sent", sent))
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}

			frame, err := protocol.EncodeEvent(ev)
			if err != nil {
				return err
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("write failed: %w", err)
			}
			sent++
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, att protocol.Attachment) error {
	received := 0
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("peer closed", zap.Int("received", received))
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		if messageType != websocket.BinaryMessage {
			c.logger.Debug("ignoring non-binary message")
			continue
		}

		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			c.logger.Warn("dropping bad frame", zap.Error(err))
			continue
		}
		att.Inbound.Send(ev)
		received++
	}
}

// Listener accepts a single peer at a time on Path
type Listener struct {
	logger   *zap.Logger
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
}

// Listen starts serving the link endpoint on addr
func Listen(addr string, logger *zap.Logger) (*Listener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l := &Listener{
		logger:   logger.Named("netlink"),
		listener: ln,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(chan *websocket.Conn),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.handleWebSocket)
	l.server = &http.Server{Handler: mux}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("link server failed", zap.Error(err))
		}
	}()

	l.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return l, nil
}

func (l *Listener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	select {
	case l.conns <- ws:
	case <-time.After(handshakeTimeout):
		l.logger.Warn("rejecting peer, no one accepting", zap.String("remote", r.RemoteAddr))
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrBusy.Error()))
		ws.Close()
	}
}

// Addr returns the address the listener is bound to
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Port returns the bound TCP port
func (l *Listener) Port() int {
	if a, ok := l.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Accept waits for a peer and completes the handshake as device
func (l *Listener) Accept(ctx context.Context, device string) (*Conn, error) {
	for {
		var ws *websocket.Conn
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ws = <-l.conns:
		}

		c := &Conn{ws: ws, local: newHello(device), logger: l.logger}
		if err := c.readHello(); err != nil {
			l.logger.Warn("handshake failed", zap.Error(err))
			if errors.Is(err, ErrSameName) {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrSameName.Error()),
					time.Now().Add(time.Second))
			}
			ws.Close()
			continue
		}
		if err := c.sendHello(); err != nil {
			l.logger.Warn("handshake failed", zap.Error(err))
			ws.Close()
			continue
		}

		l.logger.Info("link established",
			zap.String("peer", c.remote.Device),
			zap.String("session", c.remote.SessionID))
		return c, nil
	}
}

// Close stops accepting peers. Established links are not affected.
func (l *Listener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}
