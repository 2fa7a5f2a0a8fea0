package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// announcementType is the discriminator devices put in their broadcasts.
const announcementType = "device_announcement"

// maxDatagramSize bounds a single announcement packet.
const maxDatagramSize = 2048

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AnnouncementHandler receives one parsed device announcement. The
// payload has been validated as an announcement but not normalized;
// that is the registry pipeline's job.
type AnnouncementHandler func(payload map[string]any, from net.Addr)

// Listener consumes device_announcement broadcasts on a UDP port.
type Listener struct {
	addr    string
	handler AnnouncementHandler
	logger  Logger

	mu   sync.Mutex
	conn net.PacketConn
}

// NewListener creates a listener bound to the given UDP port when Run
// is called.
func NewListener(port int, handler AnnouncementHandler) *Listener {
	return &Listener{
		addr:    fmt.Sprintf(":%d", port),
		handler: handler,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	l.logger = logger
}

// Addr returns the bound address, or nil before Run binds the socket.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Run binds the UDP socket and consumes announcements until the context
// is cancelled. Malformed datagrams are logged and dropped.
func (l *Listener) Run(ctx context.Context) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", l.addr)
	if err != nil {
		return fmt.Errorf("binding announcement listener on %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	// Unblock ReadFrom on shutdown.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	l.logger.Info("announcement listener started", "addr", conn.LocalAddr().String())

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading announcement socket: %w", err)
		}
		l.handleDatagram(buf[:n], from)
	}
}

func (l *Listener) handleDatagram(data []byte, from net.Addr) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		l.logger.Debug("dropping non-JSON datagram", "from", from.String())
		return
	}
	if t, _ := payload["type"].(string); t != announcementType {
		l.logger.Debug("dropping unknown datagram", "from", from.String())
		return
	}

	// The firmware stamps announcements with millis since boot, not wall
	// clock time. Strip it so it can never be mistaken for a last-seen
	// timestamp downstream.
	delete(payload, "timestamp")

	if l.handler != nil {
		l.handler(payload, from)
	}
}
