package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/tivoli-arcade/gokart/pkg/streaming"
)

const (
	eventBuffer    = 256
	ackBuffer      = 16
	maxRedial      = 10
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
	ackTimeout     = 10 * time.Second
)

var errReadStopped = errors.New("overlay read loop stopped")

// link owns the overlay socket. One pump goroutine performs every write.
// Race events are queued in order; position frames collapse to the newest
// one, since the overlay only draws where the kart is now. After a reconnect
// the pump replays the running race's start, its laps and the last position.
type link struct {
	url     string
	secret  string
	backoff time.Duration
	logger  *slog.Logger

	events chan []byte
	wake   chan struct{}
	acks   chan streaming.AckMessage
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	conn     *ws.Conn
	replay   [][]byte // start_race then lap frames of the running race
	position []byte   // newest position frame not yet written
	lastPos  []byte   // newest position frame seen, replayed on reconnect

	dropped   atomic.Uint64
	coalesced atomic.Uint64
}

func newLink(logger *slog.Logger) *link {
	return &link{
		backoff: initialBackoff,
		logger:  logger,
		events:  make(chan []byte, eventBuffer),
		wake:    make(chan struct{}, 1),
		acks:    make(chan streaming.AckMessage, ackBuffer),
		done:    make(chan struct{}),
	}
}

// open dials the overlay server and starts the pump.
func (l *link) open(rawURL, secret string) error {
	l.url = rawURL
	l.secret = secret

	conn, err := l.dial()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	go l.pump(conn)
	return nil
}

func (l *link) dial() (*ws.Conn, error) {
	u, err := url.Parse(l.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", l.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// pump writes frames until shutdown, redialling whenever the socket breaks.
func (l *link) pump(conn *ws.Conn) {
	for conn != nil {
		broken := make(chan struct{})
		go l.readAcks(conn, broken)

		err := l.writeFrames(conn, broken)
		_ = conn.Close()
		if err == nil {
			return
		}

		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		l.logger.Warn("Overlay stream lost", "error", err)
		conn = l.redial()
	}
}

func (l *link) writeFrames(conn *ws.Conn, broken <-chan struct{}) error {
	for {
		select {
		case <-l.done:
			return nil
		case <-broken:
			return errReadStopped
		case frame := <-l.events:
			if err := writeFrame(conn, frame); err != nil {
				return err
			}
		case <-l.wake:
			// Events queued before this position go out first.
			if err := l.flushEvents(conn); err != nil {
				return err
			}
			l.mu.Lock()
			frame := l.position
			l.position = nil
			l.mu.Unlock()
			if frame == nil {
				continue
			}
			if err := writeFrame(conn, frame); err != nil {
				return err
			}
		}
	}
}

func (l *link) flushEvents(conn *ws.Conn) error {
	for {
		select {
		case frame := <-l.events:
			if err := writeFrame(conn, frame); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func writeFrame(conn *ws.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, frame)
}

// readAcks forwards server acks until the socket fails, then closes broken.
func (l *link) readAcks(conn *ws.Conn, broken chan<- struct{}) {
	defer close(broken)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ack streaming.AckMessage
		if err := json.Unmarshal(msg, &ack); err != nil || ack.Type != "ack" {
			l.logger.Debug("Ignoring overlay message", "raw", string(msg))
			continue
		}
		select {
		case l.acks <- ack:
		default:
			l.logger.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// redial reconnects with exponential backoff and restores the race state on
// the new socket. It returns nil on shutdown or when every attempt failed.
func (l *link) redial() *ws.Conn {
	backoff := l.backoff
	for attempt := 1; attempt <= maxRedial; attempt++ {
		select {
		case <-l.done:
			return nil
		case <-time.After(backoff):
		}

		conn, err := l.dial()
		if err == nil {
			err = l.restore(conn)
			if err != nil {
				_ = conn.Close()
			}
		}
		if err != nil {
			l.logger.Warn("Overlay redial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		l.conn = conn
		l.mu.Unlock()
		l.logger.Info("Overlay stream reconnected", "attempt", attempt)
		return conn
	}
	l.logger.Error("Overlay stream gave up reconnecting", "attempts", maxRedial)
	return nil
}

func (l *link) restore(conn *ws.Conn) error {
	l.mu.Lock()
	frames := make([][]byte, 0, len(l.replay)+1)
	frames = append(frames, l.replay...)
	if l.lastPos != nil {
		frames = append(frames, l.lastPos)
	}
	l.mu.Unlock()

	for _, f := range frames {
		if err := writeFrame(conn, f); err != nil {
			return fmt.Errorf("failed to replay race state: %w", err)
		}
	}
	return nil
}

// begin starts a new replay log with the race's start frame.
func (l *link) begin(start []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replay = [][]byte{start}
	l.lastPos = nil
}

// remember adds a frame to the replay log of the running race.
func (l *link) remember(frame []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.replay != nil {
		l.replay = append(l.replay, frame)
	}
}

// forget drops the replay log so a reconnect does not reopen a closed race.
func (l *link) forget() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replay = nil
	l.lastPos = nil
}

// queue hands an event frame to the pump without blocking.
func (l *link) queue(frame []byte) {
	select {
	case l.events <- frame:
	default:
		if l.dropped.Add(1) == 1 {
			l.logger.Warn("Overlay event buffer full, dropping frames")
		}
	}
}

// queuePosition replaces any position frame the pump has not written yet.
func (l *link) queuePosition(frame []byte) {
	l.mu.Lock()
	if l.position != nil {
		l.coalesced.Add(1)
	}
	l.position = frame
	l.lastPos = frame
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// request queues frame and waits for the server to ack its type.
func (l *link) request(frame []byte, ackFor string, timeout time.Duration) error {
	// Acks for replayed frames must not satisfy this request.
	for drained := false; !drained; {
		select {
		case <-l.acks:
		default:
			drained = true
		}
	}
	l.queue(frame)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-l.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-l.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame and stops the pump.
func (l *link) close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	// WriteControl may run alongside the pump's writes.
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
