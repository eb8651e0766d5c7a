package progress

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/heyjunin/vodforge/pkg/logger"
)

// Listener receives the encoder's side-channel progress reports. The encoder
// is started with the listener's Endpoint as an extra progress output and
// writes line-oriented key=value reports to it for the lifetime of one
// encode. Each report carrying cumulative processed time is converted to a
// local percentage of the variant's total duration and handed to the sample
// callback.
//
// One Listener serves one encoder run. Close is safe to call at any point
// and on every exit path; it unblocks the accept loop and closes any open
// connection.
type Listener struct {
	ln       net.Listener
	total    float64
	onSample func(percent float64)

	mu     sync.Mutex
	conn   net.Conn
	closed bool
	done   chan struct{}
}

// NewListener binds a loopback TCP port and starts accepting in the
// background. totalSeconds is the duration of the variant's source; when it
// is zero or unknown every report maps to 0% and completion handling snaps
// the percentage instead.
func NewListener(totalSeconds float64, onSample func(percent float64)) (*Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to bind progress listener: %w", err)
	}
	l := &Listener{
		ln:       ln,
		total:    totalSeconds,
		onSample: onSample,
		done:     make(chan struct{}),
	}
	go l.serve()
	return l, nil
}

// Endpoint returns the address the encoder should write progress reports to,
// in the form the encoder expects as a progress output target.
func (l *Listener) Endpoint() string {
	return fmt.Sprintf("tcp://%s", l.ln.Addr().String())
}

// Close stops the listener and waits for the report loop to finish.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return nil
	}
	l.closed = true
	conn := l.conn
	l.mu.Unlock()

	err := l.ln.Close()
	if conn != nil {
		conn.Close()
	}
	<-l.done
	return err
}

func (l *Listener) serve() {
	defer close(l.done)

	conn, err := l.ln.Accept()
	if err != nil {
		// Closed before the encoder connected, or the encoder never did.
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		conn.Close()
		return
	}
	l.conn = conn
	l.mu.Unlock()

	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if percent, ok := ParseLine(scanner.Text(), l.total); ok {
			l.onSample(percent)
		}
	}
	if err := scanner.Err(); err != nil {
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if !closed {
			logger.Debug("Progress connection ended", "progress", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// ParseLine extracts a progress percentage from one key=value report line.
// Only out_time_us is relevant: it carries the cumulative processed time in
// microseconds. Every other key, and any malformed value, reports ok=false.
// A non-positive total duration always yields 0 so the caller stays at zero
// until the variant completes.
func ParseLine(line string, totalSeconds float64) (percent float64, ok bool) {
	key, value, found := strings.Cut(line, "=")
	if !found || strings.TrimSpace(key) != "out_time_us" {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false
	}
	if totalSeconds <= 0 {
		return 0, true
	}
	percent = float64(us) / 1e6 / totalSeconds * 100
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent, true
}
