package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// MaxDatagramSize is the largest datagram this socket will read. It comfortably
// covers the 1200-byte SCTP MTU plus DTLS record and STUN overhead.
const MaxDatagramSize = 1500

// ReadHandler is invoked for every datagram received on the socket. from is
// the address the datagram arrived from; data is only valid for the
// duration of the call and must be copied by the handler if retained.
type ReadHandler func(data []byte, from net.Addr)

// Conn wraps a single bound net.PacketConn. A peer connection binds exactly
// one of these; ICE gathers candidates on it, and once a pair is nominated
// all DTLS/SCTP traffic flows over it too.
type Conn struct {
	conn    net.PacketConn
	handler ReadHandler
	log     logging.LeveledLogger

	closeCh chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool

	activityMu   sync.Mutex
	lastActivity map[string]time.Time
}

// Config configures a Conn.
type Config struct {
	// PacketConn is an optional pre-bound connection. If nil, a new UDP
	// socket is bound to ListenAddr.
	PacketConn net.PacketConn

	// ListenAddr is used to bind a new socket when PacketConn is nil.
	// An empty string binds an ephemeral port on all interfaces.
	ListenAddr string

	// Handler receives every datagram read off the socket. Required.
	Handler ReadHandler

	// LoggerFactory builds the component logger. Logging is disabled when nil.
	LoggerFactory logging.LoggerFactory
}

// New binds (or adopts) a UDP socket per Config.
func New(config Config) (*Conn, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	c := &Conn{
		conn:         config.PacketConn,
		handler:      config.Handler,
		closeCh:      make(chan struct{}),
		lastActivity: make(map[string]time.Time),
	}

	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("transport")
	}

	if c.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		c.conn = conn
	}

	return c, nil
}

// Start begins the read loop. Datagrams are delivered to the configured
// Handler synchronously from the loop goroutine, in receive order.
func (c *Conn) Start() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	if c.log != nil {
		c.log.Infof("listening on %s", c.conn.LocalAddr())
	}

	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// Close stops the read loop and releases the socket. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.closeCh)
	c.conn.SetReadDeadline(time.Now())
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// WriteTo writes a datagram to addr. Multiple WriteTo calls from the same
// goroutine reach the socket in call order. A write above MaxDatagramSize
// is refused rather than silently fragmented or truncated by the kernel.
func (c *Conn) WriteTo(data []byte, addr net.Addr) (int, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return 0, ErrClosed
	}
	c.mu.RUnlock()

	if addr == nil {
		return 0, ErrInvalidAddress
	}
	if len(data) > MaxDatagramSize {
		if c.log != nil {
			c.log.Warnf("refusing to write %d bytes to %v: exceeds MaxDatagramSize", len(data), addr)
		}
		return 0, ErrDatagramTooLarge
	}
	return c.conn.WriteTo(data, addr)
}

// LocalAddr returns the address the socket is bound to.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// LastActivity returns when a datagram was last received from addr, and
// whether one has arrived at all. ICE uses this to tell an idle nominated
// pair from one that is still exchanging traffic, without this socket
// needing to know anything about candidates or checklists itself.
func (c *Conn) LastActivity(addr net.Addr) (time.Time, bool) {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	t, ok := c.lastActivity[addr.String()]
	return t, ok
}

func (c *Conn) recordActivity(addr net.Addr) {
	c.activityMu.Lock()
	c.lastActivity[addr.String()] = time.Now()
	c.activityMu.Unlock()
}

func (c *Conn) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-c.closeCh:
				return
			default:
				if c.log != nil {
					c.log.Warnf("read error: %v", err)
				}
				continue
			}
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		c.recordActivity(addr)

		if c.log != nil {
			c.log.Debugf("received %d bytes from %v", n, addr)
		}
		c.handler(data, addr)
	}
}
