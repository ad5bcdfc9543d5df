// Package port opens links to the XMega.
//
// A link name is either the path of a serial device, or a URL of a
// serial bridge:
//
//	/dev/ttyUSB0             serial device, 8N1
//	tcp://host:port          raw TCP bridge, e.g. ser2net or socat
//	ws://host:port/path      WebSocket bridge, one binary message per frame
package port

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"go.bug.st/serial"
	"golang.org/x/net/websocket"

	"github.com/robotalks/xmega.go/pkg/l0/comm"
)

// DefaultBaud is the baud rate of the XMega firmware.
const DefaultBaud = 256000

// Options configures opening a link.
type Options struct {
	Baud int
	// ReadTimeout fails a read which receives nothing for the duration.
	// Zero blocks until data arrives or the link is closed.
	ReadTimeout time.Duration
	DialTimeout time.Duration
	// Origin is the origin header of WebSocket handshake.
	Origin string
}

// Dialer opens the byte stream for a link name.
type Dialer func(name string, opts Options) (comm.Stream, error)

var dialers = map[string]Dialer{
	"tcp": dialTCP,
	"ws":  dialWebSocket,
	"wss": dialWebSocket,
}

// Register adds a Dialer for a URL scheme.
func Register(scheme string, dialer Dialer) {
	dialers[scheme] = dialer
}

// Open opens a link.
func Open(name string, opts Options) (*comm.Link, error) {
	dial := openSerial
	if u, err := url.Parse(name); err == nil && u.Scheme != "" && strings.Contains(name, "://") {
		d, ok := dialers[u.Scheme]
		if !ok {
			return nil, &comm.LinkError{Op: comm.OpOpen, Name: name, Err: errors.New("unsupported scheme " + u.Scheme)}
		}
		dial = d
	}
	s, err := dial(name, opts)
	if err != nil {
		return nil, &comm.LinkError{Op: comm.OpOpen, Name: name, Err: err}
	}
	return comm.NewLink(name, s), nil
}

func openSerial(name string, opts Options) (comm.Stream, error) {
	baud := opts.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	timeout := serial.NoTimeout
	if opts.ReadTimeout > 0 {
		timeout = opts.ReadTimeout
	}
	if err = p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.Conn.Read(p)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, comm.ErrReadTimeout
	}
	return n, err
}

func dialTCP(name string, opts Options) (comm.Stream, error) {
	u, err := url.Parse(name)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout("tcp", u.Host, dialTimeout(opts))
	if err != nil {
		return nil, err
	}
	return &deadlineConn{Conn: conn, timeout: opts.ReadTimeout}, nil
}

func dialWebSocket(name string, opts Options) (comm.Stream, error) {
	origin := opts.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	config, err := websocket.NewConfig(name, origin)
	if err != nil {
		return nil, err
	}
	config.Dialer = &net.Dialer{Timeout: dialTimeout(opts)}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

func dialTimeout(opts Options) time.Duration {
	if opts.DialTimeout > 0 {
		return opts.DialTimeout
	}
	return 5 * time.Second
}
