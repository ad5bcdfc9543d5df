package comm

import (
	"io"
	"sync"
)

// Stream is the byte stream of a port.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Link is the byte stream to the device, shared by one Reader and one
// Writer. It has no knowledge of frames.
type Link struct {
	name string
	rwc  Stream

	closeOnce sync.Once
	closeErr  error
}

// NewLink wraps a byte stream.
func NewLink(name string, rwc Stream) *Link {
	return &Link{name: name, rwc: rwc}
}

// Name returns the name of the link, usually the port.
func (l *Link) Name() string {
	return l.name
}

// Read blocks until p is filled. A read returning neither data nor error
// is the read timeout of the underlying port and fails with ErrReadTimeout.
func (l *Link) Read(p []byte) (int, error) {
	var n int
	for n < len(p) {
		c, err := l.rwc.Read(p[n:])
		n += c
		if err != nil {
			return n, &LinkError{Op: OpRead, Name: l.name, Err: err}
		}
		if c == 0 {
			return n, &LinkError{Op: OpRead, Name: l.name, Err: ErrReadTimeout}
		}
	}
	return n, nil
}

// Write writes all of p in one call to the underlying stream.
func (l *Link) Write(p []byte) (int, error) {
	n, err := l.rwc.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return n, &LinkError{Op: OpWrite, Name: l.name, Err: err}
	}
	return n, nil
}

// Close closes the underlying stream once. Pending reads are released.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.rwc.Close()
	})
	return l.closeErr
}
