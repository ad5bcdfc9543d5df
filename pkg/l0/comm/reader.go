package comm

import (
	"context"
	"io"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/robotalks/xmega.go/pkg/l0/typedef"
)

// Reader decodes frames from the link and dispatches payloads to
// bound handlers.
type Reader struct {
	Source   io.Reader
	Table    *typedef.Table
	Bindings *Bindings

	// Noise limits logging of unknown codes, which are usually produced
	// by a desynchronized stream and would flood the log.
	Noise *rate.Limiter
}

// NewReader creates a Reader.
func NewReader(src io.Reader, table *typedef.Table, bindings *Bindings) *Reader {
	return &Reader{
		Source:   src,
		Table:    table,
		Bindings: bindings,
		Noise:    rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Run reads and dispatches frames until the source fails or ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		frame, err := Decode(r.Source)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		r.Dispatch(ctx, frame)
	}
}

// Dispatch delivers a decoded frame to its handler. Handlers are called
// without any lock held, so they may send or bind.
func (r *Reader) Dispatch(ctx context.Context, frame *Frame) {
	declared, err := r.Table.LengthOf(frame.Code)
	if err != nil {
		if r.Noise == nil || r.Noise.Allow() {
			glog.Warningf("RCV %s dropped: %v", frame, err)
		}
		return
	}
	if frame.HasError() {
		glog.Warningf("RCV %s error flag set", frame)
	}
	if n, fixed := declared.Bytes(); fixed && n != len(frame.Payload) {
		glog.Warningf("RCV %s declared length %d", frame, n)
	} else if declared == typedef.LengthVariable && frame.Class != ClassVariable {
		glog.Warningf("RCV %s declared variable length", frame)
	}

	name, _ := r.Table.IncomingName(frame.Code)
	h, ok := r.Bindings.Lookup(frame.Code)
	if !ok {
		glog.V(1).Infof("RCV %s %s unbound", name, frame)
		return
	}
	glog.V(2).Infof("RCV %s %s", name, frame)
	h.HandlePayload(ctx, frame.Payload)
}
