package comm

import (
	"context"
	"io"
	"time"

	"github.com/golang/glog"
)

// DefaultKeepAliveInterval is the interval of keep-alive frames expected
// by the device watchdog.
const DefaultKeepAliveInterval = 500 * time.Millisecond

// Writer sends queued messages and keep-alive frames.
type Writer struct {
	Sink      io.Writer
	Queue     *Queue
	KeepAlive byte
	Interval  time.Duration
}

// NewWriter creates a Writer with DefaultKeepAliveInterval.
func NewWriter(sink io.Writer, queue *Queue, keepAlive byte) *Writer {
	return &Writer{
		Sink:      sink,
		Queue:     queue,
		KeepAlive: keepAlive,
		Interval:  DefaultKeepAliveInterval,
	}
}

// Run writes one frame per iteration until the sink fails or ctx is done.
// The keep-alive frame is due one interval after the previous one
// regardless of the queue, and a message is only waited for until then.
func (w *Writer) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	buf := make([]byte, 0, MaxPayload+2)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		wait := interval - time.Since(last)
		if wait <= 0 {
			if err := w.write(ctx, append(buf[:0], w.KeepAlive)); err != nil {
				return err
			}
			last = time.Now()
			continue
		}
		msg, ok := w.Queue.DequeueOrWait(ctx, wait)
		if !ok {
			continue
		}
		frame, err := AppendFrame(buf[:0], msg.Code, msg.Payload)
		if err != nil {
			glog.Errorf("SND %s dropped: %v", msg, err)
			continue
		}
		glog.V(2).Infof("SND %s", msg)
		if err = w.write(ctx, frame); err != nil {
			return err
		}
	}
}

func (w *Writer) write(ctx context.Context, frame []byte) error {
	if _, err := w.Sink.Write(frame); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
