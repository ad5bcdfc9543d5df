package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/xmega.go/pkg/framework"
	"github.com/robotalks/xmega.go/pkg/l0/typedef"
)

func newTestProxy(t *testing.T) *Proxy {
	p, err := NewProxy(newTestTable(t), ProxyOptions{KeepAliveInterval: time.Hour})
	require.NoError(t, err)
	return p
}

func TestNewProxyRequiresKeepAlive(t *testing.T) {
	table, err := typedef.NewTable(typedef.Record{Name: "poll_imu", Direction: typedef.DirOutgoing, Code: 0x01})
	require.NoError(t, err)
	_, err = NewProxy(table, ProxyOptions{})
	var unknown *typedef.UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, DefaultKeepAliveName, unknown.Name)

	p, err := NewProxy(table, ProxyOptions{KeepAliveName: "poll_imu"})
	require.NoError(t, err)
	require.Equal(t, byte(0x01), p.keepAlive)
	require.Equal(t, DefaultKeepAliveInterval, p.interval)
}

func TestProxySendValidation(t *testing.T) {
	p := newTestProxy(t)
	var unknown *typedef.UnknownTypeError
	var tooShort *PayloadLengthError
	var tooLarge *PayloadTooLargeError

	require.True(t, errors.As(p.Send("unregistered_name", nil), &unknown))
	require.True(t, errors.As(p.Send("imu_data", []byte{1, 2}), &unknown))
	require.True(t, errors.As(p.Send("poll_imu", []byte{1}), &tooLarge))
	require.True(t, errors.As(p.SendCode(testIMUData, []byte{1}), &tooShort))
	require.Zero(t, p.Pending())

	require.NoError(t, p.Send("poll_imu", nil))
	require.NoError(t, p.SendCode(0x02, nil))
	require.Equal(t, 2, p.Pending())
}

func TestProxyBindValidation(t *testing.T) {
	p := newTestProxy(t)
	var unknown *typedef.UnknownTypeError
	require.True(t, errors.As(p.BindFunc("poll_imu", func(context.Context, []byte) {}), &unknown))
	require.True(t, errors.As(p.Unbind("nope"), &unknown))
	require.NoError(t, p.BindFunc("echo", func(context.Context, []byte) {}))
	require.NoError(t, p.Unbind("echo"))
}

func TestBindingsChain(t *testing.T) {
	var calls []string
	handler := func(name string) Handler {
		return HandlePayloadFunc(func(ctx context.Context, payload []byte) {
			calls = append(calls, name)
		})
	}
	b := NewBindings()
	b.Chain(0x41, handler("a"))
	b.Chain(0x41, handler("b"))
	b.Chain(0x41, handler("c"))
	h, ok := b.Lookup(0x41)
	require.True(t, ok)
	h.HandlePayload(context.Background(), nil)
	require.Equal(t, []string{"a", "b", "c"}, calls)

	b.Bind(0x41, handler("d"))
	h, _ = b.Lookup(0x41)
	calls = nil
	h.HandlePayload(context.Background(), nil)
	require.Equal(t, []string{"d"}, calls)

	p := newTestProxy(t)
	var unknown *typedef.UnknownTypeError
	require.True(t, errors.As(p.Chain("poll_imu", handler("x")), &unknown))
	require.NoError(t, p.Chain("echo", handler("x")))
}

func TestProxyEndToEnd(t *testing.T) {
	p := newTestProxy(t)
	s := newTestStream(t)
	imu := newPayloadRecorder()
	require.NoError(t, p.Bind("imu_data", imu))
	require.NoError(t, p.Start(NewLink("test", s)))

	require.NoError(t, p.Send("poll_imu", nil))
	s.expect("poll_imu", testPollIMU)
	s.inject(0x81, 0x05, 0x09)
	imu.expect(t, "imu_data", []byte{0x05, 0x09})

	require.NoError(t, p.Stop())
	select {
	case <-p.Done():
	default:
		t.Fatal("not done after Stop")
	}
	require.NoError(t, p.Err())
}

func TestProxyHandlerSends(t *testing.T) {
	p := newTestProxy(t)
	s := newTestStream(t)
	require.NoError(t, p.BindFunc("echo", func(ctx context.Context, payload []byte) {
		require.NoError(t, p.Send("echo", payload))
	}))
	require.NoError(t, p.Start(NewLink("test", s)))
	defer p.Stop()

	for i := 0; i < 10; i++ {
		s.inject(testEcho, 1, byte(i))
		s.expect(fmt.Sprintf("echo-%d", i), testEcho, 1, byte(i))
	}
}

func TestProxyProducersFIFO(t *testing.T) {
	const producers, count = 6, 300
	p := newTestProxy(t)
	s := newTestStream(t)
	require.NoError(t, p.Start(NewLink("test", s)))
	defer p.Stop()

	var wg sync.WaitGroup
	for n := 0; n < producers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for i := 0; i < count; i++ {
				require.NoError(t, p.Send("echo", []byte{byte(n), byte(i >> 8), byte(i)}))
			}
		}(n)
	}

	next := make([]int, producers)
	for total := 0; total < producers*count; total++ {
		select {
		case frame := <-s.writeCh:
			require.Len(t, frame, 5)
			require.Equal(t, []byte{testEcho, 3}, frame[:2])
			producer, seq := int(frame[2]), int(frame[3])<<8|int(frame[4])
			require.Equalf(t, next[producer], seq, "producer %d out of order", producer)
			next[producer]++
		case <-time.After(time.Second):
			t.Fatalf("timeout after %d frames", total)
		}
	}
	wg.Wait()
	for n := range next {
		require.Equal(t, count, next[n])
	}
	s.expectNothing("after all", 50*time.Millisecond)
}

func TestProxyReadFailure(t *testing.T) {
	p := newTestProxy(t)
	s := newTestStream(t)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background(), NewLink("test", s)) }()

	require.NoError(t, p.Send("poll_imu", nil))
	s.expect("poll_imu", testPollIMU)
	s.errCh <- errors.New("unplugged")

	select {
	case err := <-errCh:
		var linkErr *LinkError
		require.True(t, errors.As(err, &linkErr))
		require.Equal(t, OpRead, linkErr.Op)
		var aggErr *framework.AggregatedError
		require.False(t, errors.As(err, &aggErr), "writer failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Run not stopped")
	}
	select {
	case <-s.closeCh:
	default:
		t.Fatal("link not closed")
	}
}

func TestProxyLifecycle(t *testing.T) {
	p := newTestProxy(t)
	require.NoError(t, p.Stop())

	require.NoError(t, p.Send("poll_imu", nil))
	s1 := newTestStream(t)
	require.NoError(t, p.Start(NewLink("s1", s1)))
	require.Equal(t, ErrRunning, p.Start(NewLink("s1", s1)))
	require.Equal(t, ErrRunning, p.Run(context.Background(), NewLink("s1", s1)))
	s1.expect("queued before start", testPollIMU)

	s1.errCh <- errors.New("unplugged")
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("not stopped")
	}
	require.Error(t, p.Err())

	// pending messages and bindings survive reconnecting
	imu := newPayloadRecorder()
	require.NoError(t, p.Bind("imu_data", imu))
	require.NoError(t, p.Send("poll_imu", nil))
	s2 := newTestStream(t)
	require.NoError(t, p.Start(NewLink("s2", s2)))
	s2.expect("queued while disconnected", testPollIMU)
	s2.inject(testIMUData, 1, 2)
	imu.expect(t, "imu_data", []byte{1, 2})
	require.NoError(t, p.Stop())
	require.NoError(t, p.Err())
}

func TestProxyKeepAlive(t *testing.T) {
	p, err := NewProxy(newTestTable(t), ProxyOptions{KeepAliveInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	s := newTestStream(t)
	require.NoError(t, p.Start(NewLink("test", s)))
	defer p.Stop()
	s.expect("keep_alive", testKeepAlive)
	s.expect("keep_alive", testKeepAlive)
}
