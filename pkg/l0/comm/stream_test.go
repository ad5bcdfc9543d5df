package comm

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/xmega.go/pkg/l0/typedef"
)

// testStream is a fake port. Bytes are read one at a time from byteCh,
// every Write call is captured as one frame in writeCh.
type testStream struct {
	t       *testing.T
	byteCh  chan byte
	errCh   chan error
	writeCh chan []byte
	closeCh chan struct{}
	once    sync.Once
}

func newTestStream(t *testing.T) *testStream {
	return &testStream{
		t:       t,
		byteCh:  make(chan byte, 16),
		errCh:   make(chan error, 1),
		writeCh: make(chan []byte, 4096),
		closeCh: make(chan struct{}),
	}
}

func (s *testStream) Read(p []byte) (int, error) {
	select {
	case b := <-s.byteCh:
		p[0] = b
		return 1, nil
	case err := <-s.errCh:
		return 0, err
	case <-s.closeCh:
		return 0, io.EOF
	}
}

func (s *testStream) Write(p []byte) (int, error) {
	frame := append([]byte(nil), p...)
	select {
	case <-s.closeCh:
		return 0, io.ErrClosedPipe
	case s.writeCh <- frame:
		return len(p), nil
	}
}

func (s *testStream) Close() error {
	s.once.Do(func() { close(s.closeCh) })
	return nil
}

func (s *testStream) inject(bs ...byte) {
	for _, b := range bs {
		s.byteCh <- b
	}
}

func (s *testStream) expect(name string, frame ...byte) {
	select {
	case actual := <-s.writeCh:
		require.Equalf(s.t, frame, actual, "%s frame mismatch", name)
	case <-time.After(time.Second):
		s.t.Fatalf("%s: timeout", name)
	}
}

func (s *testStream) expectNothing(name string, d time.Duration) {
	select {
	case actual := <-s.writeCh:
		s.t.Fatalf("%s: unexpected frame %v", name, actual)
	case <-time.After(d):
	}
}

const (
	testKeepAlive byte = 0x03
	testPollIMU   byte = 0x01
	testIMUData   byte = 0x81
	testEcho      byte = 0xc1
	testDebug     byte = 0x42
)

func newTestTable(t *testing.T) *typedef.Table {
	table, err := typedef.NewTable(
		typedef.Record{Name: "keep_alive", Direction: typedef.DirOutgoing, Code: testKeepAlive, Length: typedef.Fixed(0)},
		typedef.Record{Name: "poll_imu", Direction: typedef.DirOutgoing, Code: testPollIMU, Length: typedef.Fixed(0)},
		typedef.Record{Name: "imu_data", Direction: typedef.DirIncoming, Code: testIMUData, Length: typedef.Fixed(2)},
		typedef.Record{Name: "echo", Direction: typedef.DirBoth, Code: testEcho, Length: typedef.LengthVariable},
		typedef.Record{Name: "debug", Direction: typedef.DirIncoming, Code: testDebug, Length: typedef.LengthUndeclared},
	)
	require.NoError(t, err)
	return table
}
