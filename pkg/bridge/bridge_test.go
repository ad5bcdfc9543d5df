package bridge

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/xmega.go/pkg/l0/comm"
	"github.com/robotalks/xmega.go/pkg/l0/ieee"
	"github.com/robotalks/xmega.go/pkg/l0/typedef"
)

type published struct {
	topic   string
	payload []byte
	retain  bool
}

type fakePubSub struct {
	lock  sync.Mutex
	subs  map[string]MessageHandler
	pubCh chan published
}

type fakeSub struct {
	ps    *fakePubSub
	topic string
}

func (s *fakeSub) Close() error {
	s.ps.lock.Lock()
	delete(s.ps.subs, s.topic)
	s.ps.lock.Unlock()
	return nil
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{subs: make(map[string]MessageHandler), pubCh: make(chan published, 64)}
}

func (p *fakePubSub) Subscribe(topic string, handler MessageHandler) io.Closer {
	p.lock.Lock()
	p.subs[topic] = handler
	p.lock.Unlock()
	return &fakeSub{ps: p, topic: topic}
}

func (p *fakePubSub) Publish(topic string, payload []byte, qos byte, retain bool) error {
	p.pubCh <- published{topic: topic, payload: payload, retain: retain}
	return nil
}

func (p *fakePubSub) inject(topic string, payload []byte) {
	p.lock.Lock()
	var handlers []MessageHandler
	for pattern, h := range p.subs {
		if MatchTopic(topic, pattern) {
			handlers = append(handlers, h)
		}
	}
	p.lock.Unlock()
	for _, h := range handlers {
		h(topic, payload)
	}
}

func (p *fakePubSub) expect(t *testing.T, topic string) published {
	select {
	case pub := <-p.pubCh:
		require.Equal(t, topic, pub.topic)
		return pub
	case <-time.After(time.Second):
		t.Fatalf("%s not published", topic)
	}
	return published{}
}

type testStream struct {
	readCh  chan byte
	writeCh chan []byte
	once    sync.Once
	closeCh chan struct{}
}

func (s *testStream) Read(p []byte) (int, error) {
	select {
	case b := <-s.readCh:
		p[0] = b
		return 1, nil
	case <-s.closeCh:
		return 0, io.EOF
	}
}

func (s *testStream) Write(p []byte) (int, error) {
	s.writeCh <- append([]byte(nil), p...)
	return len(p), nil
}

func (s *testStream) Close() error {
	s.once.Do(func() { close(s.closeCh) })
	return nil
}

func newTestProxy(t *testing.T) *comm.Proxy {
	table, err := typedef.NewTable(
		typedef.Record{Name: "keep_alive", Direction: typedef.DirOutgoing, Code: 0x03, Length: typedef.Fixed(0)},
		typedef.Record{Name: "poll_imu", Direction: typedef.DirOutgoing, Code: 0x04, Length: typedef.Fixed(0)},
		typedef.Record{Name: "imu_data", Direction: typedef.DirIncoming, Code: 0xc1, Length: typedef.LengthVariable},
		typedef.Record{Name: "test", Direction: typedef.DirBoth, Code: 0x41, Length: typedef.Fixed(1)},
		typedef.Record{Name: "DATA_2B_TYPE", Direction: typedef.DirNone, Code: 0x80, Length: typedef.Fixed(2)},
	)
	require.NoError(t, err)
	proxy, err := comm.NewProxy(table, comm.ProxyOptions{KeepAliveInterval: time.Hour})
	require.NoError(t, err)
	return proxy
}

func TestMatchTopic(t *testing.T) {
	testCases := []struct {
		topic, pattern string
		match          bool
	}{
		{"out/poll_imu", "out/+", true},
		{"out/poll_imu/x", "out/+", false},
		{"out", "out/+", false},
		{"in/imu_data", "#", true},
		{"in/imu_data", "in/#", true},
		{"in", "in/#", true},
		{"meta", "meta", true},
		{"meta", "in/+", false},
	}
	for _, tc := range testCases {
		require.Equalf(t, tc.match, MatchTopic(tc.topic, tc.pattern), "%s ~ %s", tc.topic, tc.pattern)
	}
}

func TestBridge(t *testing.T) {
	proxy := newTestProxy(t)
	ps := newFakePubSub()
	b := New(proxy, ps, "/dev/ttyUSB0")

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- b.Run(ctx) }()

	pub := ps.expect(t, TopicMeta)
	require.True(t, pub.retain)
	var meta Meta
	require.NoError(t, json.Unmarshal(pub.payload, &meta))
	require.Equal(t, "/dev/ttyUSB0", meta.Port)
	require.Equal(t, LinkDown, meta.Link)
	require.Len(t, meta.Types, 4)
	require.Equal(t, MetaType{Name: "test", Direction: "both", Code: 0x41, Length: "1"}, meta.Types[2])

	s := &testStream{readCh: make(chan byte, 16), writeCh: make(chan []byte, 16), closeCh: make(chan struct{})}
	require.NoError(t, proxy.Start(comm.NewLink("test", s)))
	defer proxy.Stop()
	b.SetLink(LinkUp)
	pub = ps.expect(t, TopicMeta)
	require.NoError(t, json.Unmarshal(pub.payload, &meta))
	require.Equal(t, LinkUp, meta.Link)

	// inbound
	for _, c := range []byte{0xc1, 2, 0x05, 0x09} {
		s.readCh <- c
	}
	pub = ps.expect(t, TopicIn+"imu_data")
	env, err := UnmarshalEnvelope(pub.payload)
	require.NoError(t, err)
	require.Equal(t, "imu_data", env.Type)
	require.Equal(t, uint32(0xc1), env.Code)
	require.Equal(t, []byte{0x05, 0x09}, env.Data)
	require.NotZero(t, env.Time)

	// outbound by topic suffix
	ps.inject(TopicOut+"poll_imu", nil)
	select {
	case frame := <-s.writeCh:
		require.Equal(t, []byte{0x04}, frame)
	case <-time.After(time.Second):
		t.Fatal("poll_imu not sent")
	}

	// outbound by envelope type
	data, err := (&Envelope{Type: "test", Data: []byte{7}}).Encode()
	require.NoError(t, err)
	ps.inject(TopicOut+"any", data)
	select {
	case frame := <-s.writeCh:
		require.Equal(t, []byte{0x41, 7}, frame)
	case <-time.After(time.Second):
		t.Fatal("test not sent")
	}

	// invalid requests are dropped
	ps.inject(TopicOut+"imu_data", nil)
	ps.inject(TopicOut+"test", []byte{0xff, 0xff})
	require.Zero(t, proxy.Pending())

	cancel()
	pub = ps.expect(t, TopicMeta)
	require.Empty(t, pub.payload)
	require.True(t, pub.retain)
	require.Equal(t, context.Canceled, <-doneCh)
}

func TestEnvelopeEncode(t *testing.T) {
	data, err := (&Envelope{Type: "poll_imu", Code: 0x04, Data: []byte{1}, Time: 42}).Encode()
	require.NoError(t, err)
	env, err := UnmarshalEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, &Envelope{Type: "poll_imu", Code: 0x04, Data: []byte{1}, Time: 42}, env)

	env, err = UnmarshalEnvelope(nil)
	require.NoError(t, err)
	require.Equal(t, &Envelope{}, env)
}

func TestBridgeKeepsDeviceHandlers(t *testing.T) {
	table, err := typedef.NewTable(
		typedef.Record{Name: "keep_alive", Direction: typedef.DirOutgoing, Code: 0x03, Length: typedef.Fixed(0)},
		typedef.Record{Name: ieee.TypeNunchuckEcho, Direction: typedef.DirIncoming, Code: 0xc2, Length: typedef.LengthVariable},
		typedef.Record{Name: ieee.TypeInitTowbotPoll, Direction: typedef.DirOutgoing, Code: 0x05, Length: typedef.Fixed(0)},
	)
	require.NoError(t, err)
	proxy, err := comm.NewProxy(table, comm.ProxyOptions{KeepAliveInterval: time.Hour})
	require.NoError(t, err)

	device := ieee.New(proxy)
	nunchuckCh := make(chan ieee.Nunchuck, 1)
	device.OnNunchuck = func(ctx context.Context, n ieee.Nunchuck) { nunchuckCh <- n }
	require.Equal(t, []string{ieee.TypeNunchuckEcho}, device.Bind())

	ps := newFakePubSub()
	b := New(proxy, ps, "test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	ps.expect(t, TopicMeta)
	// a second Attach keeps a single publisher per type
	require.NoError(t, b.Attach())
	ps.expect(t, TopicMeta)

	s := &testStream{readCh: make(chan byte, 16), writeCh: make(chan []byte, 16), closeCh: make(chan struct{})}
	require.NoError(t, proxy.Start(comm.NewLink("test", s)))
	defer proxy.Stop()

	for _, c := range []byte{0xc2, 6, 0x80, 0x80, 1, 2, 3, 3} {
		s.readCh <- c
	}
	pub := ps.expect(t, TopicIn+ieee.TypeNunchuckEcho)
	env, err := UnmarshalEnvelope(pub.payload)
	require.NoError(t, err)
	require.Equal(t, []byte{0x80, 0x80, 1, 2, 3, 3}, env.Data)
	select {
	case pub = <-ps.pubCh:
		t.Fatalf("unexpected publish %s", pub.topic)
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case n := <-nunchuckCh:
		require.Equal(t, byte(0x80), n.StickX)
	case <-time.After(time.Second):
		t.Fatal("nunchuck handler not called")
	}
	select {
	case frame := <-s.writeCh:
		require.Equal(t, []byte{0x05}, frame)
	case <-time.After(time.Second):
		t.Fatal("init_towbot_poll not sent")
	}
}

type blockingPubSub struct {
	fakePubSub
}

func (p *blockingPubSub) Publish(topic string, payload []byte, qos byte, retain bool) error {
	select {}
}

func TestBridgePublisherNeverBlocks(t *testing.T) {
	b := New(newTestProxy(t), &blockingPubSub{}, "test")
	h := b.publisher("imu_data", 0xc1)
	doneCh := make(chan struct{})
	go func() {
		for i := 0; i < DefaultPublishBacklog*2; i++ {
			h.HandlePayload(context.Background(), []byte{byte(i)})
		}
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked")
	}
	require.Len(t, b.outCh, DefaultPublishBacklog)
}
