package comm

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/xmega.go/pkg/framework"
	"github.com/robotalks/xmega.go/pkg/l0/typedef"
)

// DefaultKeepAliveName is the outgoing type sent as keep-alive.
const DefaultKeepAliveName = "keep_alive"

// ProxyOptions configures a Proxy.
type ProxyOptions struct {
	KeepAliveName     string
	KeepAliveInterval time.Duration
}

// Proxy runs the reader and writer loops over a Link and provides
// name based send and bind.
// The queue and bindings belong to the Proxy, not to a run, so pending
// messages and handlers survive reconnecting.
type Proxy struct {
	table     *typedef.Table
	queue     *Queue
	bindings  *Bindings
	keepAlive byte
	interval  time.Duration

	lock    sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	err     error
}

// NewProxy creates a Proxy. The keep-alive type must be declared outgoing.
func NewProxy(table *typedef.Table, opts ProxyOptions) (*Proxy, error) {
	name := opts.KeepAliveName
	if name == "" {
		name = DefaultKeepAliveName
	}
	code, err := table.ResolveOutgoing(name)
	if err != nil {
		return nil, err
	}
	interval := opts.KeepAliveInterval
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	return &Proxy{
		table:     table,
		queue:     NewQueue(),
		bindings:  NewBindings(),
		keepAlive: code,
		interval:  interval,
	}, nil
}

// Table returns the type table.
func (p *Proxy) Table() *typedef.Table {
	return p.table
}

// Pending returns the number of queued messages.
func (p *Proxy) Pending() int {
	return p.queue.Len()
}

// Bind installs the handler of an incoming type.
func (p *Proxy) Bind(name string, h Handler) error {
	code, err := p.table.ResolveIncoming(name)
	if err != nil {
		return err
	}
	p.bindings.Bind(code, h)
	return nil
}

// Chain installs h of an incoming type after the handler already bound,
// both receive every payload.
func (p *Proxy) Chain(name string, h Handler) error {
	code, err := p.table.ResolveIncoming(name)
	if err != nil {
		return err
	}
	p.bindings.Chain(code, h)
	return nil
}

// BindFunc is the func form of Bind.
func (p *Proxy) BindFunc(name string, fn func(context.Context, []byte)) error {
	return p.Bind(name, HandlePayloadFunc(fn))
}

// Unbind removes the handler of an incoming type.
func (p *Proxy) Unbind(name string) error {
	code, err := p.table.ResolveIncoming(name)
	if err != nil {
		return err
	}
	p.bindings.Unbind(code)
	return nil
}

// Send queues a message of an outgoing type. The name and payload are
// checked here, nothing is queued on error. payload is copied.
func (p *Proxy) Send(name string, payload []byte) error {
	code, err := p.table.ResolveOutgoing(name)
	if err != nil {
		return err
	}
	return p.enqueue(code, name, payload)
}

// SendCode queues a message by code, without checking the type table.
func (p *Proxy) SendCode(code byte, payload []byte) error {
	name, _ := p.table.OutgoingName(code)
	return p.enqueue(code, name, payload)
}

func (p *Proxy) enqueue(code byte, name string, payload []byte) error {
	if err := Validate(code, payload); err != nil {
		return err
	}
	msg := Message{Code: code, Name: name}
	if len(payload) > 0 {
		msg.Payload = append([]byte(nil), payload...)
	}
	p.queue.Enqueue(msg)
	return nil
}

// Run runs both loops on link until ctx is done or a loop fails, and
// closes link before returning. The first failure is returned, a
// canceled ctx is not reported.
func (p *Proxy) Run(ctx context.Context, link *Link) error {
	if err := p.acquire(); err != nil {
		return err
	}
	defer p.release()
	return p.run(ctx, link)
}

func (p *Proxy) run(ctx context.Context, link *Link) error {
	reader := NewReader(link, p.table, p.bindings)
	writer := NewWriter(link, p.queue, p.keepAlive)
	writer.Interval = p.interval

	glog.Infof("link %s started", link.Name())
	runner := framework.NewRunnerWith(ctx)
	runner.Go(
		framework.NamedRun("reader", framework.RunnableFunc(func(ctx context.Context) error {
			return framework.RunWithContextCancel(ctx, func() { link.Close() }, func() error {
				return reader.Run(ctx)
			})
		})),
		framework.NamedRun("writer", writer),
	)
	err := runner.Wait()
	link.Close()
	if err != nil {
		glog.Errorf("link %s failed: %v", link.Name(), err)
	} else {
		glog.Infof("link %s stopped", link.Name())
	}
	return err
}

func (p *Proxy) acquire() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.running {
		return ErrRunning
	}
	p.running = true
	return nil
}

func (p *Proxy) release() {
	p.lock.Lock()
	p.running = false
	p.lock.Unlock()
}

// Start runs the loops on link in the background.
func (p *Proxy) Start(link *Link) error {
	if err := p.acquire(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	p.lock.Lock()
	p.cancel, p.doneCh, p.err = cancel, doneCh, nil
	p.lock.Unlock()
	go func() {
		err := p.run(ctx, link)
		p.lock.Lock()
		p.err, p.running = err, false
		p.lock.Unlock()
		cancel()
		close(doneCh)
	}()
	return nil
}

// Stop stops the loops started by Start and waits for them.
func (p *Proxy) Stop() error {
	p.lock.Lock()
	cancel, doneCh := p.cancel, p.doneCh
	p.lock.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-doneCh
	return p.Err()
}

// Done is closed when the loops started by Start stopped.
func (p *Proxy) Done() <-chan struct{} {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.doneCh == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.doneCh
}

// Err returns the failure of the loops started by Start.
func (p *Proxy) Err() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.err
}
