package comm

import (
	"context"
	"sync"
)

// Handler is called with the payload of a received frame.
// payload is nil for frames without data.
type Handler interface {
	HandlePayload(ctx context.Context, payload []byte)
}

// HandlePayloadFunc is func type of Handler.
type HandlePayloadFunc func(context.Context, []byte)

// HandlePayload implements Handler.
func (f HandlePayloadFunc) HandlePayload(ctx context.Context, payload []byte) {
	f(ctx, payload)
}

// Handlers calls each handler in order.
type Handlers []Handler

// HandlePayload implements Handler.
func (hs Handlers) HandlePayload(ctx context.Context, payload []byte) {
	for _, h := range hs {
		h.HandlePayload(ctx, payload)
	}
}

// Bindings maps incoming codes to handlers.
type Bindings struct {
	handlers map[byte]Handler
	lock     sync.RWMutex
}

// NewBindings creates empty Bindings.
func NewBindings() *Bindings {
	return &Bindings{handlers: make(map[byte]Handler)}
}

// Bind installs the handler for code, replacing the existing one.
func (b *Bindings) Bind(code byte, h Handler) {
	b.lock.Lock()
	b.handlers[code] = h
	b.lock.Unlock()
}

// Chain adds h after the handler already bound to code.
func (b *Bindings) Chain(code byte, h Handler) {
	b.lock.Lock()
	defer b.lock.Unlock()
	switch existing := b.handlers[code].(type) {
	case nil:
		b.handlers[code] = h
	case Handlers:
		b.handlers[code] = append(existing[:len(existing):len(existing)], h)
	default:
		b.handlers[code] = Handlers{existing, h}
	}
}

// Unbind removes the handler for code.
func (b *Bindings) Unbind(code byte) {
	b.lock.Lock()
	delete(b.handlers, code)
	b.lock.Unlock()
}

// Lookup finds the handler for code.
func (b *Bindings) Lookup(code byte) (Handler, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	h, ok := b.handlers[code]
	return h, ok
}
