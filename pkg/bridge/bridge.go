// Package bridge publishes frames received from the XMega to MQTT and sends
// frames requested over MQTT.
//
// Topics, relative to the prefix of the broker URL:
//
//	in/<name>   Envelope of every received frame of incoming type <name>
//	out/<name>  Envelope to send as outgoing type <name>
//	meta        retained JSON description of the port and types
package bridge

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/robotalks/xmega.go/pkg/l0/comm"
	"github.com/robotalks/xmega.go/pkg/l0/typedef"
)

// Topics.
const (
	TopicIn   = "in/"
	TopicOut  = "out/"
	TopicMeta = "meta"
)

// LinkState is reported in meta.
type LinkState string

// Link states.
const (
	LinkDown LinkState = "down"
	LinkUp   LinkState = "up"
)

// Meta is published retained on TopicMeta.
type Meta struct {
	Port  string     `json:"port"`
	Link  LinkState  `json:"link"`
	Types []MetaType `json:"types"`
}

// MetaType describes a type.
type MetaType struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Code      byte   `json:"code"`
	Length    string `json:"length"`
}

// DefaultPublishBacklog is the number of received frames waiting to be
// published before new ones are dropped.
const DefaultPublishBacklog = 256

// Bridge connects a Proxy to a PubSub.
type Bridge struct {
	Proxy  *comm.Proxy
	PubSub PubSub
	Port   string

	lock  sync.Mutex
	link  LinkState
	sub   io.Closer
	bound bool
	outCh chan *Envelope
	drops *rate.Limiter
}

// New creates a Bridge.
func New(proxy *comm.Proxy, ps PubSub, port string) *Bridge {
	return &Bridge{
		Proxy:  proxy,
		PubSub: ps,
		Port:   port,
		link:   LinkDown,
		outCh:  make(chan *Envelope, DefaultPublishBacklog),
		drops:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Attach binds every incoming type and subscribes outgoing requests.
// The publishers are chained after handlers already bound on the Proxy,
// and only once however many times Attach is called.
func (b *Bridge) Attach() error {
	b.lock.Lock()
	bound := b.bound
	b.bound = true
	b.lock.Unlock()
	for _, rec := range b.Proxy.Table().Records() {
		if bound || !rec.Direction.IsIncoming() {
			continue
		}
		if err := b.Proxy.Chain(rec.Name, b.publisher(rec.Name, rec.Code)); err != nil {
			return err
		}
	}
	b.lock.Lock()
	if b.sub == nil {
		b.sub = b.PubSub.Subscribe(TopicOut+"+", b.send)
	}
	b.lock.Unlock()
	return b.PublishMeta()
}

// Detach unsubscribes and clears meta. Bindings are kept.
func (b *Bridge) Detach() error {
	b.lock.Lock()
	sub := b.sub
	b.sub = nil
	b.lock.Unlock()
	if sub != nil {
		sub.Close()
	}
	return b.PubSub.Publish(TopicMeta, nil, 1, true)
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Attach(); err != nil {
		return err
	}
	b.publish(ctx)
	if err := b.Detach(); err != nil {
		glog.Warningf("bridge detach: %v", err)
	}
	return ctx.Err()
}

// SetLink updates the link state in meta.
func (b *Bridge) SetLink(state LinkState) {
	b.lock.Lock()
	changed := b.link != state
	b.link = state
	b.lock.Unlock()
	if changed {
		if err := b.PublishMeta(); err != nil {
			glog.Warningf("bridge meta: %v", err)
		}
	}
}

// BuildMeta describes the bridge.
func (b *Bridge) BuildMeta() *Meta {
	b.lock.Lock()
	meta := &Meta{Port: b.Port, Link: b.link}
	b.lock.Unlock()
	for _, rec := range b.Proxy.Table().Records() {
		if rec.Direction == typedef.DirNone {
			continue
		}
		meta.Types = append(meta.Types, MetaType{
			Name:      rec.Name,
			Direction: rec.Direction.String(),
			Code:      rec.Code,
			Length:    rec.Length.String(),
		})
	}
	return meta
}

// PublishMeta publishes meta retained.
func (b *Bridge) PublishMeta() error {
	data, err := json.Marshal(b.BuildMeta())
	if err != nil {
		return err
	}
	return b.PubSub.Publish(TopicMeta, data, 1, true)
}

// publisher queues received frames, so a slow broker never holds up the
// reader of the link.
func (b *Bridge) publisher(name string, code byte) comm.Handler {
	return comm.HandlePayloadFunc(func(ctx context.Context, payload []byte) {
		env := &Envelope{Type: name, Code: uint32(code), Data: payload, Time: time.Now().UnixNano()}
		select {
		case b.outCh <- env:
		default:
			if b.drops.Allow() {
				glog.Warningf("bridge backlog full, %s dropped", name)
			}
		}
	})
}

func (b *Bridge) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.outCh:
			topic := TopicIn + env.Type
			data, err := env.Encode()
			if err == nil {
				err = b.PubSub.Publish(topic, data, 0, false)
			}
			if err != nil {
				glog.Errorf("bridge publish %s: %v", topic, err)
			}
		}
	}
}

func (b *Bridge) send(topic string, payload []byte) {
	env, err := UnmarshalEnvelope(payload)
	if err != nil {
		glog.Errorf("bridge %s: invalid envelope: %v", topic, err)
		return
	}
	name := env.Type
	if name == "" {
		name = strings.TrimPrefix(topic, TopicOut)
	}
	if err = b.Proxy.Send(name, env.Data); err != nil {
		glog.Errorf("bridge %s: %v", topic, err)
	}
}
