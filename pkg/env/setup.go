package env

import (
	"fmt"

	"github.com/robotalks/xmega.go/pkg/bridge"
	"github.com/robotalks/xmega.go/pkg/framework"
	"github.com/robotalks/xmega.go/pkg/l0/comm"
	"github.com/robotalks/xmega.go/pkg/l0/comm/port"
	"github.com/robotalks/xmega.go/pkg/l0/ieee"
	"github.com/robotalks/xmega.go/pkg/l0/typedef"
)

// PortOptions returns options to open the link.
func (c *Config) PortOptions() port.Options {
	return port.Options{Baud: c.Baud, ReadTimeout: c.ReadTimeout.Duration}
}

// OpenLink opens the link to the device.
func (c *Config) OpenLink() (*comm.Link, error) {
	return port.Open(c.Port, c.PortOptions())
}

// NewProxy loads the type definition file and creates a Proxy with
// device handlers bound.
func (c *Config) NewProxy() (*comm.Proxy, error) {
	table, err := typedef.LoadFile(c.TypesFile)
	if err != nil {
		return nil, err
	}
	proxy, err := comm.NewProxy(table, comm.ProxyOptions{
		KeepAliveName:     c.KeepAliveName,
		KeepAliveInterval: c.KeepAliveInterval.Duration,
	})
	if err != nil {
		return nil, err
	}
	switch c.Device {
	case "":
	case "ieee":
		ieee.New(proxy).Bind()
	default:
		return nil, fmt.Errorf("unknown device %q", c.Device)
	}
	return proxy, nil
}

// NewMQTTClient creates a MQTT client for a command. If withWill is set,
// the retained meta is cleared by the broker when the client disconnects
// unexpectedly.
func (c *Config) NewMQTTClient(role string, withWill bool) (*bridge.Client, error) {
	opts, prefix, err := bridge.ClientOptionsFromURL(c.MQTTBrokerURL)
	if err != nil {
		return nil, fmt.Errorf("MQTT broker URL: %w", err)
	}
	if opts.ClientID == "" {
		opts.SetClientID(c.MQTTClientID(role))
	}
	if withWill {
		opts.SetBinaryWill(prefix+bridge.TopicMeta, nil, 1, true)
	}
	return bridge.NewClient(opts, prefix), nil
}

// NewBackoff creates the backoff used to reopen the link.
func (c *Config) NewBackoff() *framework.Backoff {
	b := framework.NewBackoff(c.ReconnectMin.Duration, c.ReconnectMax.Duration)
	b.Jitter = true
	return b
}
