// Package ieee binds the handlers of the robot XMega firmware to a Proxy.
package ieee

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/xmega.go/pkg/l0/comm"
)

// Type names used by the firmware.
const (
	TypeError          = "error"
	TypeTest           = "test"
	TypeNunchuckEcho   = "nunchuck_echo"
	TypeKill           = "kill"
	TypeStart          = "start"
	TypePollIMU        = "poll_imu"
	TypeInitTowbotPoll = "init_towbot_poll"
)

// Nunchuck is the state reported by the towbot nunchuck demo.
type Nunchuck struct {
	StickX  byte
	StickY  byte
	AccX    byte
	AccY    byte
	AccZ    byte
	Buttons byte
}

// NunchuckSize is the payload size of a nunchuck report.
const NunchuckSize = 6

// ParseNunchuck decodes a nunchuck report.
func ParseNunchuck(payload []byte) (n Nunchuck, err error) {
	if len(payload) < NunchuckSize {
		return n, fmt.Errorf("nunchuck report too short: %d", len(payload))
	}
	n = Nunchuck{
		StickX:  payload[0],
		StickY:  payload[1],
		AccX:    payload[2],
		AccY:    payload[3],
		AccZ:    payload[4],
		Buttons: payload[5],
	}
	return
}

// C reports whether button C is pressed. Buttons are active low.
func (n Nunchuck) C() bool {
	return n.Buttons&0x02 == 0
}

// Z reports whether button Z is pressed.
func (n Nunchuck) Z() bool {
	return n.Buttons&0x01 == 0
}

func (n Nunchuck) String() string {
	return fmt.Sprintf("stick=(%d,%d) acc=(%d,%d,%d) c=%v z=%v",
		n.StickX, n.StickY, n.AccX, n.AccY, n.AccZ, n.C(), n.Z())
}

// Device is the robot XMega on top of a generic Proxy.
type Device struct {
	Proxy *comm.Proxy

	OnError    func(ctx context.Context, report []byte)
	OnTest     func(ctx context.Context, data []byte)
	OnNunchuck func(ctx context.Context, n Nunchuck)
}

// New creates a Device.
func New(proxy *comm.Proxy) *Device {
	return &Device{Proxy: proxy}
}

// Bind installs the handlers of the incoming types declared in the
// type table. Types not declared are skipped and the bound names are
// returned.
func (d *Device) Bind() []string {
	handlers := []struct {
		name string
		fn   func(context.Context, []byte)
	}{
		{TypeError, d.gotError},
		{TypeTest, d.gotTest},
		{TypeNunchuckEcho, d.gotNunchuck},
	}
	var bound []string
	for _, h := range handlers {
		if err := d.Proxy.BindFunc(h.name, h.fn); err != nil {
			glog.Warningf("device: %s not bound: %v", h.name, err)
			continue
		}
		bound = append(bound, h.name)
	}
	return bound
}

// Kill stops the robot.
func (d *Device) Kill() error {
	return d.Proxy.Send(TypeKill, nil)
}

// Start starts the robot.
func (d *Device) Start() error {
	return d.Proxy.Send(TypeStart, nil)
}

// PollIMU requests an IMU reading.
func (d *Device) PollIMU() error {
	return d.Proxy.Send(TypePollIMU, nil)
}

func (d *Device) gotError(ctx context.Context, report []byte) {
	glog.Errorf("device error: % x", report)
	if d.OnError != nil {
		d.OnError(ctx, report)
	}
}

func (d *Device) gotTest(ctx context.Context, data []byte) {
	glog.Infof("device test: % x", data)
	if d.OnTest != nil {
		d.OnTest(ctx, data)
	}
}

// gotNunchuck handles the nunchuck demo, which expects the poll to be
// re-armed after every report.
func (d *Device) gotNunchuck(ctx context.Context, payload []byte) {
	n, err := ParseNunchuck(payload)
	if err != nil {
		glog.Warningf("device: %v", err)
	} else {
		glog.V(1).Infof("nunchuck %s", n)
		if d.OnNunchuck != nil {
			d.OnNunchuck(ctx, n)
		}
	}
	if err = d.Proxy.Send(TypeInitTowbotPoll, nil); err != nil {
		glog.Errorf("device: %v", err)
	}
}
