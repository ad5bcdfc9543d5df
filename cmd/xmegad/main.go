package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/xmega.go/pkg/bridge"
	"github.com/robotalks/xmega.go/pkg/env"
	fx "github.com/robotalks/xmega.go/pkg/framework"
	"github.com/robotalks/xmega.go/pkg/l0/comm"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	conf := env.MustNewConfig()

	proxy, err := conf.NewProxy()
	if err != nil {
		glog.Fatal(err)
	}
	client, err := conf.NewMQTTClient("d", true)
	if err != nil {
		glog.Fatal(err)
	}
	b := bridge.New(proxy, client, conf.Port)
	client.OnConnect = func(*bridge.Client) {
		if err := b.PublishMeta(); err != nil {
			glog.Warningf("publish meta: %v", err)
		}
	}
	if err = client.Connect(); err != nil {
		glog.Fatalf("connect %s: %v", conf.MQTTBrokerURL, err)
	}
	defer client.Close()

	link := &comm.Reconnector{
		Proxy:   proxy,
		Open:    conf.OpenLink,
		Backoff: conf.NewBackoff(),
		OnState: func(up bool) {
			if up {
				b.SetLink(bridge.LinkUp)
			} else {
				b.SetLink(bridge.LinkDown)
			}
		},
	}
	err = fx.NewRunner().HandleSignals().
		Go(fx.NamedRun("bridge", b), fx.NamedRun("link", link)).
		Wait()
	if err != nil {
		glog.Error(err)
	}
	glog.Flush()
}
