package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/robotalks/xmega.go/pkg/bridge"
	"github.com/robotalks/xmega.go/pkg/env"
	fx "github.com/robotalks/xmega.go/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf := env.MustNewConfig()
	client, err := conf.NewMQTTClient("mon", false)
	if err != nil {
		log.Fatalln(err)
	}
	if err = client.Connect(); err != nil {
		log.Fatalln(err)
	}

	defer client.Close()

	sub := client.Subscribe("#", func(topic string, payload []byte) {
		if !strings.HasPrefix(topic, bridge.TopicIn) && !strings.HasPrefix(topic, bridge.TopicOut) {
			log.Printf("%s: %s", topic, string(payload))
			return
		}
		msg, err := bridge.UnmarshalEnvelope(payload)
		if err != nil {
			log.Printf("%s: bad envelope: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, msg.String())
	})
	err = fx.NewRunner().HandleSignals().
		Go(fx.RunnableFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return sub.Close()
		})).
		Wait()
	if err != nil {
		log.Println(err)
	}
}
