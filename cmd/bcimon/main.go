package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/robotalks/openbci.go/pkg/bci/sink/mqtt"
	"github.com/robotalks/openbci.go/pkg/bci/wire"
	fx "github.com/robotalks/openbci.go/pkg/framework"
)

var (
	mqttURL = "mqtt://localhost:1883/openbci/"
	device  = "+"
)

func init() {
	if val := os.Getenv("BCI_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&device, "device", device, "Device to monitor, + for all.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub(mqtt.Topic(device, mqtt.TopicMeta), func(topic string, payload []byte) {
		if len(payload) == 0 {
			log.Printf("%s: offline", topic)
			return
		}
		log.Printf("%s: %s", topic, string(payload))
	})
	q.SubSamples(device, func(name string, s *wire.Sample, t time.Time) {
		log.Printf("%s: [%s] %v", name, t.Format(time.StampMicro), s)
	})

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedFunc("monitor", func(ctx context.Context) error {
		if err := q.Connect(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		q.Close()
		return ctx.Err()
	}))
	if err = runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
