package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/robotalks/openbci.go/pkg/bci/env"
	"github.com/robotalks/openbci.go/pkg/bci/sink"
	"github.com/robotalks/openbci.go/pkg/bci/sink/mqtt"
	"github.com/robotalks/openbci.go/pkg/bci/sink/websocket"
	fx "github.com/robotalks/openbci.go/pkg/framework"
)

var (
	quiet      bool
	recordFile string
)

func init() {
	env.SetupFlags()
	flag.BoolVar(&quiet, "q", quiet, "Don't print samples.")
	flag.StringVar(&recordFile, "record", recordFile, "Append encoded samples to a record file.")
}

func main() {
	flag.Parse()

	conf := env.MustLoad()
	runner := fx.NewRunner().HandleSignals()
	b := conf.MustOpenBoard(runner.Context)

	mux := &sink.Mux{}
	if !quiet {
		mux.Add(&sink.Printer{W: os.Stdout})
	}
	if recordFile != "" {
		f, err := os.OpenFile(recordFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalln(err)
		}
		defer f.Close()
		mux.Add(sink.NewRecordWriter(f))
	}

	var runnables []fx.Runnable
	if conf.MQTTURL != "" {
		meta := mqtt.Meta{Channels: conf.ChannelCount, Scale: b.Decoder().Parser().Scale()}
		pub, err := mqtt.NewPublisher(conf.MQTTURL, conf.Device(), meta)
		if err != nil {
			log.Fatalln(err)
		}
		mux.Add(pub)
		runnables = append(runnables,
			fx.NamedRun("mqtt", pub),
			fx.NamedRun("mqtt-cmd", &mqtt.CommandSubscriber{Queue: pub.Queue, Device: conf.Device(), Sender: b}))
	}
	if conf.WebsocketAddr != "" {
		hub := websocket.NewHub()
		mux.Add(hub)
		runnables = append(runnables, fx.NamedRun("websocket", &websocket.Server{Addr: conf.WebsocketAddr, Hub: hub}))
	}
	runnables = append(runnables, fx.NamedFunc("stream", func(ctx context.Context) error {
		return b.Stream(ctx, mux)
	}))

	err := runner.Go(runnables...).Wait()
	stats := b.Decoder().Stats()
	log.Printf("samples=%d framing_errors=%d skipped=%d stalls=%d gaps=%d",
		stats.Samples, stats.FramingErrors, stats.SkippedBytes, stats.Stalls, stats.SequenceGaps)
	b.Close()
	if err != nil {
		log.Fatalln(err)
	}
}
