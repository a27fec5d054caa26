package mqtt

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/openbci.go/pkg/bci/sink"
	"github.com/robotalks/openbci.go/pkg/bci/wire"
)

// Topics relative to the device name.
const (
	TopicSamples = "samples"
	TopicMeta    = "meta"
	TopicCmd     = "cmd"
)

// Topic builds the topic of a device.
func Topic(device, kind string) string {
	return device + "/" + kind
}

// Meta describes the stream of a device, published retained.
type Meta struct {
	Channels int     `json:"channels"`
	Scale    float64 `json:"scale"`
	Encoding string  `json:"encoding"`
}

// Publisher publishes encoded samples.
type Publisher struct {
	Queue  *Queue
	Device string
	Meta   Meta
	// Sync waits for each publish to complete.
	Sync bool
	Now  func() time.Time

	publish   func(topic string, payload []byte, qos byte, retain bool) paho.Token
	published uint64
}

// NewPublisher creates a Publisher from a broker URL. The device meta is
// published on connect and cleared by the will when the client is lost.
func NewPublisher(brokerURL, device string, meta Meta) (*Publisher, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+Topic(device, TopicMeta), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("openbci:" + device)
	}
	if meta.Encoding == "" {
		meta.Encoding = "msgpack"
	}
	p := &Publisher{
		Queue:  NewQueue(opts, topicPrefix),
		Device: device,
		Meta:   meta,
		Now:    time.Now,
	}
	p.publish = p.Queue.PubWith
	p.Queue.OnConnect = func(*Queue) { p.publishMeta(false) }
	return p, nil
}

// HandleSample implements wire.SampleHandler.
func (p *Publisher) HandleSample(ctx context.Context, s *wire.Sample) error {
	data, err := sink.EncodeSample(s, p.Now())
	if err != nil {
		return err
	}
	token := p.publish(Topic(p.Device, TopicSamples), data, 0, false)
	atomic.AddUint64(&p.published, 1)
	if p.Sync {
		return Wait(ctx, token)
	}
	return nil
}

// Published returns the number of published samples.
func (p *Publisher) Published() uint64 {
	return atomic.LoadUint64(&p.published)
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.Queue.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.publishMeta(true).WaitTimeout(time.Second)
	p.Queue.Close()
	return nil
}

func (p *Publisher) publishMeta(remove bool) paho.Token {
	var payload []byte
	if !remove {
		data, err := json.Marshal(&p.Meta)
		if err != nil {
			panic(err)
		}
		payload = data
	}
	glog.V(2).Infof("publish meta of %s", p.Device)
	return p.publish(Topic(p.Device, TopicMeta), payload, 1, true)
}
