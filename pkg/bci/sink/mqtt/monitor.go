package mqtt

import (
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/openbci.go/pkg/bci/sink"
	"github.com/robotalks/openbci.go/pkg/bci/wire"
)

// SampleReceiver is called for each sample published by a device.
type SampleReceiver func(device string, s *wire.Sample, t time.Time)

// SubSamples subscribes to samples of a device, "+" for all devices.
func (q *Queue) SubSamples(device string, fn SampleReceiver) *Subscription {
	return q.Sub(Topic(device, TopicSamples), func(topic string, payload []byte) {
		name := strings.TrimSuffix(topic, "/"+TopicSamples)
		s, t, err := sink.DecodeSample(payload)
		if err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		fn(name, s, t)
	})
}
