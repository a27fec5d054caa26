package mqtt

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/openbci.go/pkg/bci/wire"
)

// CommandSender accepts board commands, e.g. board.Board.
type CommandSender interface {
	Send(wire.Command) error
}

// CommandSubscriber forwards command names received on the device command
// topic to the board. A payload may carry several names separated by
// spaces, commas or newlines.
type CommandSubscriber struct {
	Queue  *Queue
	Device string
	Sender CommandSender
}

// Run implements Runnable.
func (s *CommandSubscriber) Run(ctx context.Context) error {
	sub := s.Queue.Sub(Topic(s.Device, TopicCmd), s.handleMsg)
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (s *CommandSubscriber) handleMsg(topic string, payload []byte) {
	cmds, err := ParseCommands(string(payload))
	if err != nil {
		glog.Warningf("%s: %v", topic, err)
		return
	}
	for _, cmd := range cmds {
		glog.V(2).Infof("%s: %s", topic, cmd)
		if err = s.Sender.Send(cmd); err != nil {
			glog.Errorf("send %s: %v", cmd, err)
			return
		}
	}
}

// ParseCommands parses a list of command names. Nothing is returned if
// any name is unknown.
func ParseCommands(payload string) ([]wire.Command, error) {
	names := strings.FieldsFunc(payload, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
	if len(names) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmds := make([]wire.Command, 0, len(names))
	for _, name := range names {
		cmd, err := wire.LookupCommand(name)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
