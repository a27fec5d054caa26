package board

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/openbci.go/pkg/bci/wire"
	"github.com/robotalks/openbci.go/pkg/cli/sh"
)

var (
	// RegistersCmd prints the register dump.
	RegistersCmd = ishell.Cmd{
		Name:    "registers",
		Aliases: []string{"regs"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			regs, err := sh.BoardFrom(c).RegisterSettings(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			if sh.ShellFrom(c).OutputJSON {
				if err = sh.PrintJSON(c, regs); err != nil {
					c.Err(err)
				}
				return
			}
			for _, line := range regs {
				c.Println(line)
			}
		}),
	}

	// StartCmd streams and prints samples.
	StartCmd = ishell.Cmd{
		Name:    "start",
		Aliases: []string{"s"},
		Help:    "[COUNT]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			count, err := parseCount(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err = sh.ShellFrom(c).StreamSamples(context.Background(), count, sh.Writer(c)); err != nil {
				c.Err(err)
			}
		}),
	}

	// ChannelCmd powers a channel on or off.
	ChannelCmd = ishell.Cmd{
		Name:    "channel",
		Aliases: []string{"ch"},
		Help:    "CHANNEL(1-8) on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			done(c, setChannel(sh.BoardFrom(c), c.Args))
		}),
	}

	// FilterCmd toggles on-board filters.
	FilterCmd = ishell.Cmd{
		Name:    "filter",
		Aliases: []string{"f"},
		Help:    "on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			done(c, setFilters(sh.BoardFrom(c), c.Args))
		}),
	}

	// LeadOffCmd toggles lead-off detection.
	LeadOffCmd = ishell.Cmd{
		Name:    "leadoff",
		Aliases: []string{"lo"},
		Help:    "CHANNEL(1-8) p|n on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			done(c, setLeadOff(sh.BoardFrom(c), c.Args))
		}),
	}

	// SendCmd sends named commands.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"cmd"},
		Help:    "NAME...",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			done(c, sendNamed(sh.BoardFrom(c), c.Args))
		}),
	}

	// CommandsCmd lists command names.
	CommandsCmd = ishell.Cmd{
		Name: "commands",
		Help: "",
		Func: func(c *ishell.Context) {
			for _, name := range wire.CommandNames() {
				cmd, _ := wire.LookupCommand(name)
				c.Printf("%-20s %q\n", name, byte(cmd))
			}
		},
	}

	// StatsCmd prints decoder counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			stats := sh.BoardFrom(c).Decoder().Stats()
			if sh.ShellFrom(c).OutputJSON {
				if err := sh.PrintJSON(c, &stats); err != nil {
					c.Err(err)
				}
				return
			}
			c.Printf("samples=%d framing_errors=%d skipped=%d starved=%d stalls=%d gaps=%d\n",
				stats.Samples, stats.FramingErrors, stats.SkippedBytes,
				stats.StarvedReads, stats.Stalls, stats.SequenceGaps)
		}),
	}
)

type controller interface {
	Send(wire.Command) error
	SetChannel(ch int, on bool) error
	SetFilters(on bool) error
	SetLeadOff(ch int, polarity wire.LeadOffPolarity, on bool) error
}

func parseCount(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count <= 0 {
		return 0, fmt.Errorf("Invalid COUNT: %q", args[0])
	}
	return count, nil
}

func setChannel(b controller, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("CHANNEL and on|off required")
	}
	ch, err := sh.ParseChannel(args[0])
	if err != nil {
		return err
	}
	on, err := sh.ParseOnOff(args[1])
	if err != nil {
		return err
	}
	return b.SetChannel(ch, on)
}

func setFilters(b controller, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("on|off required")
	}
	on, err := sh.ParseOnOff(args[0])
	if err != nil {
		return err
	}
	return b.SetFilters(on)
}

func setLeadOff(b controller, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("CHANNEL, p|n and on|off required")
	}
	ch, err := sh.ParseChannel(args[0])
	if err != nil {
		return err
	}
	var polarity wire.LeadOffPolarity
	switch strings.ToLower(args[1]) {
	case "p":
		polarity = wire.LeadOffP
	case "n":
		polarity = wire.LeadOffN
	default:
		return fmt.Errorf("Invalid input %q, expect p or n", args[1])
	}
	on, err := sh.ParseOnOff(args[2])
	if err != nil {
		return err
	}
	return b.SetLeadOff(ch, polarity, on)
}

// sendNamed sends nothing unless every name is known.
func sendNamed(b controller, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("NAME required, see commands")
	}
	cmds := make([]wire.Command, 0, len(names))
	for _, name := range names {
		cmd, err := wire.LookupCommand(name)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}
	for _, cmd := range cmds {
		if err := b.Send(cmd); err != nil {
			return err
		}
	}
	return nil
}

func done(c *ishell.Context, err error) {
	if err != nil {
		c.Err(err)
		return
	}
	if !sh.ShellFrom(c).OutputJSON {
		c.Println("OK")
	}
}

func init() {
	sh.AddCmds(
		&RegistersCmd,
		&StartCmd,
		&ChannelCmd,
		&FilterCmd,
		&LeadOffCmd,
		&SendCmd,
		&CommandsCmd,
		&StatsCmd,
	)
}
