package wire

import (
	"fmt"
	"sort"
	"strings"
)

// Command is a single byte command sent to the board.
type Command byte

// Board commands.
const (
	CmdStopStream         Command = 's'
	CmdStartText          Command = 'x'
	CmdStartStream        Command = 'b'
	CmdStartStreamWithAux Command = 'n'
	CmdStartStream4Chan   Command = 'v'
	CmdEnableFilters      Command = 'f'
	CmdDisableFilters     Command = 'g'
	CmdRegisterDump       Command = '?'
	CmdBiasAuto           Command = '`'
	CmdBiasFixed          Command = '~'
)

// MaxChannels is the number of channels addressable by commands.
const MaxChannels = 8

// Per-channel command tables, indexed by channel - 1.
var (
	channelOff    = [MaxChannels]Command{'1', '2', '3', '4', '5', '6', '7', '8'}
	channelOn     = [MaxChannels]Command{'q', 'w', 'e', 'r', 't', 'y', 'u', 'i'}
	leadOffPOn    = [MaxChannels]Command{'!', '@', '#', '$', '%', '^', '&', '*'}
	leadOffPOff   = [MaxChannels]Command{'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I'}
	leadOffNOn    = [MaxChannels]Command{'A', 'S', 'D', 'F', 'G', 'H', 'J', 'K'}
	leadOffNOff   = [MaxChannels]Command{'Z', 'X', 'C', 'V', 'B', 'N', 'M', '<'}
	namedCommands = map[string]Command{}
	commandNames  = map[Command]string{}
)

// LeadOffPolarity selects the P or N input of lead-off detection.
type LeadOffPolarity int

// Lead-off polarities.
const (
	LeadOffP LeadOffPolarity = iota
	LeadOffN
)

func init() {
	add := func(name string, cmd Command) {
		namedCommands[name] = cmd
		commandNames[cmd] = name
	}
	add("stop", CmdStopStream)
	add("start-text", CmdStartText)
	add("start", CmdStartStream)
	add("start-aux", CmdStartStreamWithAux)
	add("start-4ch", CmdStartStream4Chan)
	add("filter-on", CmdEnableFilters)
	add("filter-off", CmdDisableFilters)
	add("registers", CmdRegisterDump)
	add("bias-auto", CmdBiasAuto)
	add("bias-fixed", CmdBiasFixed)
	for n := 0; n < MaxChannels; n++ {
		ch := n + 1
		add(fmt.Sprintf("ch%d-on", ch), channelOn[n])
		add(fmt.Sprintf("ch%d-off", ch), channelOff[n])
		add(fmt.Sprintf("ch%d-leadoff-p-on", ch), leadOffPOn[n])
		add(fmt.Sprintf("ch%d-leadoff-p-off", ch), leadOffPOff[n])
		add(fmt.Sprintf("ch%d-leadoff-n-on", ch), leadOffNOn[n])
		add(fmt.Sprintf("ch%d-leadoff-n-off", ch), leadOffNOff[n])
	}
}

// ChannelCommand returns the command to turn a channel (1-based) on or off.
func ChannelCommand(ch int, on bool) (Command, error) {
	if ch < 1 || ch > MaxChannels {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	if on {
		return channelOn[ch-1], nil
	}
	return channelOff[ch-1], nil
}

// LeadOffCommand returns the command toggling lead-off detection of a channel.
func LeadOffCommand(ch int, polarity LeadOffPolarity, on bool) (Command, error) {
	if ch < 1 || ch > MaxChannels {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	var table *[MaxChannels]Command
	switch {
	case polarity == LeadOffP && on:
		table = &leadOffPOn
	case polarity == LeadOffP:
		table = &leadOffPOff
	case on:
		table = &leadOffNOn
	default:
		table = &leadOffNOff
	}
	return table[ch-1], nil
}

// FilterCommand returns the command enabling or disabling notch filters.
func FilterCommand(on bool) Command {
	if on {
		return CmdEnableFilters
	}
	return CmdDisableFilters
}

// LookupCommand finds a command by name, e.g. "start", "ch3-off".
func LookupCommand(name string) (Command, error) {
	cmd, ok := namedCommands[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return cmd, nil
}

// CommandNames lists all command names in sorted order.
func CommandNames() []string {
	names := make([]string, 0, len(namedCommands))
	for name := range namedCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the command name, or empty if the byte isn't a known command.
func (c Command) Name() string {
	return commandNames[c]
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if name := c.Name(); name != "" {
		return fmt.Sprintf("%s(%q)", name, byte(c))
	}
	return fmt.Sprintf("%q", byte(c))
}
