package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/openbci.go/pkg/bci/board"
	"github.com/robotalks/openbci.go/pkg/bci/env"
	"github.com/robotalks/openbci.go/pkg/bci/sink"
	"github.com/robotalks/openbci.go/pkg/bci/wire"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *Connection
}

// Connection is a connected board.
type Connection struct {
	Port  string
	Board *board.Board
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
	// DefaultSampleCount is the number of samples printed by start.
	DefaultSampleCount = 10
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// BoardFrom gets the connected board.
func BoardFrom(c *ishell.Context) *board.Board {
	return ShellFrom(c).Conn.Board
}

// Writer adapts ishell context output to io.Writer.
func Writer(c *ishell.Context) io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		c.Print(string(p))
		return len(p), nil
	})
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}

// ParseOnOff parses on/off style switches.
func ParseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "enable":
		return true, nil
	case "off", "0", "false", "disable":
		return false, nil
	}
	return false, fmt.Errorf("expect on or off, got %q", s)
}

// ParseChannel parses a 1-based channel number.
func ParseChannel(s string) (int, error) {
	ch, err := strconv.Atoi(s)
	if err != nil || ch < 1 || ch > wire.MaxChannels {
		return 0, fmt.Errorf("%w: %q", wire.ErrInvalidChannel, s)
	}
	return ch, nil
}

// PrintJSON prints v as one line JSON.
func PrintJSON(c *ishell.Context, v interface{}) error {
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Println(string(out))
	return nil
}

// SampleWriter creates a handler printing samples in text or JSON lines.
func (s *Shell) SampleWriter(w io.Writer) wire.SampleHandler {
	if !s.OutputJSON {
		return &sink.Printer{W: w}
	}
	enc := json.NewEncoder(w)
	return wire.HandleSampleFunc(func(ctx context.Context, smp *wire.Sample) error {
		return enc.Encode(&sink.Record{
			PacketID: smp.PacketID,
			Channels: smp.Channels,
			Aux:      smp.Aux[:],
			Time:     time.Now().UnixNano(),
		})
	})
}

// StreamSamples streams n samples from the connected board to w.
func (s *Shell) StreamSamples(ctx context.Context, n int, w io.Writer) error {
	if s.Conn == nil {
		return fmt.Errorf("not connected")
	}
	if n <= 0 {
		n = DefaultSampleCount
	}
	err := s.Conn.Board.Stream(ctx, sink.Limit(n, s.SampleWriter(w)))
	if err == sink.ErrLimitReached {
		return nil
	}
	return err
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens the board on a port, empty to search.
func (s *Shell) Connect(ctx context.Context, port string) error {
	conf := *s.Config
	conf.Port = port
	if port == "" {
		found, err := board.FindPort()
		if err != nil {
			return err
		}
		conf.Port = found
	}
	b, err := conf.OpenBoard(ctx)
	if err != nil {
		return err
	}
	s.Attach(conf.Port, b)
	return nil
}

// Attach uses an opened board as the current connection.
func (s *Shell) Attach(port string, b *board.Board) {
	s.Disconnect()
	s.Conn = &Connection{Port: port, Board: b}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", port))
}

// Disconnect closes current board.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Board.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Port != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Port)
		}
		if err := s.Connect(context.Background(), s.Config.Port); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Port, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ports, err := board.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(ports) == 0 {
					ports = []board.PortInfo{}
				}
				if err = PrintJSON(c, ports); err != nil {
					c.Err(err)
				}
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for n := range ports {
				mark := " "
				if ports[n].IsDongle() {
					mark = "*"
				}
				c.Println(mark, ports[n].String())
			}
		},
	}

	// ConnectCmd connects a board.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[PORT]",
		Func: func(c *ishell.Context) {
			var port string
			if len(c.Args) > 0 {
				port = c.Args[0]
			}
			if err := ShellFrom(c).Connect(context.Background(), port); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current board.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.MustLoad()).WithAutoConnect(true).Run(flag.Args()...)
}
