package env

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/openbci.go/pkg/bci/board"
	"github.com/robotalks/openbci.go/pkg/bci/wire"
)

// Config provides common options to connect a board and decode its stream.
type Config struct {
	// Port is the serial port, empty to search for the dongle.
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	WaitReady   bool          `yaml:"wait_ready"`

	ChannelCount     int     `yaml:"channels"`
	Vref             float64 `yaml:"vref"`
	Gain             float64 `yaml:"gain"`
	SkipBudget       int     `yaml:"skip_budget"`
	MaxFramingErrors int     `yaml:"max_framing_errors"`
	// Sequence is one of ignore, warn, strict.
	Sequence string `yaml:"sequence"`

	MaxStalls     int           `yaml:"max_stalls"`
	StallPause    time.Duration `yaml:"stall_pause"`
	MaxStallPause time.Duration `yaml:"max_stall_pause"`

	// DeviceID names the board in published topics, defaults to MachineID.
	DeviceID string `yaml:"device_id"`
	// MQTTURL specifies the MQTT broker to publish to.
	// e.g. mqtt://host:port/topic-prefix
	MQTTURL string `yaml:"mqtt_url"`
	// WebsocketAddr is the listen address of the live monitor.
	WebsocketAddr string `yaml:"ws_addr"`
}

var (
	defaultConfig = baseConfig()
	configFile    string
)

func baseConfig() Config {
	return Config{
		Baud:          board.DefaultBaud,
		ReadTimeout:   board.DefaultReadTimeout,
		WaitReady:     true,
		ChannelCount:  wire.DefaultChannelCount,
		Vref:          wire.DefaultVref,
		Gain:          wire.DefaultGain,
		SkipBudget:    wire.DefaultSkipBudget,
		Sequence:      "ignore",
		StallPause:    100 * time.Millisecond,
		MaxStallPause: 5 * time.Second,
		MQTTURL:       "mqtt://localhost:1883/openbci/",
	}
}

func init() {
	applyEnv(&defaultConfig, os.Getenv)
}

func applyEnv(c *Config, getenv func(string) string) {
	if val := getenv("BCI_PORT"); val != "" {
		c.Port = val
	}
	if val := getenv("BCI_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			c.Baud = baud
		}
	}
	if val := getenv("BCI_MQTT_URL"); val != "" {
		c.MQTTURL = val
	}
	if val := getenv("BCI_WS_ADDR"); val != "" {
		c.WebsocketAddr = val
	}
	if val := getenv("BCI_DEVICE_ID"); val != "" {
		c.DeviceID = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "YAML config file, values override flags")
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port, empty to search")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Serial baud rate")
	flag.BoolVar(&defaultConfig.WaitReady, "wait-ready", defaultConfig.WaitReady, "Wait for the board banner after connecting")
	flag.IntVar(&defaultConfig.ChannelCount, "channels", defaultConfig.ChannelCount, "Channels per frame")
	flag.IntVar(&defaultConfig.SkipBudget, "skip-budget", defaultConfig.SkipBudget, "Bytes skipped before the stream is stalled")
	flag.IntVar(&defaultConfig.MaxFramingErrors, "max-framing-errors", defaultConfig.MaxFramingErrors, "Consecutive framing errors tolerated, 0 for unlimited")
	flag.StringVar(&defaultConfig.Sequence, "sequence", defaultConfig.Sequence, "Packet id checking: ignore, warn, strict")
	flag.IntVar(&defaultConfig.MaxStalls, "max-stalls", defaultConfig.MaxStalls, "Consecutive stalls tolerated, 0 for unlimited")
	flag.StringVar(&defaultConfig.DeviceID, "device", defaultConfig.DeviceID, "Device ID, defaults to machine ID")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL, empty to disable")
	flag.StringVar(&defaultConfig.WebsocketAddr, "ws", defaultConfig.WebsocketAddr, "Websocket monitor listen address, empty to disable")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load creates a Config from defaults and flags, overlaid by the file
// given with -config.
func Load() (*Config, error) {
	conf := NewConfig()
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	return conf, conf.Validate()
}

// MustLoad loads config and fails on error.
func MustLoad() *Config {
	conf, err := Load()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// LoadFile overlays values present in a YAML file.
func (c *Config) LoadFile(fn string) error {
	f, err := os.Open(fn)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return c.Decode(f)
}

// Decode overlays values from YAML.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks the values.
func (c *Config) Validate() error {
	switch {
	case c.Baud <= 0:
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	case c.ChannelCount <= 0:
		return fmt.Errorf("invalid channel count %d", c.ChannelCount)
	case c.Vref <= 0 || c.Gain <= 0:
		return fmt.Errorf("invalid vref %v or gain %v", c.Vref, c.Gain)
	case c.SkipBudget < 0:
		return fmt.Errorf("invalid skip budget %d", c.SkipBudget)
	case c.MaxFramingErrors < 0 || c.MaxStalls < 0:
		return fmt.Errorf("negative limits are not allowed")
	}
	_, err := wire.ParseSequenceMode(c.Sequence)
	return err
}

// Device returns DeviceID or the machine ID.
func (c *Config) Device() string {
	if c.DeviceID == "" {
		c.DeviceID = MachineID()
	}
	return c.DeviceID
}

// Parser creates a frame parser.
func (c *Config) Parser() *wire.Parser {
	return wire.NewParser(c.ChannelCount, wire.ScaleFactor(c.Vref, c.Gain))
}

// NewDecoder creates a decoder reading from src.
func (c *Config) NewDecoder(src io.Reader) (*wire.Decoder, error) {
	d := wire.NewDecoder(src, c.Parser())
	return d, c.setupDecoder(d)
}

func (c *Config) setupDecoder(d *wire.Decoder) error {
	mode, err := wire.ParseSequenceMode(c.Sequence)
	if err != nil {
		return err
	}
	d.Sequence = mode
	d.MaxFramingErrors = c.MaxFramingErrors
	if c.SkipBudget > 0 {
		d.SkipBudget = c.SkipBudget
	}
	return nil
}

// NewBoard creates a Board over an opened port.
func (c *Config) NewBoard(port io.ReadWriteCloser) (*board.Board, error) {
	b := board.New(port, c.Parser())
	if err := c.setupDecoder(b.Decoder()); err != nil {
		return nil, err
	}
	b.MaxStalls = c.MaxStalls
	if c.StallPause > 0 {
		b.StallBackOff = board.NewStallBackOff(c.StallPause, c.MaxStallPause)
	}
	return b, nil
}

// OpenBoard opens the serial port and waits for the board to be ready.
func (c *Config) OpenBoard(ctx context.Context) (*board.Board, error) {
	name := c.Port
	if name == "" {
		found, err := board.FindPort()
		if err != nil {
			return nil, err
		}
		name = found
	}
	port, err := board.OpenPort(name, c.Baud, c.ReadTimeout)
	if err != nil {
		return nil, err
	}
	b, err := c.NewBoard(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	glog.Infof("board connected on %s", name)
	if c.WaitReady {
		if err = b.WaitReady(ctx); err != nil {
			port.Close()
			return nil, err
		}
	}
	return b, nil
}

// MustOpenBoard opens the board and fails on error.
func (c *Config) MustOpenBoard(ctx context.Context) *board.Board {
	b, err := c.OpenBoard(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	return b
}
