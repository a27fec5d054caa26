package board

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaud is the baud rate of the board firmware.
	DefaultBaud = 115200
	// DefaultReadTimeout bounds a single read so an idle line is seen
	// as starvation instead of blocking forever.
	DefaultReadTimeout = 20 * time.Millisecond

	// USB ids of the FTDI chip on the OpenBCI dongle.
	dongleVID = "0403"
	donglePID = "6015"
)

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string
	USB          bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// IsDongle reports whether the port looks like the OpenBCI USB dongle.
func (p *PortInfo) IsDongle() bool {
	return p.USB && strings.EqualFold(p.VID, dongleVID) && strings.EqualFold(p.PID, donglePID)
}

// String implements fmt.Stringer.
func (p *PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	s := fmt.Sprintf("%s [%s:%s]", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		s += " serial=" + p.SerialNumber
	}
	if p.Product != "" {
		s += " " + p.Product
	}
	return s
}

// ListPorts enumerates serial ports.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// FindPort returns the name of the port the board is most likely on.
func FindPort() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if name := selectPort(ports); name != "" {
		return name, nil
	}
	return "", ErrNoPort
}

// selectPort prefers the dongle, then any USB serial port.
func selectPort(ports []PortInfo) string {
	for i := range ports {
		if ports[i].IsDongle() {
			return ports[i].Name
		}
	}
	for i := range ports {
		if ports[i].USB {
			return ports[i].Name
		}
	}
	return ""
}

// OpenPort opens the serial port in 8N1 mode.
func OpenPort(name string, baud int, readTimeout time.Duration) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if readTimeout > 0 {
		if err = port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
		}
	}
	return port, nil
}
