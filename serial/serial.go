// Package serial provides the serial port, an io.ReadWriter, that connects
// the at package to the physical modem.
package serial

import (
	"github.com/tarm/serial"
)

// Config holds the serial port parameters. The zero value is not usable;
// start from defaultConfig via New's options.
type Config struct {
	port string
	baud int
}

// Option modifies the default serial configuration.
type Option func(*Config)

// WithPort overrides the default port device path.
func WithPort(port string) Option {
	return func(c *Config) { c.port = port }
}

// WithBaud overrides the default baud rate.
func WithBaud(baud int) Option {
	return func(c *Config) { c.baud = baud }
}

// New opens a serial port, starting from the platform default config
// (defaultConfig) and applying any options on top of it.
func New(options ...Option) (*serial.Port, error) {
	cfg := defaultConfig
	for _, option := range options {
		option(&cfg)
	}
	p, err := serial.OpenPort(&serial.Config{Name: cfg.port, Baud: cfg.baud})
	if err != nil {
		return nil, err
	}
	return p, nil
}
