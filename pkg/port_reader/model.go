package port_reader

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

var (
	// ErrIO wraps OS level failures. The transport is closed afterwards.
	ErrIO      = errors.New("serial i/o failure")
	ErrNotOpen = errors.New("serial port not open")
)

// Transport is a byte source with an explicit lifecycle. Read blocks at
// most the transport's read timeout and returns (0, nil) when idle.
type Transport interface {
	Open() error
	Read(p []byte) (int, error)
	Close() error
	IsOpen() bool
}

// SerialConfig is the fixed line setup of the station.
type SerialConfig struct {
	Device   string
	Baudrate uint
	DataBits uint
	// Parity is "N", "E" or "O".
	Parity   string
	StopBits uint
	RTSCTS   bool
	// ReadTimeout bounds every Read. The tty enforces it in steps of 100ms.
	ReadTimeout time.Duration
}

type Serial struct {
	cfg    SerialConfig
	port   io.ReadWriteCloser
	open   func(serial.OpenOptions) (io.ReadWriteCloser, error)
	now    func() time.Time
	logger *slog.Logger
}

// Replay plays back a capture of station output, one line per Read.
type Replay struct {
	path     string
	interval time.Duration
	loop     bool
	logger   *slog.Logger

	file    io.ReadCloser
	lines   *bufio.Reader
	pending []byte
	sleep   func(time.Duration)
}
