package port_reader

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// Initialize a new serial transport. Nothing is opened yet.
func NewSerial(cfg SerialConfig, logger *slog.Logger) *Serial {
	return &Serial{
		cfg:    cfg,
		open:   serial.Open,
		now:    time.Now,
		logger: logger.With("device", cfg.Device),
	}
}

// Options maps the config onto the serial library. Reads use VMIN=0 and
// VTIME=ReadTimeout so an idle line returns after the timeout.
func (s *Serial) Options() (serial.OpenOptions, error) {
	parity, err := parityMode(s.cfg.Parity)
	if err != nil {
		return serial.OpenOptions{}, err
	}
	return serial.OpenOptions{
		PortName:              s.cfg.Device,
		BaudRate:              s.cfg.Baudrate,
		DataBits:              s.cfg.DataBits,
		StopBits:              s.cfg.StopBits,
		ParityMode:            parity,
		RTSCTSFlowControl:     s.cfg.RTSCTS,
		InterCharacterTimeout: uint(s.cfg.ReadTimeout / time.Millisecond),
		MinimumReadSize:       0,
	}, nil
}

func parityMode(p string) (serial.ParityMode, error) {
	switch p {
	case "N", "":
		return serial.PARITY_NONE, nil
	case "E":
		return serial.PARITY_EVEN, nil
	case "O":
		return serial.PARITY_ODD, nil
	}
	return serial.PARITY_NONE, fmt.Errorf("unsupported parity %q", p)
}

// Open (re)opens the serial port.
func (s *Serial) Open() error {
	if s.port != nil {
		s.closePort()
	}

	options, err := s.Options()
	if err != nil {
		return err
	}

	port, err := s.open(options)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	s.port = port
	s.logger.Info("connected to serial port", "baudrate", s.cfg.Baudrate)
	return nil
}

// Read blocks at most the configured read timeout. An idle line yields
// (0, nil). Any other failure closes the port and wraps ErrIO.
func (s *Serial) Read(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrNotOpen
	}

	started := s.now()
	n, err := s.port.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.closePort()
		return n, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if n > 0 {
		return n, nil
	}

	// With VMIN=0 an expired VTIME reads as end of file. A hung up tty,
	// e.g. an unplugged USB adapter, reads the same but returns at once.
	if elapsed := s.now().Sub(started); elapsed < s.cfg.ReadTimeout/2 {
		s.closePort()
		return 0, fmt.Errorf("%w: hangup, empty read after %s", ErrIO, elapsed)
	}
	return 0, nil
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.logger.Info("disconnected from serial port")
	return err
}

func (s *Serial) IsOpen() bool {
	return s.port != nil
}

func (s *Serial) closePort() {
	if err := s.Close(); err != nil {
		s.logger.Debug("closing serial port", "error", err)
	}
}

var (
	_ Transport = (*Serial)(nil)
	_ Transport = (*Replay)(nil)
)
