package port_reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// NewReplay serves the file at path as if it were the station. interval is
// the pause before each line and must stay below the poller's read timeout.
// With loop the capture restarts at its end, otherwise the line goes idle.
func NewReplay(path string, interval time.Duration, loop bool, logger *slog.Logger) *Replay {
	return &Replay{
		path:     path,
		interval: interval,
		loop:     loop,
		logger:   logger.With("replay", path),
		sleep:    time.Sleep,
	}
}

func (r *Replay) Open() error {
	if r.file != nil {
		_ = r.Close()
	}
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open replay file: %w", err)
	}
	r.file = f
	r.lines = bufio.NewReader(f)
	r.pending = nil
	r.logger.Info("replaying capture", "loop", r.loop)
	return nil
}

func (r *Replay) Read(p []byte) (int, error) {
	if r.file == nil {
		return 0, ErrNotOpen
	}
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	r.sleep(r.interval)
	line, err := r.lines.ReadBytes('\n')
	if errors.Is(err, io.EOF) {
		if len(line) == 0 {
			return 0, r.rewind()
		}
		err = nil
	}
	if err != nil {
		_ = r.Close()
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}

	n := copy(p, line)
	r.pending = line[n:]
	return n, nil
}

// rewind starts the capture over when looping. Otherwise the replay stays
// at its end and every Read is idle.
func (r *Replay) rewind() error {
	if !r.loop {
		return nil
	}
	seeker, ok := r.file.(io.Seeker)
	if !ok {
		return nil
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		_ = r.Close()
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	r.lines.Reset(r.file)
	r.logger.Debug("capture restarted")
	return nil
}

func (r *Replay) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.lines = nil
	r.pending = nil
	return err
}

func (r *Replay) IsOpen() bool {
	return r.file != nil
}
