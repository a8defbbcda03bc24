package poller

import "sync/atomic"

// Stats are the poller's counters since start. Safe to read from any
// goroutine while the poller runs.
type Stats struct {
	FramesDecoded       uint64 `json:"frames_decoded"`
	ChecksumMismatches  uint64 `json:"checksum_mismatches"`
	MalformedFields     uint64 `json:"malformed_fields"`
	UnknownFrames       uint64 `json:"unknown_frames"`
	ConsecutiveFailures uint64 `json:"consecutive_failures"`
	Opens               uint64 `json:"opens"`
	IOErrors            uint64 `json:"io_errors"`
	DroppedBytes        uint64 `json:"dropped_bytes"`
}

type counters struct {
	frames       atomic.Uint64
	checksum     atomic.Uint64
	malformed    atomic.Uint64
	unknown      atomic.Uint64
	consecutive  atomic.Uint64
	opens        atomic.Uint64
	ioErrors     atomic.Uint64
	droppedBytes atomic.Uint64
}

func (p *Poller) Stats() Stats {
	c := &p.counters
	return Stats{
		FramesDecoded:       c.frames.Load(),
		ChecksumMismatches:  c.checksum.Load(),
		MalformedFields:     c.malformed.Load(),
		UnknownFrames:       c.unknown.Load(),
		ConsecutiveFailures: c.consecutive.Load(),
		Opens:               c.opens.Load(),
		IOErrors:            c.ioErrors.Load(),
		DroppedBytes:        c.droppedBytes.Load(),
	}
}

// DecodeErrors is the total of all rejected sentences.
func (s Stats) DecodeErrors() uint64 {
	return s.ChecksumMismatches + s.MalformedFields + s.UnknownFrames
}
