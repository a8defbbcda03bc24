package port_reader

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/telegram"
)

func TestSampleCaptureReplaysCleanly(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteSampleCapture(&buf, 20, 42))

	path := filepath.Join(t.TempDir(), "sample.nmea")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	r := NewReplay(path, 0, false, discard)
	require.NoError(t, r.Open())
	defer r.Close()

	var stream []byte
	chunk := make([]byte, telegram.MaxFrameLen)
	for {
		n, err := r.Read(chunk)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		stream = append(stream, chunk[:n]...)
	}
	assert.Equal(t, buf.Bytes(), stream)

	counts := map[telegram.SentenceType]int{}
	for len(stream) > 0 {
		tg, n, err := telegram.Decode(stream)
		require.NoError(t, err, "at %q", stream)
		counts[tg.Type]++
		stream = stream[n:]
	}
	for _, st := range []telegram.SentenceType{telegram.TypeTemperature, telegram.TypeWind,
		telegram.TypeHumidity, telegram.TypePressure, telegram.TypeTransducer} {
		assert.Equal(t, 20, counts[st], string(st))
	}

	var again bytes.Buffer
	require.NoError(t, WriteSampleCapture(&again, 20, 42))
	assert.Equal(t, buf.Bytes(), again.Bytes(), "same seed, same capture")
}
