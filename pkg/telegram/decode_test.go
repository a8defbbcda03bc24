package telegram

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/types"
)

// sentence wraps body into a complete frame with a valid checksum.
func sentence(body string) []byte {
	return []byte(fmt.Sprintf("$%s*%02X\r\n", body, Checksum([]byte(body))))
}

func ptr(v float64) *float64 { return &v }

func TestDecodeSentences(t *testing.T) {
	t.Parallel()
	type Case struct {
		name   string
		input  string
		fields Field
		expect types.Measurement
	}
	cases := []Case{
		{"temperature", "$WIMTA,12.3,C*1B\r\n", FieldTemperature,
			types.Measurement{Temperature: ptr(12.3)}},
		{"temperature-negative", string(sentence("WIMTA,-4.5,C")), FieldTemperature,
			types.Measurement{Temperature: ptr(-4.5)}},
		{"wind", "$WIMWV,271.0,R,3.4,M,A*23\r\n", FieldWindDirection | FieldWindSpeed,
			types.Measurement{WindDirection: ptr(271), WindSpeed: ptr(3.4)}},
		{"wind-kmh", string(sentence("WIMWV,90.0,T,36.0,K,A")), FieldWindDirection | FieldWindSpeed,
			types.Measurement{WindDirection: ptr(90), WindSpeed: ptr(10)}},
		{"humidity", "$WIMHU,65.2,,5.9,C*30\r\n", FieldHumidity | FieldDewPoint,
			types.Measurement{Humidity: ptr(65.2), DewPoint: ptr(5.9)}},
		{"pressure", "$WIMMB,29.9870,I,1.0154,B*6B\r\n", FieldAirPressure,
			types.Measurement{AirPressure: ptr(1015.4)}},
		{"pressure-inhg-only", string(sentence("WIMMB,29.9213,I,,B")), FieldAirPressure,
			types.Measurement{AirPressure: ptr(1013.25)}},
		{"rain", "$WIXDR,V,0.2,M,RAIN*73\r\n", FieldPrecipitation,
			types.Measurement{Precipitation: ptr(0.2)}},
		{"rain-second-transducer", string(sentence("WIXDR,C,11.0,C,TEMP,V,1.5,M,RAIN")), FieldPrecipitation,
			types.Measurement{Precipitation: ptr(1.5)}},
		{"leading-dot", string(sentence("WIMTA,-.5,C")), FieldTemperature,
			types.Measurement{Temperature: ptr(-0.5)}},
		{"trailing-dot", string(sentence("WIMTA,+7.,C")), FieldTemperature,
			types.Measurement{Temperature: ptr(7)}},
		{"lf-only", "$WIMTA,12.3,C*1B\n", FieldTemperature,
			types.Measurement{Temperature: ptr(12.3)}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			tg, n, err := Decode([]byte(c.input))
			require.NoError(t, err)
			assert.Equal(t, len(c.input), n)
			assert.Equal(t, c.fields, tg.Fields)
			assertValues(t, c.expect, tg.Values)
		})
	}
}

func assertValues(t *testing.T, expect, actual types.Measurement) {
	t.Helper()
	pairs := []struct {
		name string
		e, a *float64
	}{
		{"temperature", expect.Temperature, actual.Temperature},
		{"humidity", expect.Humidity, actual.Humidity},
		{"dew point", expect.DewPoint, actual.DewPoint},
		{"wind speed", expect.WindSpeed, actual.WindSpeed},
		{"wind direction", expect.WindDirection, actual.WindDirection},
		{"precipitation", expect.Precipitation, actual.Precipitation},
		{"air pressure", expect.AirPressure, actual.AirPressure},
	}
	for _, p := range pairs {
		if p.e == nil {
			assert.Nil(t, p.a, p.name)
			continue
		}
		if assert.NotNil(t, p.a, p.name) {
			assert.InDelta(t, *p.e, *p.a, 0.01, p.name)
		}
	}
}

func TestDecodeNoDataIsAbsent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		body   string
		fields Field
	}{
		{"WIMTA,,C", FieldTemperature},
		{"WIMTA,,", FieldTemperature},
		{"WIMWV,,R,,M,A", FieldWindDirection | FieldWindSpeed},
		{"WIMWV,180.0,R,2.0,M,V", FieldWindDirection | FieldWindSpeed},
		{"WIMHU,,,,C", FieldHumidity | FieldDewPoint},
		{"WIMMB,,I,,B", FieldAirPressure},
		{"WIXDR,V,,M,RAIN", FieldPrecipitation},
	}
	for _, c := range cases {
		tg, _, err := Decode(sentence(c.body))
		require.NoError(t, err, c.body)
		assert.Equal(t, c.fields, tg.Fields, c.body)
		assert.False(t, tg.Values.HasValues(), c.body)

		// covered but absent overwrites a previous value
		prev := types.Measurement{Temperature: ptr(1), Humidity: ptr(1), DewPoint: ptr(1),
			WindSpeed: ptr(1), WindDirection: ptr(1), Precipitation: ptr(1), AirPressure: ptr(1)}
		assert.Equal(t, c.fields, absent(tg.Apply(prev)), c.body)
	}

	tg, _, err := Decode(sentence("WIXDR,V,0.0,M,RAIN"))
	require.NoError(t, err)
	require.NotNil(t, tg.Values.Precipitation, "zero is a reading")
	assert.Equal(t, 0.0, *tg.Values.Precipitation)
}

func absent(m types.Measurement) Field {
	var f Field
	for bit, v := range map[Field]*float64{
		FieldTemperature:   m.Temperature,
		FieldHumidity:      m.Humidity,
		FieldDewPoint:      m.DewPoint,
		FieldWindSpeed:     m.WindSpeed,
		FieldWindDirection: m.WindDirection,
		FieldPrecipitation: m.Precipitation,
		FieldAirPressure:   m.AirPressure,
	} {
		if v == nil {
			f |= bit
		}
	}
	return f
}

func TestDecodeIncompletePrefixes(t *testing.T) {
	t.Parallel()
	full := sentence("WIMWV,271.0,R,3.4,M,A")
	for i := 0; i < len(full); i++ {
		prefix := append([]byte(nil), full[:i]...)
		_, n, err := Decode(prefix)
		require.Error(t, err, "prefix=%q", prefix)
		assert.True(t, errors.Is(err, ErrIncomplete), "prefix=%q err=%v", prefix, err)
		assert.Equal(t, 0, n, "prefix=%q", prefix)

		// appending the remainder completes the frame
		tg, n, err := Decode(append(prefix, full[i:]...))
		require.NoError(t, err)
		assert.Equal(t, len(full), n)
		assert.Equal(t, TypeWind, tg.Type)
	}
}

func TestDecodeNoise(t *testing.T) {
	t.Parallel()

	_, n, err := Decode([]byte("\x00\xffnoise"))
	assert.True(t, errors.Is(err, ErrIncomplete))
	assert.Equal(t, 7, n)

	input := append([]byte("\r\n\x17zz"), sentence("WIMTA,3.0,C")...)
	tg, n, err := Decode(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	assert.InDelta(t, 3.0, *tg.Values.Temperature, 1e-9)

	_, n, err = Decode([]byte("xx$WIMTA,3"))
	assert.True(t, errors.Is(err, ErrIncomplete))
	assert.Equal(t, 2, n)
}

func TestDecodeChecksumCorruption(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	full := sentence("WIMHU,65.2,,5.9,C")
	star := len(full) - 5
	for i := 1; i < star; i++ {
		corrupted := append([]byte(nil), full...)
		corrupted[i] ^= byte(1 << uint(rnd.Intn(4)))
		_, n, err := Decode(corrupted)
		assert.Equal(t, ChecksumMismatch, KindOf(err), "pos=%d frame=%q err=%v", i, corrupted, err)
		assert.Equal(t, 0, n)
	}

	for _, input := range []string{
		"$WIMTA,12.3,C\r\n",
		"$WIMTA,12.3,C*1\r\n",
		"$WIMTA,12.3,C*ZZ\r\n",
	} {
		_, _, err := Decode([]byte(input))
		assert.True(t, errors.Is(err, ErrChecksumMismatch), "input=%q err=%v", input, err)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	type Case struct {
		name   string
		input  []byte
		expect Kind
	}
	long := append([]byte("$WIMTA,"), make([]byte, MaxFrameLen)...)
	cases := []Case{
		{"malformed-number", sentence("WIMTA,12.x,C"), MalformedField},
		{"malformed-nan", sentence("WIMTA,NaN,C"), MalformedField},
		{"malformed-inf", sentence("WIMTA,+Inf,C"), MalformedField},
		{"malformed-infinity", sentence("WIMHU,65.2,,-Infinity,C"), MalformedField},
		{"malformed-hex-float", sentence("WIMTA,0x1p4,C"), MalformedField},
		{"malformed-exponent", sentence("WIMMB,,I,1e0,B"), MalformedField},
		{"malformed-unit", sentence("WIMTA,12.3,F"), MalformedField},
		{"malformed-field-count", sentence("WIMTA,12.3"), MalformedField},
		{"malformed-too-many-fields", sentence("WIMHU,65.2,,5.9,C,1"), MalformedField},
		{"malformed-wind-unit", sentence("WIMWV,10.0,R,2.0,X,A"), MalformedField},
		{"malformed-wind-status", sentence("WIMWV,10.0,R,2.0,M,Q"), MalformedField},
		{"malformed-address", sentence("WIMTAX,1.0,C"), MalformedField},
		{"malformed-rain-unit", sentence("WIXDR,V,1.0,X,RAIN"), MalformedField},
		{"malformed-xdr-count", sentence("WIXDR,V,1.0,M"), MalformedField},
		{"overrun", long, MalformedField},
		{"unknown-sentence", sentence("GPGGA,123519,4807.038,N"), UnknownFrameType},
		{"unknown-xdr", sentence("WIXDR,C,11.0,C,TEMP"), UnknownFrameType},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, n, err := Decode(c.input)
			require.Error(t, err)
			assert.Equal(t, c.expect, KindOf(err), "err=%v", err)
			assert.Equal(t, 0, n)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.NotEmpty(t, de.Frame)
		})
	}
}

func TestDecodeErrorOwnsFrameCopy(t *testing.T) {
	buf := sentence("WIMTA,12.x,C")
	_, _, err := Decode(buf)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	buf[1] = 'X'
	assert.Equal(t, byte('W'), de.Frame[1])
}

func TestApplyMergesCoveredFields(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := types.Measurement{Timestamp: ts}
	for _, body := range []string{"WIMTA,12.3,C", "WIMHU,65.2,,5.9,C", "WIMTA,13.0,C"} {
		tg, _, err := Decode(sentence(body))
		require.NoError(t, err)
		m = tg.Apply(m)
	}
	assert.Equal(t, ts, m.Timestamp)
	assertValues(t, types.Measurement{Temperature: ptr(13), Humidity: ptr(65.2), DewPoint: ptr(5.9)}, m)
}
