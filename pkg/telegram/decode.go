// Package telegram decodes the NMEA-0183 sentences sent by a Lambrecht
// meteo station, e.g.
//
//	$WIMTA,12.3,C*1B
//	$WIMWV,271.0,R,3.4,M,A*23
//	$WIMHU,65.2,,5.9,C*30
//	$WIMMB,29.9870,I,1.0154,B*6B
//	$WIXDR,V,0.2,M,RAIN*73
//
// Each sentence covers a subset of the station's sensors. Decoding is pure:
// no I/O, no clock.
package telegram

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/esmutils"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/types"
)

const (
	StartMarker  byte = '$'
	ChecksumMark byte = '*'
	EndMarker    byte = '\n'

	// MaxFrameLen is the NMEA-0183 limit including "$" and "\r\n".
	MaxFrameLen = 82

	DefaultTalker = "WI"
)

type SentenceType string

const (
	TypeTemperature SentenceType = "MTA"
	TypeWind        SentenceType = "MWV"
	TypeHumidity    SentenceType = "MHU"
	TypePressure    SentenceType = "MMB"
	TypeTransducer  SentenceType = "XDR"
)

// Field is a bit set of Measurement attributes a sentence reports.
type Field uint8

const (
	FieldTemperature Field = 1 << iota
	FieldHumidity
	FieldDewPoint
	FieldWindSpeed
	FieldWindDirection
	FieldPrecipitation
	FieldAirPressure
)

// Telegram is one decoded sentence.
type Telegram struct {
	Talker string
	Type   SentenceType
	// Fields lists the attributes this sentence covers. A covered attribute
	// may still be nil in Values when the station sent its no-data marker.
	Fields Field
	Values types.Measurement

	// Wire details kept so Encode can reproduce the sentence layout.
	WindReference string
	WindUnit      string
}

// Apply returns m with every attribute covered by t replaced by t's value.
func (t Telegram) Apply(m types.Measurement) types.Measurement {
	v := t.Values
	if t.Fields&FieldTemperature != 0 {
		m.Temperature = v.Temperature
	}
	if t.Fields&FieldHumidity != 0 {
		m.Humidity = v.Humidity
	}
	if t.Fields&FieldDewPoint != 0 {
		m.DewPoint = v.DewPoint
	}
	if t.Fields&FieldWindSpeed != 0 {
		m.WindSpeed = v.WindSpeed
	}
	if t.Fields&FieldWindDirection != 0 {
		m.WindDirection = v.WindDirection
	}
	if t.Fields&FieldPrecipitation != 0 {
		m.Precipitation = v.Precipitation
	}
	if t.Fields&FieldAirPressure != 0 {
		m.AirPressure = v.AirPressure
	}
	return m
}

// Checksum is the NMEA checksum: XOR of all bytes between "$" and "*".
func Checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum ^= b
	}
	return sum
}

// Decode parses the first sentence in buf.
//
// On success n is the number of bytes consumed, leading noise included.
// On error n is the offset of the presumed frame start: bytes before it are
// noise and can be dropped. Without any start marker n is len(buf).
func Decode(buf []byte) (t Telegram, n int, err error) {
	start := bytes.IndexByte(buf, StartMarker)
	if start < 0 {
		return Telegram{}, len(buf), newError(Incomplete, nil, "no start marker")
	}

	rel := bytes.IndexByte(buf[start:], EndMarker)
	if rel < 0 {
		if len(buf)-start > MaxFrameLen {
			return Telegram{}, start, newError(MalformedField, buf[start:start+MaxFrameLen],
				"no terminator within %d bytes", MaxFrameLen)
		}
		return Telegram{}, start, newError(Incomplete, nil, "waiting for terminator")
	}

	end := start + rel + 1
	frame := buf[start:end]
	if len(frame) > MaxFrameLen {
		return Telegram{}, start, newError(MalformedField, frame, "frame longer than %d bytes", MaxFrameLen)
	}

	t, err = parseFrame(frame)
	if err != nil {
		return Telegram{}, start, err
	}
	return t, end, nil
}

func parseFrame(frame []byte) (Telegram, error) {
	line := bytes.TrimRight(frame, "\r\n")

	star := bytes.LastIndexByte(line, ChecksumMark)
	if star < 0 || len(line)-star != 3 {
		return Telegram{}, newError(ChecksumMismatch, frame, "checksum missing")
	}
	given, err := strconv.ParseUint(string(line[star+1:]), 16, 8)
	if err != nil {
		return Telegram{}, newError(ChecksumMismatch, frame, "checksum %q not hex", line[star+1:])
	}
	body := line[1:star]
	if calc := Checksum(body); byte(given) != calc {
		return Telegram{}, newError(ChecksumMismatch, frame, "given %02X computed %02X", given, calc)
	}

	fields := strings.Split(string(body), ",")
	addr := fields[0]
	if len(addr) != 5 {
		return Telegram{}, newError(MalformedField, frame, "address %q", addr)
	}

	r := fieldReader{frame: frame, fields: fields[1:]}
	t := Telegram{Talker: addr[:2], Type: SentenceType(addr[2:])}

	switch t.Type {
	case TypeTemperature:
		r.expect(2)
		t.Fields = FieldTemperature
		t.Values.Temperature = r.number(0, "temperature")
		r.unit(1, t.Values.Temperature, "C")
	case TypeWind:
		r.expect(5)
		t.Fields = FieldWindDirection | FieldWindSpeed
		t.WindReference = r.unit(1, nil, "R", "T")
		dir := r.number(0, "wind angle")
		speed := r.number(2, "wind speed")
		t.WindUnit = r.unit(3, speed, "K", "M", "N", "S")
		if r.unit(4, nil, "A", "V") == "V" {
			// status void: the anemometer has no valid reading
			dir, speed = nil, nil
		}
		if dir != nil {
			dir = types.Float(esmutils.NormalizeDegrees(*dir))
		}
		if speed != nil {
			speed = types.Float(speedToMs(*speed, t.WindUnit))
		}
		t.Values.WindDirection = dir
		t.Values.WindSpeed = speed
	case TypeHumidity:
		r.expect(4)
		t.Fields = FieldHumidity | FieldDewPoint
		t.Values.Humidity = r.number(0, "relative humidity")
		r.number(1, "absolute humidity")
		t.Values.DewPoint = r.number(2, "dew point")
		r.unit(3, t.Values.DewPoint, "C")
	case TypePressure:
		r.expect(4)
		t.Fields = FieldAirPressure
		inHg := r.number(0, "pressure inHg")
		r.unit(1, inHg, "I")
		bar := r.number(2, "pressure bar")
		r.unit(3, bar, "B")
		switch {
		case bar != nil:
			t.Values.AirPressure = types.Float(esmutils.BarToHPa(*bar))
		case inHg != nil:
			t.Values.AirPressure = types.Float(esmutils.InHgToHPa(*inHg))
		}
	case TypeTransducer:
		if !r.precipitation(&t) {
			if r.err != nil {
				return Telegram{}, r.err
			}
			return Telegram{}, newError(UnknownFrameType, frame, "XDR without %s transducer", rainTransducer)
		}
	default:
		return Telegram{}, newError(UnknownFrameType, frame, "sentence %s", addr)
	}

	if r.err != nil {
		return Telegram{}, r.err
	}
	return t, nil
}

const rainTransducer = "RAIN"

func speedToMs(v float64, unit string) float64 {
	switch unit {
	case "K":
		return esmutils.KmhToMs(v)
	case "N":
		return esmutils.KnotsToMs(v)
	case "S":
		return esmutils.MphToMs(v)
	}
	return v
}

// fieldReader keeps the first error so parsers can read every field
// and check once.
type fieldReader struct {
	frame  []byte
	fields []string
	err    *DecodeError
}

func (r *fieldReader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = newError(MalformedField, r.frame, format, args...)
	}
}

func (r *fieldReader) expect(n int) {
	if len(r.fields) != n {
		r.fail("%d fields, want %d", len(r.fields), n)
		r.fields = append(r.fields, make([]string, n)...)
	}
}

// The station sends plain decimals only. ParseFloat alone would also take
// NaN, Inf and hex floats.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// number returns nil for an empty field, the station's no-data marker.
func (r *fieldReader) number(i int, name string) *float64 {
	s := strings.TrimSpace(r.fields[i])
	if s == "" {
		return nil
	}
	if !decimalPattern.MatchString(s) {
		r.fail("%s %q: not a decimal number", name, s)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		r.fail("%s %q: out of range", name, s)
		return nil
	}
	return &v
}

// unit checks field i against allowed. An empty unit is accepted only
// next to an absent value.
func (r *fieldReader) unit(i int, value *float64, allowed ...string) string {
	s := r.fields[i]
	if s == "" && value == nil {
		return s
	}
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	r.fail("unit %q, want one of %v", s, allowed)
	return s
}

// precipitation looks for the rain transducer among the XDR quadruples
// (type, value, unit, id).
func (r *fieldReader) precipitation(t *Telegram) bool {
	if len(r.fields) == 0 || len(r.fields)%4 != 0 {
		r.fail("%d XDR fields, want multiple of 4", len(r.fields))
		return false
	}
	for i := 0; i < len(r.fields); i += 4 {
		if r.fields[i+3] != rainTransducer {
			continue
		}
		t.Fields = FieldPrecipitation
		t.Values.Precipitation = r.number(i+1, "precipitation")
		if r.fields[i] != "V" {
			r.fail("rain transducer type %q", r.fields[i])
		}
		r.unit(i+2, t.Values.Precipitation, "M")
		return r.err == nil
	}
	return false
}
