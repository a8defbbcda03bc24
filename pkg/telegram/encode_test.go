package telegram

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/esmutils"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/types"
)

func TestEncodeReproducesStationFrames(t *testing.T) {
	t.Parallel()
	for _, frame := range []string{
		"$WIMTA,12.3,C*1B\r\n",
		"$WIMWV,271.0,R,3.4,M,A*23\r\n",
		"$WIMHU,65.2,,5.9,C*30\r\n",
		"$WIXDR,V,0.2,M,RAIN*73\r\n",
	} {
		tg, _, err := Decode([]byte(frame))
		require.NoError(t, err)
		assert.Equal(t, frame, string(Encode(tg)))
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	value := func(min, max float64, decimals int) *float64 {
		v := esmutils.Round(min+rnd.Float64()*(max-min), decimals)
		return &v
	}

	for i := 0; i < 200; i++ {
		cases := []Telegram{
			{Type: TypeTemperature, Values: types.Measurement{Temperature: value(-40, 60, 1)}},
			{Type: TypeWind, WindUnit: []string{"M", "K", "N", "S"}[rnd.Intn(4)], Values: types.Measurement{
				WindDirection: value(0, 359.9, 1), WindSpeed: value(0, 60, 1)}},
			{Type: TypeHumidity, Values: types.Measurement{Humidity: value(0, 100, 1), DewPoint: value(-30, 30, 1)}},
			{Type: TypePressure, Values: types.Measurement{AirPressure: value(900, 1100, 1)}},
			{Type: TypeTransducer, Values: types.Measurement{Precipitation: value(0, 50, 1)}},
		}
		for _, in := range cases {
			frame := Encode(in)
			out, n, err := Decode(frame)
			require.NoError(t, err, "frame=%q", frame)
			assert.Equal(t, len(frame), n)
			assert.Equal(t, in.Type, out.Type)
			// wind speed is re-scaled by the unit, allow the rounding of one decimal
			assertRoundTrip(t, in.Values, out.Values, frame)
		}
	}
}

func assertRoundTrip(t *testing.T, in, out types.Measurement, frame []byte) {
	t.Helper()
	check := func(name string, a, b *float64, delta float64) {
		if a == nil {
			assert.Nil(t, b, "%s frame=%q", name, frame)
			return
		}
		if assert.NotNil(t, b, "%s frame=%q", name, frame) {
			assert.InDelta(t, *a, *b, delta, "%s frame=%q", name, frame)
		}
	}
	check("temperature", in.Temperature, out.Temperature, 1e-9)
	check("humidity", in.Humidity, out.Humidity, 1e-9)
	check("dew point", in.DewPoint, out.DewPoint, 1e-9)
	check("wind direction", in.WindDirection, out.WindDirection, 1e-9)
	check("wind speed", in.WindSpeed, out.WindSpeed, 0.05)
	check("air pressure", in.AirPressure, out.AirPressure, 0.051)
	check("precipitation", in.Precipitation, out.Precipitation, 1e-9)
}

func TestEncodeAbsentValues(t *testing.T) {
	t.Parallel()
	for _, in := range []Telegram{
		{Type: TypeTemperature},
		{Type: TypeWind},
		{Type: TypeHumidity},
		{Type: TypePressure},
		{Type: TypeTransducer},
	} {
		frame := Encode(in)
		out, _, err := Decode(frame)
		require.NoError(t, err, "frame=%q", frame)
		assert.NotZero(t, out.Fields, "frame=%q", frame)
		assert.False(t, out.Values.HasValues(), "frame=%q", frame)
	}
	assert.Equal(t, "$WIMWV,,R,,M,V*37\r\n", string(Encode(Telegram{Type: TypeWind})))
}
