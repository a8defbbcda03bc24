package port_reader

import (
	"bufio"
	"io"
	"math"
	"math/rand"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/esmutils"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/telegram"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/types"
)

// WriteSampleCapture writes rounds of plausible station output, one
// sentence per sensor group each round, for use with Replay.
func WriteSampleCapture(w io.Writer, rounds int, seed int64) error {
	rnd := rand.New(rand.NewSource(seed))
	bw := bufio.NewWriter(w)

	temperature := 12.0
	pressure := 1013.0
	direction := 270.0
	rain := 0.0
	for i := 0; i < rounds; i++ {
		temperature += rnd.NormFloat64() * 0.1
		pressure += rnd.NormFloat64() * 0.05
		direction = esmutils.NormalizeDegrees(direction + rnd.NormFloat64()*10)
		speed := math.Abs(3 + rnd.NormFloat64())
		humidity := math.Min(100, math.Max(0, 65+rnd.NormFloat64()*2))
		if rnd.Intn(10) == 0 {
			rain += 0.1
		}

		sentences := []telegram.Telegram{
			{Type: telegram.TypeTemperature, Values: types.Measurement{
				Temperature: types.Float(esmutils.Round(temperature, 1))}},
			{Type: telegram.TypeWind, Values: types.Measurement{
				WindDirection: types.Float(esmutils.Round(direction, 1)),
				WindSpeed:     types.Float(esmutils.Round(speed, 1))}},
			{Type: telegram.TypeHumidity, Values: types.Measurement{
				Humidity: types.Float(esmutils.Round(humidity, 1)),
				DewPoint: types.Float(esmutils.Round(temperature-(100-humidity)/5, 1))}},
			{Type: telegram.TypePressure, Values: types.Measurement{
				AirPressure: types.Float(esmutils.Round(pressure, 1))}},
			{Type: telegram.TypeTransducer, Values: types.Measurement{
				Precipitation: types.Float(esmutils.Round(rain, 1))}},
		}
		for _, s := range sentences {
			if _, err := bw.Write(telegram.Encode(s)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
