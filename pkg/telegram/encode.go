package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/esmutils"
)

// Decimals sent by the station per value.
const (
	temperatureDecimals   = 1
	humidityDecimals      = 1
	windDirectionDecimals = 1
	windSpeedDecimals     = 1
	pressureBarDecimals   = 4
	pressureInHgDecimals  = 4
	precipitationDecimals = 1
)

// Encode renders t in the station's sentence layout, checksum and "\r\n"
// included. Values are written at the station's precision.
func Encode(t Telegram) []byte {
	talker := t.Talker
	if talker == "" {
		talker = DefaultTalker
	}
	v := t.Values

	var fields []string
	switch t.Type {
	case TypeTemperature:
		fields = []string{formatValue(v.Temperature, temperatureDecimals), "C"}
	case TypeWind:
		ref := t.WindReference
		if ref == "" {
			ref = "R"
		}
		unit := t.WindUnit
		if unit == "" {
			unit = "M"
		}
		status := "A"
		if v.WindDirection == nil && v.WindSpeed == nil {
			status = "V"
		}
		var speed *float64
		if v.WindSpeed != nil {
			s := *v.WindSpeed / speedToMs(1, unit)
			speed = &s
		}
		fields = []string{
			formatValue(v.WindDirection, windDirectionDecimals), ref,
			formatValue(speed, windSpeedDecimals), unit,
			status,
		}
	case TypeHumidity:
		fields = []string{
			formatValue(v.Humidity, humidityDecimals), "",
			formatValue(v.DewPoint, temperatureDecimals), "C",
		}
	case TypePressure:
		var bar, inHg *float64
		if v.AirPressure != nil {
			b := esmutils.HPaToBar(*v.AirPressure)
			i := esmutils.HPaToInHg(*v.AirPressure)
			bar, inHg = &b, &i
		}
		fields = []string{
			formatValue(inHg, pressureInHgDecimals), "I",
			formatValue(bar, pressureBarDecimals), "B",
		}
	case TypeTransducer:
		fields = []string{"V", formatValue(v.Precipitation, precipitationDecimals), "M", rainTransducer}
	default:
		fields = nil
	}

	body := talker + string(t.Type)
	if len(fields) > 0 {
		body += "," + strings.Join(fields, ",")
	}
	return []byte(fmt.Sprintf("$%s*%02X\r\n", body, Checksum([]byte(body))))
}

func formatValue(v *float64, decimals int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', decimals, 64)
}
