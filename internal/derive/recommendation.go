package derive

import (
	"strings"

	"github.com/pogodaio/pogoda/internal/models"
)

// Recommendation messages. The joined output keeps a fixed priority order:
// rain, strong wind, then exactly one of cold/hot/pleasant.
const (
	MsgNoData     = "Not enough forecast data for a recommendation."
	MsgRain       = "Take an umbrella, precipitation is expected."
	MsgStrongWind = "Watch out for strong wind outside."
	MsgCold       = "Dress warmly, freezing temperatures ahead."
	MsgHot        = "It's hot! Remember to stay hydrated."
	MsgPleasant   = "Perfect weather for a longer walk outside."
	MsgStable     = "The weather looks stable. Have a good day!"
)

const (
	recommendationWindow = 12
	strongWindThreshold  = 10.0
)

// Recommendation analyses the first 12 hours of a forecast and returns a
// plain-language summary.
func Recommendation(hourly []models.HourlyPoint) string {
	if len(hourly) == 0 {
		return MsgNoData
	}

	window := hourly
	if len(window) > recommendationWindow {
		window = window[:recommendationWindow]
	}

	var willRain, strongWind bool
	var minTemp, maxTemp float64
	var haveTemp bool
	for _, h := range window {
		if h.Precipitation != nil && *h.Precipitation > 0 {
			willRain = true
		}
		if h.WindSpeed != nil && *h.WindSpeed > strongWindThreshold {
			strongWind = true
		}
		if h.Temperature != nil {
			if !haveTemp || *h.Temperature < minTemp {
				minTemp = *h.Temperature
			}
			if !haveTemp || *h.Temperature > maxTemp {
				maxTemp = *h.Temperature
			}
			haveTemp = true
		}
	}

	var msgs []string
	if willRain {
		msgs = append(msgs, MsgRain)
	}
	if strongWind {
		msgs = append(msgs, MsgStrongWind)
	}

	if haveTemp {
		switch {
		case minTemp < 0:
			msgs = append(msgs, MsgCold)
		case maxTemp > 25:
			msgs = append(msgs, MsgHot)
		case maxTemp >= 10 && maxTemp <= 20 && !willRain && !strongWind:
			msgs = append(msgs, MsgPleasant)
		}
	}

	if len(msgs) == 0 {
		return MsgStable
	}
	return strings.Join(msgs, " ")
}
