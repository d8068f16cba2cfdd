// Package derive holds the pure functions that turn stored or fetched
// weather values into presentation values. Nothing here touches the store
// or the network.
package derive

import "database/sql"

// PerceivedTemperature approximates how the air temperature feels.
// Below 10°C wind chill subtracts (wind-3)*0.2 for wind above 3 m/s; above
// 25°C humidity over 50% adds (humidity-50)/10*0.5. The two corrections are
// mutually exclusive and checked in that order; anything else passes
// through unchanged. An absent temperature yields an absent result.
func PerceivedTemperature(temp, humidity, windSpeed sql.NullFloat64) sql.NullFloat64 {
	if !temp.Valid {
		return sql.NullFloat64{}
	}

	if temp.Float64 < 10 && windSpeed.Valid && windSpeed.Float64 > 3 {
		windFactor := (windSpeed.Float64 - 3) * 0.2
		return sql.NullFloat64{Float64: temp.Float64 - windFactor, Valid: true}
	}

	if temp.Float64 > 25 && humidity.Valid && humidity.Float64 > 50 {
		humidityFactor := (humidity.Float64 - 50) / 10 * 0.5
		return sql.NullFloat64{Float64: temp.Float64 + humidityFactor, Valid: true}
	}

	return temp
}
