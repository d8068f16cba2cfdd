package derive

import (
	"testing"
	"time"

	"github.com/pogodaio/pogoda/internal/models"
)

func f(v float64) *float64 { return &v }

// hoursOf builds a window of hourly points with a flat temperature and
// optional precipitation/wind overrides at given offsets.
func hoursOf(n int, temp float64) []models.HourlyPoint {
	points := make([]models.HourlyPoint, n)
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := range points {
		points[i] = models.HourlyPoint{
			Time:        base.Add(time.Duration(i) * time.Hour),
			Temperature: f(temp),
		}
	}
	return points
}

func TestRecommendation(t *testing.T) {
	t.Run("empty forecast", func(t *testing.T) {
		if got := Recommendation(nil); got != MsgNoData {
			t.Errorf("got %q, want %q", got, MsgNoData)
		}
	})

	t.Run("pleasant window", func(t *testing.T) {
		if got := Recommendation(hoursOf(12, 15)); got != MsgPleasant {
			t.Errorf("got %q, want %q", got, MsgPleasant)
		}
	})

	t.Run("rain suppresses pleasant", func(t *testing.T) {
		points := hoursOf(12, 15)
		points[3].Precipitation = f(0.4)
		if got := Recommendation(points); got != MsgRain {
			t.Errorf("got %q, want %q", got, MsgRain)
		}
	})

	t.Run("rain and wind join in priority order", func(t *testing.T) {
		points := hoursOf(12, 15)
		points[0].Precipitation = f(1.2)
		points[5].WindSpeed = f(14)
		want := MsgRain + " " + MsgStrongWind
		if got := Recommendation(points); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("freezing wins over hot band", func(t *testing.T) {
		points := hoursOf(12, 18)
		points[2].Temperature = f(-3)
		if got := Recommendation(points); got != MsgCold {
			t.Errorf("got %q, want %q", got, MsgCold)
		}
	})

	t.Run("hot window", func(t *testing.T) {
		if got := Recommendation(hoursOf(12, 28)); got != MsgHot {
			t.Errorf("got %q, want %q", got, MsgHot)
		}
	})

	t.Run("nothing notable is stable", func(t *testing.T) {
		if got := Recommendation(hoursOf(12, 23)); got != MsgStable {
			t.Errorf("got %q, want %q", got, MsgStable)
		}
	})

	t.Run("only first twelve hours count", func(t *testing.T) {
		points := hoursOf(24, 15)
		points[20].Precipitation = f(5)
		if got := Recommendation(points); got != MsgPleasant {
			t.Errorf("got %q, want %q", got, MsgPleasant)
		}
	})
}
