// Package daylight is a diagnostic-only solar-position helper: it reports
// sun altitude/azimuth and today's sunrise/sunset for the configured site
// coordinates. It never feeds into Power or Charge's night detection,
// which is derived purely from measured panel voltage.
package daylight

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// Daylight holds the fixed site coordinates used for every snapshot.
type Daylight struct {
	latitude  float64
	longitude float64
}

// New constructs Daylight for the given site coordinates, decimal degrees.
func New(latitude, longitude float64) *Daylight {
	return &Daylight{latitude: latitude, longitude: longitude}
}

// Snapshot is a point-in-time solar-position reading.
type Snapshot struct {
	At          time.Time
	AzimuthDeg  float64
	AltitudeDeg float64
	Sunrise     time.Time
	Sunset      time.Time
	IsDaytime   bool
}

// At computes a Snapshot for the given time.
func (d *Daylight) At(t time.Time) Snapshot {
	pos := suncalc.GetPosition(t, d.latitude, d.longitude)
	times := suncalc.GetTimes(t, d.latitude, d.longitude)

	sunrise := times["sunrise"].Value
	sunset := times["sunset"].Value

	return Snapshot{
		At:          t,
		AzimuthDeg:  pos.Azimuth * 180 / math.Pi,
		AltitudeDeg: pos.Altitude * 180 / math.Pi,
		Sunrise:     sunrise,
		Sunset:      sunset,
		IsDaytime:   t.After(sunrise) && t.Before(sunset),
	}
}
