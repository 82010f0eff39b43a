// Package geo computes sunrise and sunset for a coordinate and resolves
// place names to coordinates.
package geo

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Valid reports whether the coordinates are within range.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// SunTimes contains the solar events of one local day.
type SunTimes struct {
	Dawn    time.Time `json:"dawn"`
	Sunrise time.Time `json:"sunrise"`
	Noon    time.Time `json:"noon"`
	Sunset  time.Time `json:"sunset"`
	Dusk    time.Time `json:"dusk"`
}

// Calculator computes solar events and memoizes them per coordinate and day.
// It is safe for concurrent use.
type Calculator struct {
	mu    sync.RWMutex
	cache map[string]SunTimes
}

// NewCalculator creates a calculator with an empty cache.
func NewCalculator() *Calculator {
	return &Calculator{cache: make(map[string]SunTimes)}
}

// TimesAt returns the solar events for date's calendar day, expressed in
// date's location.
func (c *Calculator) TimesAt(coords Coordinates, date time.Time) SunTimes {
	tz := date.Location()
	cacheKey := fmt.Sprintf("%s,%s,%s", coords, date.Format("2006-01-02"), tz)

	c.mu.RLock()
	cached, ok := c.cache[cacheKey]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	times := calculate(coords.Lat, coords.Lon, date, tz)

	c.mu.Lock()
	c.cache[cacheKey] = times
	c.mu.Unlock()
	return times
}

// calculate computes solar events using the NOAA sunrise equation.
func calculate(lat, lon float64, date time.Time, tz *time.Location) SunTimes {
	// Julian day - add 0.5 because the NOAA sunrise equation expects JD at noon, not midnight
	jd := toJulianDay(date) + 0.5

	return SunTimes{
		Dawn:    sunTime(jd, lat, lon, tz, date, -6.0, true), // civil dawn
		Sunrise: sunTime(jd, lat, lon, tz, date, -0.833, true),
		Noon:    solarNoon(jd, lon, tz, date),
		Sunset:  sunTime(jd, lat, lon, tz, date, -0.833, false),
		Dusk:    sunTime(jd, lat, lon, tz, date, -6.0, false), // civil dusk
	}
}

// toJulianDay converts a date to Julian day number
func toJulianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

// transit returns the Julian date of solar noon and the ecliptic longitude.
func transit(jd, lon float64) (jTransit, lambdaRad float64) {
	n := jd - 2451545.0 + 0.0008

	// Mean solar noon
	jStar := n - lon/360.0

	// Solar mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// Equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// Ecliptic longitude
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad = lambda * math.Pi / 180.0

	jTransit = 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)
	return jTransit, lambdaRad
}

func solarNoon(jd, lon float64, tz *time.Location, date time.Time) time.Time {
	jTransit, _ := transit(jd, lon)
	return julianToTime(jTransit, tz, date)
}

// sunTime calculates the instant the sun crosses angle degrees, rising or setting.
func sunTime(jd, lat, lon float64, tz *time.Location, date time.Time, angle float64, rising bool) time.Time {
	jTransit, lambdaRad := transit(jd, lon)

	// Declination of the sun
	sinDec := math.Sin(lambdaRad) * math.Sin(23.44*math.Pi/180.0)
	dec := math.Asin(sinDec)

	// Hour angle
	latRad := lat * math.Pi / 180.0
	angleRad := angle * math.Pi / 180.0

	cosOmega := (math.Sin(angleRad) - math.Sin(latRad)*math.Sin(dec)) / (math.Cos(latRad) * math.Cos(dec))

	// Polar day/night: clamp so the event collapses onto noon or midnight.
	if cosOmega > 1 {
		cosOmega = 1
	} else if cosOmega < -1 {
		cosOmega = -1
	}

	omega := math.Acos(cosOmega) * 180.0 / math.Pi

	var jTime float64
	if rising {
		jTime = jTransit - omega/360.0
	} else {
		jTime = jTransit + omega/360.0
	}

	return julianToTime(jTime, tz, date)
}

// julianToTime converts a Julian date to wall-clock time in tz, anchored on
// refDate's calendar day.
func julianToTime(jd float64, tz *time.Location, refDate time.Time) time.Time {
	unixTime := (jd - 2440587.5) * 86400.0
	sec := math.Floor(unixTime)
	t := time.Unix(int64(sec), int64((unixTime-sec)*1e9)).In(tz)

	return time.Date(
		refDate.Year(), refDate.Month(), refDate.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, tz,
	)
}
