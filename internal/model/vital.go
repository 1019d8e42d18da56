// Package model defines shared types used across the sync engine and adapters.
package model

import (
	"fmt"
	"time"
)

// VitalType identifies one of the tracked health metrics.
type VitalType string

const (
	VitalHeartRate     VitalType = "heart_rate"
	VitalBloodPressure VitalType = "blood_pressure"
	VitalHRV           VitalType = "hrv"
	VitalBloodOxygen   VitalType = "blood_oxygen"
	VitalGlucose       VitalType = "glucose"
	VitalTemperature   VitalType = "temperature"
	VitalSteps         VitalType = "steps"
	VitalCalories      VitalType = "calories"
	VitalSleep         VitalType = "sleep"
)

// AllVitals lists every supported vital type in display order.
func AllVitals() []VitalType {
	return []VitalType{
		VitalHeartRate,
		VitalBloodPressure,
		VitalHRV,
		VitalBloodOxygen,
		VitalGlucose,
		VitalTemperature,
		VitalSteps,
		VitalCalories,
		VitalSleep,
	}
}

// Valid reports whether v is a known vital type.
func (v VitalType) Valid() bool {
	switch v {
	case VitalHeartRate, VitalBloodPressure, VitalHRV, VitalBloodOxygen,
		VitalGlucose, VitalTemperature, VitalSteps, VitalCalories, VitalSleep:
		return true
	}
	return false
}

// AggregateKind selects how a day of readings rolls up into a single
// DailyAggregate value.
type AggregateKind int

const (
	// AggregateAvg averages all readings of the day (heart rate, HRV, SpO2,
	// glucose, temperature, blood pressure).
	AggregateAvg AggregateKind = iota
	// AggregateSum totals all readings of the day (steps, calories).
	AggregateSum
	// AggregateLast keeps the chronologically-latest reading of the day.
	AggregateLast
)

// Profile describes the per-vital behaviour the generic sync pipeline is
// parameterized by. One coordinator instance is created per profile.
type Profile struct {
	Type VitalType

	// Tuple is true when readings carry two components (blood pressure:
	// systolic in Value, diastolic in Value2).
	Tuple bool

	// Aggregate selects the day rollup strategy.
	Aggregate AggregateKind

	// Unit is the display unit, informational only.
	Unit string
}

// ProfileFor returns the Profile for a vital type. Unknown types get a scalar
// average profile with no unit.
func ProfileFor(v VitalType) Profile {
	switch v {
	case VitalHeartRate:
		return Profile{Type: v, Aggregate: AggregateAvg, Unit: "bpm"}
	case VitalBloodPressure:
		return Profile{Type: v, Tuple: true, Aggregate: AggregateAvg, Unit: "mmHg"}
	case VitalHRV:
		return Profile{Type: v, Aggregate: AggregateAvg, Unit: "ms"}
	case VitalBloodOxygen:
		return Profile{Type: v, Aggregate: AggregateAvg, Unit: "%"}
	case VitalGlucose:
		return Profile{Type: v, Aggregate: AggregateAvg, Unit: "mmol/L"}
	case VitalTemperature:
		return Profile{Type: v, Aggregate: AggregateAvg, Unit: "°C"}
	case VitalSteps:
		return Profile{Type: v, Aggregate: AggregateSum, Unit: "steps"}
	case VitalCalories:
		return Profile{Type: v, Aggregate: AggregateSum, Unit: "kcal"}
	case VitalSleep:
		// The day value for sleep is total sleep minutes, rolled up from the
		// stitched session rather than the generic aggregate kinds.
		return Profile{Type: v, Aggregate: AggregateLast, Unit: "min"}
	}
	return Profile{Type: v, Aggregate: AggregateAvg}
}

// Reading is a single immutable timestamped sample for one vital type.
// Timestamp (epoch seconds) is the dedup key within a vital: the store never
// holds two readings with the same (vitalType, timestamp).
type Reading struct {
	VitalType VitalType

	// Timestamp is epoch seconds UTC.
	Timestamp int64

	// Value is the scalar sample, or the first tuple component
	// (systolic for blood pressure, sleep stage for sleep).
	Value float64

	// Value2 is the second tuple component (diastolic for blood pressure,
	// segment duration in seconds for sleep). Zero for scalar vitals.
	Value2 float64
}

// Time returns the reading timestamp as a UTC time.
func (r Reading) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// SameValue reports whether two readings agree on (timestamp, value, value2).
// Used by the reconciliation comparator.
func (r Reading) SameValue(o Reading) bool {
	return r.Timestamp == o.Timestamp && r.Value == o.Value && r.Value2 == o.Value2
}

// DailyAggregate is a single summary value per vital type per calendar day,
// used for week/month charting.
type DailyAggregate struct {
	VitalType VitalType

	// Date is the calendar-day key, "YYYY-MM-DD".
	Date string

	Value  float64
	Value2 float64

	// LastUpdated (epoch seconds) strictly increases on each accepted write.
	LastUpdated int64
}

// DateLayout is the calendar-day key format used throughout the engine.
const DateLayout = "2006-01-02"

// DateOf returns the calendar-day key of an epoch-second timestamp, UTC.
func DateOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(DateLayout)
}

// DayBounds returns the inclusive start and exclusive end epoch seconds of a
// calendar day.
func DayBounds(date string) (start, end int64, err error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing date %q: %w", date, err)
	}
	return t.Unix(), t.AddDate(0, 0, 1).Unix(), nil
}
