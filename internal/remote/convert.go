package remote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/njoerd114/vitalsync/internal/model"
)

// The backend transports every sample value as a string. Scalars are plain
// decimals ("62"), blood pressure is "systolic/diastolic" ("120/80"), sleep
// segments are "stage:durationSeconds" ("deep:3600").

// ErrValueFormat marks an API value string that could not be parsed. It is a
// data error, never a crash: callers surface it as a failure reason.
var ErrValueFormat = errors.New("unparseable API value")

// encodeValue renders a reading's value in the backend's wire format.
func encodeValue(r model.Reading) string {
	switch {
	case r.VitalType == model.VitalSleep:
		stage := model.SleepStage(int(r.Value))
		return fmt.Sprintf("%s:%d", stage, int64(r.Value2))
	case model.ProfileFor(r.VitalType).Tuple:
		return formatFloat(r.Value) + "/" + formatFloat(r.Value2)
	default:
		return formatFloat(r.Value)
	}
}

// parseValue parses a wire value string for the given vital into the
// value/value2 pair of a Reading.
func parseValue(vital model.VitalType, s string) (v, v2 float64, err error) {
	switch {
	case vital == model.VitalSleep:
		stage, dur, found := strings.Cut(s, ":")
		if !found {
			return 0, 0, fmt.Errorf("%w: sleep value %q has no stage separator", ErrValueFormat, s)
		}
		seconds, err := strconv.ParseInt(dur, 10, 64)
		if err != nil || seconds <= 0 {
			return 0, 0, fmt.Errorf("%w: sleep duration %q", ErrValueFormat, dur)
		}
		return float64(model.StageFromString(stage)), float64(seconds), nil

	case model.ProfileFor(vital).Tuple:
		first, second, found := strings.Cut(s, "/")
		if !found {
			return 0, 0, fmt.Errorf("%w: tuple value %q has no separator", ErrValueFormat, s)
		}
		v, err = strconv.ParseFloat(first, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrValueFormat, first)
		}
		v2, err = strconv.ParseFloat(second, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrValueFormat, second)
		}
		return v, v2, nil

	default:
		v, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrValueFormat, s)
		}
		return v, 0, nil
	}
}

// parseDailyValue parses a daily-series value string. Daily values use the
// same wire format as samples except sleep, whose day value is a plain scalar:
// total sleep minutes.
func parseDailyValue(vital model.VitalType, s string) (v, v2 float64, err error) {
	if vital == model.VitalSleep {
		v, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: sleep minutes %q", ErrValueFormat, s)
		}
		return v, 0, nil
	}
	return parseValue(vital, s)
}

// formatFloat renders a float without a trailing ".0" for whole numbers,
// matching what the backend emits.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
