package device

import (
	"errors"
	"fmt"

	"github.com/njoerd114/vitalsync/internal/model"
)

// ErrDataFormat marks a device payload whose shape does not match the queried
// vital. Decode errors wrap it so callers can distinguish a malformed payload
// from a transport failure.
var ErrDataFormat = errors.New("unexpected device payload shape")

// rawRecord is the gateway's JSON shape for one sample. Scalar vitals use
// ts + values; sleep uses start/end/stage.
type rawRecord struct {
	TS     int64     `json:"ts,omitempty"`
	Values []float64 `json:"values,omitempty"`
	Start  int64     `json:"start,omitempty"`
	End    int64     `json:"end,omitempty"`
	Stage  string    `json:"stage,omitempty"`
}

// decodeRecords converts raw gateway records into readings for the given
// vital. Any malformed record aborts the whole decode — a partially decoded
// payload must never reach the store.
func decodeRecords(vital model.VitalType, records []rawRecord) ([]model.Reading, error) {
	readings := make([]model.Reading, 0, len(records))

	for i, rec := range records {
		r, err := decodeRecord(vital, rec)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d for %s: %v", ErrDataFormat, i, vital, err)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func decodeRecord(vital model.VitalType, rec rawRecord) (model.Reading, error) {
	if vital == model.VitalSleep {
		if rec.Start <= 0 || rec.End <= rec.Start {
			return model.Reading{}, fmt.Errorf("sleep segment has invalid bounds start=%d end=%d", rec.Start, rec.End)
		}
		seg := model.SleepSegment{
			Start: rec.Start,
			End:   rec.End,
			Stage: model.StageFromString(rec.Stage),
		}
		return seg.Reading(), nil
	}

	if rec.TS <= 0 {
		return model.Reading{}, fmt.Errorf("missing timestamp")
	}

	want := 1
	if model.ProfileFor(vital).Tuple {
		want = 2
	}
	if len(rec.Values) != want {
		return model.Reading{}, fmt.Errorf("got %d values, want %d", len(rec.Values), want)
	}

	r := model.Reading{VitalType: vital, Timestamp: rec.TS, Value: rec.Values[0]}
	if want == 2 {
		r.Value2 = rec.Values[1]
	}
	return r, nil
}
