// Package sleep stitches raw sleep segments into sessions and computes
// per-day statistics.
//
// The wearable reports only the stages it detected; silence between two
// recorded segments of at least [GapThreshold] is synthesized as an Awake
// segment covering exactly that gap. Synthesized segments exist only in the
// in-memory session handed to consumers — they are never written back to the
// store, so re-ingesting a night's data stays idempotent.
package sleep

import (
	"math"
	"sort"

	"github.com/njoerd114/vitalsync/internal/model"
)

// GapThreshold is the minimum silence between two recorded segments that gets
// gap-filled as Awake.
const GapThreshold int64 = 60 // seconds

const (
	// referenceSleepMinutes is the 8-hour reference a full score is measured
	// against.
	referenceSleepMinutes = 480

	scoreFloor   = 12
	scoreCeiling = 100
)

// DayStats summarizes one calendar day of sleep.
type DayStats struct {
	// TotalSleepMinutes counts Deep + Light + REM. Awake is excluded.
	TotalSleepMinutes int

	// AwakeMinutes counts recorded and synthesized Awake time.
	AwakeMinutes int

	// Score is TotalSleepMinutes relative to an 8-hour reference, clamped to
	// [12, 100].
	Score int

	// Efficiency is the percentage of session time actually asleep,
	// 0 when there was no session time at all.
	Efficiency int
}

// BuildDay decodes a day's sleep readings, stitches them into a session with
// Awake gap-fill, and computes the day statistics. ok is false when the day
// has no segments.
func BuildDay(readings []model.Reading) (session model.SleepSession, stats DayStats, ok bool) {
	segments := make([]model.SleepSegment, 0, len(readings))
	for _, r := range readings {
		segments = append(segments, model.SegmentFromReading(r))
	}

	stitched := Stitch(segments)
	if len(stitched) == 0 {
		return model.SleepSession{}, DayStats{}, false
	}

	session = model.SleepSession{
		Start:    stitched[0].Start,
		End:      stitched[len(stitched)-1].End,
		Segments: stitched,
	}
	return session, Stats(stitched), true
}

// Stitch sorts segments by start time and fills every gap of at least
// [GapThreshold] between adjacent segments with a synthesized Awake segment.
// A single isolated segment has no neighbour and produces no fill; gaps under
// the threshold are left as-is.
func Stitch(segments []model.SleepSegment) []model.SleepSegment {
	if len(segments) == 0 {
		return nil
	}

	sorted := make([]model.SleepSegment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]model.SleepSegment, 0, 2*len(sorted)-1)
	out = append(out, sorted[0])
	for _, next := range sorted[1:] {
		prev := out[len(out)-1]
		if gap := next.Start - prev.End; gap >= GapThreshold {
			out = append(out, model.SleepSegment{
				Start: prev.End,
				End:   next.Start,
				Stage: model.StageAwake,
			})
		}
		out = append(out, next)
	}
	return out
}

// Stats computes day statistics over the union of real and synthesized
// segments.
func Stats(segments []model.SleepSegment) DayStats {
	var stats DayStats
	for _, seg := range segments {
		if seg.Stage == model.StageAwake {
			stats.AwakeMinutes += seg.Minutes()
		} else {
			stats.TotalSleepMinutes += seg.Minutes()
		}
	}

	stats.Score = score(stats.TotalSleepMinutes)
	stats.Efficiency = efficiency(stats.TotalSleepMinutes, stats.AwakeMinutes)
	return stats
}

// score maps total sleep minutes onto [scoreFloor, scoreCeiling] against the
// 8-hour reference.
func score(totalSleepMinutes int) int {
	s := int(math.Round(float64(totalSleepMinutes) / referenceSleepMinutes * 100))
	if s < scoreFloor {
		return scoreFloor
	}
	if s > scoreCeiling {
		return scoreCeiling
	}
	return s
}

// efficiency is the slept share of the session in percent, 0 when the
// denominator is 0.
func efficiency(sleepMinutes, awakeMinutes int) int {
	total := sleepMinutes + awakeMinutes
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(sleepMinutes) / float64(total) * 100))
}
