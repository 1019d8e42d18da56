package model

import "strings"

// SleepStage classifies a sleep segment.
// Values match the wearable's stage codes and survive the Reading encoding.
type SleepStage int

const (
	StageDeep  SleepStage = 1
	StageLight SleepStage = 2
	StageREM   SleepStage = 3
	StageAwake SleepStage = 4
)

// String returns the human-readable label for the stage.
func (s SleepStage) String() string {
	switch s {
	case StageDeep:
		return "deep"
	case StageLight:
		return "light"
	case StageREM:
		return "rem"
	case StageAwake:
		return "awake"
	default:
		return "unknown"
	}
}

// StageFromString parses a stage label. Unknown labels map to StageAwake so a
// malformed record degrades to "not asleep" rather than inflating sleep time.
func StageFromString(s string) SleepStage {
	switch strings.ToLower(s) {
	case "deep":
		return StageDeep
	case "light":
		return StageLight
	case "rem":
		return StageREM
	default:
		return StageAwake
	}
}

// SleepSegment is one contiguous stretch of a single sleep stage.
type SleepSegment struct {
	// Start and End are epoch seconds UTC, Start < End.
	Start int64
	End   int64
	Stage SleepStage
}

// Minutes returns the segment duration in whole minutes.
func (s SleepSegment) Minutes() int {
	return int((s.End - s.Start) / 60)
}

// SleepSession is an ordered run of non-overlapping segments.
// Invariant: Segments are sorted by Start and End >= the last segment's End.
type SleepSession struct {
	Start    int64
	End      int64
	Segments []SleepSegment
}

// Sleep segments ride the generic Reading pipeline: the segment start is the
// dedup timestamp, Value carries the stage code, Value2 the duration in
// seconds. This keeps dedup, comparison, and upload identical across all
// vital types.

// Reading encodes the segment as a sleep-vital Reading.
func (s SleepSegment) Reading() Reading {
	return Reading{
		VitalType: VitalSleep,
		Timestamp: s.Start,
		Value:     float64(s.Stage),
		Value2:    float64(s.End - s.Start),
	}
}

// SegmentFromReading decodes a sleep-vital Reading back into a segment.
func SegmentFromReading(r Reading) SleepSegment {
	return SleepSegment{
		Start: r.Timestamp,
		End:   r.Timestamp + int64(r.Value2),
		Stage: SleepStage(int(r.Value)),
	}
}
