package sleep

import (
	"testing"

	"github.com/njoerd114/vitalsync/internal/model"
)

// minutes-based segment helper: seg(0, 60, Deep) is 00:00–01:00.
func seg(startMin, endMin int64, stage model.SleepStage) model.SleepSegment {
	return model.SleepSegment{Start: startMin * 60, End: endMin * 60, Stage: stage}
}

func TestStitch_FillsGapAtThreshold(t *testing.T) {
	// [00:00–01:00 Deep], [01:05–02:00 Light]: the 5-minute gap gets an Awake
	// segment covering exactly 01:00–01:05.
	segments := []model.SleepSegment{
		seg(0, 60, model.StageDeep),
		seg(65, 120, model.StageLight),
	}

	out := Stitch(segments)
	if len(out) != 3 {
		t.Fatalf("segments = %d, want 3", len(out))
	}
	awake := out[1]
	if awake.Stage != model.StageAwake {
		t.Errorf("middle stage = %s, want awake", awake.Stage)
	}
	if awake.Start != 60*60 || awake.End != 65*60 {
		t.Errorf("awake bounds = [%d, %d], want [3600, 3900]", awake.Start, awake.End)
	}
}

func TestStitch_ZeroGapNotFilled(t *testing.T) {
	segments := []model.SleepSegment{
		seg(0, 60, model.StageDeep),
		seg(60, 120, model.StageLight),
	}

	out := Stitch(segments)
	if len(out) != 2 {
		t.Errorf("segments = %d, want 2 (no synthesized gap)", len(out))
	}
}

func TestStitch_SubThresholdGapNotFilled(t *testing.T) {
	segments := []model.SleepSegment{
		seg(0, 60, model.StageDeep),
		{Start: 60*60 + 59, End: 120 * 60, Stage: model.StageLight}, // 59s gap
	}

	out := Stitch(segments)
	if len(out) != 2 {
		t.Errorf("segments = %d, want 2 (59s gap is under threshold)", len(out))
	}
}

func TestStitch_SingleSegmentNoFill(t *testing.T) {
	out := Stitch([]model.SleepSegment{seg(0, 60, model.StageDeep)})
	if len(out) != 1 {
		t.Errorf("segments = %d, want 1", len(out))
	}
}

func TestStitch_SortsBeforeFilling(t *testing.T) {
	segments := []model.SleepSegment{
		seg(65, 120, model.StageLight),
		seg(0, 60, model.StageDeep),
	}

	out := Stitch(segments)
	if len(out) != 3 {
		t.Fatalf("segments = %d, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			t.Errorf("segments overlap at index %d", i)
		}
	}
}

func TestStats_ExcludesAwakeFromSleep(t *testing.T) {
	segments := []model.SleepSegment{
		seg(0, 120, model.StageDeep),
		seg(120, 150, model.StageAwake),
		seg(150, 270, model.StageLight),
		seg(270, 330, model.StageREM),
	}

	stats := Stats(segments)
	if stats.TotalSleepMinutes != 300 {
		t.Errorf("TotalSleepMinutes = %d, want 300", stats.TotalSleepMinutes)
	}
	if stats.AwakeMinutes != 30 {
		t.Errorf("AwakeMinutes = %d, want 30", stats.AwakeMinutes)
	}
	// 300/480*100 = 62.5 → 63; 300/330*100 = 90.9 → 91.
	if stats.Score != 63 {
		t.Errorf("Score = %d, want 63", stats.Score)
	}
	if stats.Efficiency != 91 {
		t.Errorf("Efficiency = %d, want 91", stats.Efficiency)
	}
}

func TestScoreBounds(t *testing.T) {
	tests := []struct {
		sleepMinutes int
		want         int
	}{
		{0, 12},     // floor
		{10, 12},    // still floor (10/480*100 = 2)
		{240, 50},   // half the reference
		{480, 100},  // exactly the reference
		{600, 100},  // ceiling
	}
	for _, tt := range tests {
		if got := score(tt.sleepMinutes); got != tt.want {
			t.Errorf("score(%d) = %d, want %d", tt.sleepMinutes, got, tt.want)
		}
	}
}

func TestEfficiency_ZeroDenominator(t *testing.T) {
	if got := efficiency(0, 0); got != 0 {
		t.Errorf("efficiency(0, 0) = %d, want 0", got)
	}
	if got := efficiency(300, 0); got != 100 {
		t.Errorf("efficiency(300, 0) = %d, want 100", got)
	}
}

func TestBuildDay(t *testing.T) {
	readings := []model.Reading{
		seg(0, 60, model.StageDeep).Reading(),
		seg(65, 120, model.StageLight).Reading(),
	}

	session, stats, ok := BuildDay(readings)
	if !ok {
		t.Fatal("BuildDay reported no session")
	}
	if session.Start != 0 || session.End != 120*60 {
		t.Errorf("session bounds = [%d, %d], want [0, 7200]", session.Start, session.End)
	}
	if len(session.Segments) != 3 {
		t.Errorf("session segments = %d, want 3 (gap-filled)", len(session.Segments))
	}
	if session.End < session.Segments[len(session.Segments)-1].End {
		t.Error("session end before last segment end")
	}
	if stats.TotalSleepMinutes != 115 {
		t.Errorf("TotalSleepMinutes = %d, want 115", stats.TotalSleepMinutes)
	}
	if stats.AwakeMinutes != 5 {
		t.Errorf("AwakeMinutes = %d, want 5", stats.AwakeMinutes)
	}
}

func TestBuildDay_Empty(t *testing.T) {
	if _, _, ok := BuildDay(nil); ok {
		t.Error("BuildDay(nil) reported a session")
	}
}
