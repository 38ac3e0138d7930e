package grit

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestScore(t *testing.T) {
	Convey("Given attempt histories", t, func() {
		Convey("An empty history scores zero", func() {
			So(Score(nil), ShouldEqual, 0.0)
		})

		Convey("Only successes score one", func() {
			So(Score([]bool{true}), ShouldEqual, 1.0)
			So(Score([]bool{true, true, true}), ShouldEqual, 1.0)
		})

		Convey("Failures all retried and a final success score one", func() {
			So(Score([]bool{false, false, true}), ShouldEqual, 1.0)
		})

		Convey("A single unanswered failure scores zero", func() {
			So(Score([]bool{false}), ShouldEqual, 0.0)
		})

		Convey("Retried failures ending in failure score the recovery half", func() {
			// 3 failures, 2 followed by another attempt, last failed.
			So(Score([]bool{false, false, false}), ShouldAlmostEqual, 0.5*2.0/3.0, 1e-12)
			So(Score([]bool{false, true, false}), ShouldAlmostEqual, 0.25, 1e-12)
		})

		Convey("Scores stay in range", func() {
			histories := [][]bool{
				{false, true, false, true},
				{true, false},
				{false, false, false, false, true},
			}
			for _, h := range histories {
				s := Score(h)
				So(s, ShouldBeGreaterThanOrEqualTo, 0.0)
				So(s, ShouldBeLessThanOrEqualTo, 1.0)
			}
		})
	})
}

func TestScoreSteps(t *testing.T) {
	Convey("Given a history spanning steps", t, func() {
		Convey("A failure followed only by another step is abandoned", func() {
			// fail on 1, succeed on 2: no recovery, final success.
			So(ScoreSteps([]Outcome{{1, false}, {2, true}}), ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("A later retry on the same step recovers it", func() {
			So(ScoreSteps([]Outcome{{1, false}, {2, true}, {1, true}}), ShouldEqual, 1.0)
		})

		Convey("Interleaved failures are tracked per step", func() {
			// 1 and 2 fail, 1 is retried and fails again, 2 never returns.
			h := []Outcome{{1, false}, {2, false}, {1, false}}
			So(ScoreSteps(h), ShouldAlmostEqual, 0.5*1.0/3.0, 1e-12)
		})

		Convey("Edge cases match Score", func() {
			So(ScoreSteps(nil), ShouldEqual, 0.0)
			So(ScoreSteps([]Outcome{{1, true}, {2, true}}), ShouldEqual, 1.0)
		})

		Convey("On one step it agrees with Score", func() {
			histories := [][]bool{
				{false},
				{false, false, true},
				{false, true, false},
				{true, false, false, true, false},
			}
			for _, h := range histories {
				steps := make([]Outcome, len(h))
				for i, ok := range h {
					steps[i] = Outcome{StepID: 7, Succeeded: ok}
				}
				So(ScoreSteps(steps), ShouldAlmostEqual, Score(h), 1e-12)
			}
		})
	})
}

func TestParseScope(t *testing.T) {
	Convey("Given scope names", t, func() {
		s, ok := ParseScope("figure")
		So(ok, ShouldBeTrue)
		So(s, ShouldEqual, ScopeFigure)

		_, ok = ParseScope("discipline")
		So(ok, ShouldBeFalse)
	})
}
