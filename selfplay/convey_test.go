package selfplay

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMoveTemperatureScheduleConvey(t *testing.T) {
	Convey("Given the sampling-move schedule", t, func() {
		Convey("Before ply 30, moves are sampled with temperature 1", func() {
			So(moveTemperature(0), ShouldEqual, float32(1.0))
			So(moveTemperature(29), ShouldEqual, float32(1.0))
		})
		Convey("From ply 30 onward, moves are selected greedily", func() {
			So(moveTemperature(30), ShouldEqual, float32(0))
			So(moveTemperature(100), ShouldEqual, float32(0))
		})
	})
}

func TestExpandPolicyConvey(t *testing.T) {
	Convey("Given a sparse visit policy over two actions", t, func() {
		sparse := map[int]float32{7: 0.4, 11: 0.6}

		Convey("When expanded to the full action space", func() {
			dense := expandPolicy(sparse)

			Convey("It has exactly one entry per action and preserves sparse mass", func() {
				So(len(dense), ShouldEqual, actionSpace)
				So(dense[7], ShouldEqual, float32(0.4))
				So(dense[11], ShouldEqual, float32(0.6))
			})

			Convey("Every other entry is zero", func() {
				var nonzero int
				for _, p := range dense {
					if p != 0 {
						nonzero++
					}
				}
				So(nonzero, ShouldEqual, 2)
			})
		})
	})
}
