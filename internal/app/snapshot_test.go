package service

import (
	"testing"
	"time"

	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/resolve"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuildEntries(t *testing.T) {
	Convey("Given stored predictions on a booked and an open horse", t, func() {
		opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		booked := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
		m := model.Market{ID: "m1", OpenedAt: opened, WindowDays: 28}
		horses := map[string]model.Horse{
			"h1": {ID: "h1", Name: "Alex", ActualDate: &booked},
			"h2": {ID: "h2", Name: "Bryan"},
		}
		preds := []model.Prediction{
			{ID: "p1", HorseID: "h1", ParticipantID: "sam", PredictedDate: booked, Stake: 20, SubmittedAt: opened},
			{ID: "p2", HorseID: "h2", ParticipantID: "kim", PredictedDate: booked, Stake: 30, SubmittedAt: opened},
		}

		Convey("When building single-pool entries", func() {
			entries := buildEntries(m, horses, preds, resolve.SinglePool)

			Convey("Then the booked horse resolves its entries only", func() {
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Resolved(), ShouldBeTrue)
				So(entries[1].Resolved(), ShouldBeFalse)
				So(entries[0].SubmarketKey, ShouldBeEmpty)
				So(entries[0].MarketOpenAt, ShouldEqual, opened)
			})

			Convey("And the actual date is a copy", func() {
				*entries[0].Actual = opened
				So(*horses["h1"].ActualDate, ShouldEqual, booked)
			})
		})

		Convey("When building per-submarket entries", func() {
			entries := buildEntries(m, horses, preds, resolve.PerSubmarket)

			Convey("Then each entry is keyed by its horse", func() {
				So(entries[0].SubmarketKey, ShouldEqual, "h1")
				So(entries[1].SubmarketKey, ShouldEqual, "h2")
			})
		})

		Convey("When rendering rows", func() {
			snap := snapshot{
				market:      m,
				horses:      horses,
				predictions: map[string]model.Prediction{"p1": preds[0]},
			}
			rows := snap.rows([]model.PayoutResult{{EntryID: "p1", Rank: 1, Payout: 50}})

			Convey("Then participant and horse names are joined in", func() {
				So(rows[0].ParticipantID, ShouldEqual, "sam")
				So(rows[0].Horse, ShouldEqual, "Alex")
				So(rows[0].PredictedDate, ShouldEqual, "2026-04-10")
			})
		})
	})
}
