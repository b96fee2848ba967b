package collateral

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/store"
)

func TestSupplyBackingScenario(t *testing.T) {
	Convey("Given a funded collateral ledger", t, func() {
		db := store.MemStore()
		l := NewLedger("USDX")
		_, err := l.RecordDeposit(db, usd(1000), "dep-1", "bank-1", 1000)
		So(err, ShouldBeNil)

		Convey("the full balance can be claimed by a mint", func() {
			So(l.CheckMintAllowed(db, usd(1000)), ShouldBeNil)

			Convey("but not a unit more", func() {
				err := l.CheckMintAllowed(db, usd(1001))
				So(errors.ErrInvariant.Is(err), ShouldBeTrue)
			})
		})

		Convey("When one mint reserves part of the backing", func() {
			So(l.Reserve(db, usd(700)), ShouldBeNil)

			Convey("a second mint only fits the remaining headroom", func() {
				So(l.Reserve(db, usd(300)), ShouldBeNil)
				err := l.Reserve(db, usd(1))
				So(errors.ErrInvariant.Is(err), ShouldBeTrue)
			})

			Convey("withdrawals are capped by the claimed backing", func() {
				_, err := l.RecordWithdrawal(db, usd(300), "wd-1", "", 1100)
				So(err, ShouldBeNil)

				_, err = l.RecordWithdrawal(db, usd(1), "wd-2", "", 1200)
				So(errors.ErrInvariant.Is(err), ShouldBeTrue)
			})

			Convey("and executing the mint turns the claim into supply", func() {
				issued, err := l.MarkIssued(db, usd(700))
				So(err, ShouldBeNil)
				So(issued, ShouldResemble, usd(700))

				reserved, err := l.ReservedSupply(db)
				So(err, ShouldBeNil)
				So(reserved, ShouldResemble, usd(0))

				Convey("burning then frees withdrawal headroom", func() {
					_, err := l.SubtractIssued(db, usd(500))
					So(err, ShouldBeNil)

					_, err = l.RecordWithdrawal(db, usd(800), "wd-3", "", 1300)
					So(err, ShouldBeNil)

					balance, err := l.Balance(db)
					So(err, ShouldBeNil)
					So(balance, ShouldResemble, usd(200))
				})
			})
		})
	})
}
