package audit

import (
	"testing"

	"github.com/mintward/custody/custodytest/assert"
	"github.com/mintward/custody/store"
)

func TestTrailRecordsPerOperation(t *testing.T) {
	db := store.MemStore()
	trail := NewTrail()

	_, err := trail.Record(db, 1, EventRequested, "", "ref-1", 1000)
	assert.Nil(t, err)
	_, err = trail.Record(db, 2, EventRequested, "", "ref-2", 1001)
	assert.Nil(t, err)
	_, err = trail.Record(db, 1, EventApproved, "signer-1", "", 1002)
	assert.Nil(t, err)
	_, err = trail.Record(db, 1, EventQuorum, "signer-2", "", 1003)
	assert.Nil(t, err)

	events, err := trail.ListByOperation(db, 1)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(events))
	assert.Equal(t, EventRequested, events[0].Type)
	assert.Equal(t, EventApproved, events[1].Type)
	assert.Equal(t, EventQuorum, events[2].Type)
	assert.Equal(t, "signer-1", events[1].Actor)

	other, err := trail.ListByOperation(db, 2)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(other))
	assert.Equal(t, "ref-2", other[0].Detail)

	empty, err := trail.ListByOperation(db, 99)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(empty))
}

func TestTrailSequencesAreMonotonic(t *testing.T) {
	db := store.MemStore()
	trail := NewTrail()

	for i := 0; i < 5; i++ {
		_, err := trail.Record(db, 7, EventApproved, "signer-1", "", 1000)
		assert.Nil(t, err)
	}
	events, err := trail.ListByOperation(db, 7)
	assert.Nil(t, err)
	assert.Equal(t, 5, len(events))
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("sequence not increasing at %d", i)
		}
	}
}
