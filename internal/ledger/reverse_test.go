package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReturnSliceTakesFIFOPrefix(t *testing.T) {
	records := []Allocation{
		{EntryItemID: 1, QtyTaken: 30, UnitCost: dec("35"), TotalCost: dec("1050")},
		{EntryItemID: 2, QtyTaken: 5, UnitCost: dec("40"), TotalCost: dec("200")},
	}

	slice, err := ReturnSlice(records, 10)
	require.NoError(t, err)
	require.Len(t, slice, 1)
	require.EqualValues(t, 1, slice[0].EntryItemID)
	require.EqualValues(t, 10, slice[0].QtyTaken)
	require.True(t, slice[0].TotalCost.Equal(dec("350")))

	slice, err = ReturnSlice(records, 32)
	require.NoError(t, err)
	require.Len(t, slice, 2)
	require.EqualValues(t, 30, slice[0].QtyTaken)
	require.EqualValues(t, 2, slice[1].QtyTaken)
	require.True(t, slice[1].TotalCost.Equal(dec("80")))

	// Full quantity reproduces the original provenance.
	slice, err = ReturnSlice(records, 35)
	require.NoError(t, err)
	require.Equal(t, records, slice)
}

func TestReturnSliceBounds(t *testing.T) {
	records := []Allocation{{EntryItemID: 1, QtyTaken: 5, UnitCost: dec("35")}}

	_, err := ReturnSlice(records, 0)
	require.ErrorIs(t, err, ErrInvalidAdjustment)
	_, err = ReturnSlice(records, -1)
	require.ErrorIs(t, err, ErrInvalidAdjustment)
	_, err = ReturnSlice(records, 6)
	require.ErrorIs(t, err, ErrInvalidAdjustment)
}

func TestSkipUnitsSplitsMidRecord(t *testing.T) {
	records := []Allocation{
		{EntryItemID: 1, QtyTaken: 30, UnitCost: dec("35")},
		{EntryItemID: 2, QtyTaken: 5, UnitCost: dec("40")},
	}

	rest := SkipUnits(records, 10)
	require.Len(t, rest, 2)
	require.EqualValues(t, 20, rest[0].QtyTaken)
	require.True(t, rest[0].TotalCost.Equal(dec("700")))
	require.EqualValues(t, 5, rest[1].QtyTaken)

	rest = SkipUnits(records, 30)
	require.Len(t, rest, 1)
	require.EqualValues(t, 2, rest[0].EntryItemID)

	require.Empty(t, SkipUnits(records, 35))
	require.Equal(t, records, SkipUnits(records, 0))
}
