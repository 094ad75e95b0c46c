package owners

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/telegram"
)

func unit(num int, owner *telegram.Owner) telegram.UnitRecord {
	return telegram.UnitRecord{
		Num:      num,
		Model:    "Common",
		Pattern:  "Stars",
		Backdrop: "Midnight",
		Owner:    owner,
	}
}

func TestMergeGroupsUnitsOfSameOwner(t *testing.T) {
	t.Parallel()

	alice := &telegram.Owner{ID: 1, DisplayName: "A"}
	records := []telegram.UnitRecord{
		unit(1, alice),
		unit(2, alice),
		unit(3, nil),
	}

	merged := Merge(records)
	require.Len(t, merged, 2)

	assert.Equal(t, "A", merged[0].DisplayName)
	assert.Equal(t, 2, merged[0].GiftsCount)
	assert.Equal(t, []int{1, 2}, merged[0].GiftNumbers)
	assert.False(t, merged[0].Hidden)

	assert.Equal(t, UnknownOwner, merged[1].DisplayName)
	assert.Equal(t, 1, merged[1].GiftsCount)
	assert.Equal(t, []int{3}, merged[1].GiftNumbers)
	assert.True(t, merged[1].Hidden)
}

func TestMergeIsDeterministic(t *testing.T) {
	t.Parallel()

	records := []telegram.UnitRecord{
		unit(5, &telegram.Owner{ID: 2, DisplayName: "B"}),
		unit(1, &telegram.Owner{ID: 1, DisplayName: "A"}),
		unit(3, &telegram.Owner{ID: 2, DisplayName: "B"}),
		unit(2, nil),
	}

	first := Merge(records)
	second := Merge(records)
	assert.Equal(t, first, second)

	// Gift numbers are sorted regardless of fetch order
	assert.Equal(t, []int{3, 5}, first[0].GiftNumbers)
}

func TestMergeUsernameRetention(t *testing.T) {
	t.Parallel()

	// Same numeric id seen with and without a username: the username sticks.
	records := []telegram.UnitRecord{
		unit(1, &telegram.Owner{ID: 9, DisplayName: "Carol"}),
		unit(2, &telegram.Owner{ID: 9, DisplayName: "Carol", Username: "carol"}),
		unit(3, &telegram.Owner{ID: 9, DisplayName: "Carol"}),
	}

	merged := Merge(records)
	require.Len(t, merged, 1)
	assert.Equal(t, "carol", merged[0].Username)
	assert.Equal(t, 3, merged[0].GiftsCount)
}

func TestMergeOwnerNameOnlyWhenNoUsername(t *testing.T) {
	t.Parallel()

	records := []telegram.UnitRecord{
		{Num: 1, Model: "Common", OwnerName: "Plain Dave"},
		{Num: 2, Model: "Common", OwnerName: "Plain Dave"},
	}

	merged := Merge(records)
	require.Len(t, merged, 1)
	assert.Equal(t, "Plain Dave", merged[0].DisplayName)
	assert.Equal(t, "Plain Dave", merged[0].OwnerName)
	assert.Empty(t, merged[0].Username)
	assert.False(t, merged[0].Hidden, "plain-text name is still a resolvable identity")
}

func TestMergeHiddenOnlyWhenAllUnitsAnonymous(t *testing.T) {
	t.Parallel()

	records := []telegram.UnitRecord{
		unit(1, nil),
		unit(2, nil),
	}

	merged := Merge(records)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Hidden)
	assert.Equal(t, 2, merged[0].GiftsCount)
}

func TestMergeEmptyOwnerObjectStaysHidden(t *testing.T) {
	t.Parallel()

	// An owner object with no id, username or name carries no identity, so
	// the record folds into the anonymous group and stays hidden.
	records := []telegram.UnitRecord{
		unit(1, &telegram.Owner{}),
		unit(2, nil),
	}

	merged := Merge(records)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Hidden)
	assert.Equal(t, 2, merged[0].GiftsCount)
	assert.Equal(t, UnknownOwner, merged[0].DisplayName)
}

func TestMergeRoundTripIsStable(t *testing.T) {
	t.Parallel()

	records := []telegram.UnitRecord{
		unit(1, &telegram.Owner{ID: 1, DisplayName: "A", Username: "alice"}),
		unit(4, &telegram.Owner{ID: 1, DisplayName: "A"}),
		unit(2, &telegram.Owner{ID: 2, DisplayName: "B"}),
		{Num: 3, Model: "Common", OwnerName: "Plain Dave"},
		{Num: 5, Model: "Common", Address: "EQabc"},
		unit(6, nil),
	}

	merged := Merge(records)

	// Flatten the merged rows back to one record per unit and merge again:
	// totals, numbers and visibility must come out identical, with nothing
	// counted twice.
	var flattened []telegram.UnitRecord
	for i := range merged {
		owner := &merged[i]
		for _, num := range owner.GiftNumbers {
			record := telegram.UnitRecord{
				Num:       num,
				Model:     "Common",
				OwnerName: owner.OwnerName,
				Address:   owner.Address,
			}
			if owner.OwnerID != 0 || owner.Username != "" {
				record.Owner = &telegram.Owner{
					ID:          owner.OwnerID,
					Username:    owner.Username,
					DisplayName: owner.DisplayName,
				}
			}
			flattened = append(flattened, record)
		}
	}

	again := Merge(flattened)
	require.Len(t, again, len(merged))
	for i := range merged {
		assert.Equal(t, merged[i].DisplayName, again[i].DisplayName)
		assert.Equal(t, merged[i].GiftsCount, again[i].GiftsCount)
		assert.Equal(t, merged[i].GiftNumbers, again[i].GiftNumbers)
		assert.Equal(t, merged[i].Hidden, again[i].Hidden)
	}
}

func TestMergeAddressIdentity(t *testing.T) {
	t.Parallel()

	records := []telegram.UnitRecord{
		{Num: 1, Model: "Common", Address: "EQabc"},
		{Num: 2, Model: "Common", Address: "EQabc"},
		{Num: 3, Model: "Common", Address: "EQxyz"},
	}

	merged := Merge(records)
	require.Len(t, merged, 2)
	assert.Equal(t, 2, merged[0].GiftsCount)
	assert.Equal(t, "EQabc", merged[0].Address)
	assert.False(t, merged[0].Hidden)
}

func TestMergeFillsUnknownUnitDetails(t *testing.T) {
	t.Parallel()

	records := []telegram.UnitRecord{
		{Num: 1, Model: "Common"},
	}

	merged := Merge(records)
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Units, 1)
	assert.Equal(t, UnknownOwner, merged[0].Units[0].Pattern)
	assert.Equal(t, UnknownOwner, merged[0].Units[0].Backdrop)
}

func TestGroupModels(t *testing.T) {
	t.Parallel()

	alice := &telegram.Owner{ID: 1, DisplayName: "A"}
	records := []telegram.UnitRecord{
		{Num: 1, Model: "Rare", Owner: alice},
		{Num: 2, Model: "Common", Owner: alice},
		{Num: 3, Model: "Common", Owner: &telegram.Owner{ID: 2, DisplayName: "B"}},
		{Num: 4, Model: "Common", ModelURL: "https://cdn/common.png"},
	}

	models := GroupModels(records)
	require.Len(t, models, 2)

	// Common has 3 units, so it sorts first
	assert.Equal(t, "Common", models[0].Name)
	assert.Equal(t, 3, models[0].OwnersCount)
	assert.Equal(t, "https://cdn/common.png", models[0].ImageURL)

	assert.Equal(t, "Rare", models[1].Name)
	assert.Equal(t, 1, models[1].OwnersCount)
}

func TestCombineAcrossModels(t *testing.T) {
	t.Parallel()

	alice := &telegram.Owner{ID: 1, DisplayName: "A"}
	common := Merge([]telegram.UnitRecord{
		{Num: 1, Model: "Common", Owner: alice},
		{Num: 2, Model: "Common", Owner: alice},
	})
	rare := Merge([]telegram.UnitRecord{
		{Num: 3, Model: "Rare", Owner: alice},
		{Num: 4, Model: "Rare", Owner: &telegram.Owner{ID: 2, DisplayName: "B"}},
	})

	combined := Combine(common, rare)
	require.Len(t, combined, 2)

	assert.Equal(t, "A", combined[0].DisplayName)
	assert.Equal(t, 3, combined[0].GiftsCount)
	assert.Equal(t, []int{1, 2, 3}, combined[0].GiftNumbers)

	assert.Equal(t, "B", combined[1].DisplayName)
	assert.Equal(t, 1, combined[1].GiftsCount)
}

func TestLeaderboardAcrossGifts(t *testing.T) {
	t.Parallel()

	alice := &telegram.Owner{ID: 1, DisplayName: "A"}
	bob := &telegram.Owner{ID: 2, DisplayName: "B"}

	caps := datastore.Gift{
		ID: "DurovsCap",
		Models: []datastore.GiftModel{{
			Name: "Common",
			Owners: Merge([]telegram.UnitRecord{
				unit(1, alice), unit(2, alice), unit(3, bob), unit(4, nil),
			}),
		}},
	}
	bags := datastore.Gift{
		ID: "LootBag",
		Models: []datastore.GiftModel{{
			Name: "Common",
			Owners: Merge([]telegram.UnitRecord{
				unit(1, bob), unit(2, bob), unit(3, bob),
			}),
		}},
	}

	holders := Leaderboard([]datastore.Gift{caps, bags}, 0)
	require.Len(t, holders, 2, "the anonymous group is excluded")

	assert.Equal(t, "B", holders[0].DisplayName)
	assert.Equal(t, 4, holders[0].TotalGifts)
	assert.Equal(t, 2, holders[0].GiftsHeld)

	assert.Equal(t, "A", holders[1].DisplayName)
	assert.Equal(t, 2, holders[1].TotalGifts)
	assert.Equal(t, 1, holders[1].GiftsHeld)

	top1 := Leaderboard([]datastore.Gift{caps, bags}, 1)
	require.Len(t, top1, 1)
	assert.Equal(t, "B", top1[0].DisplayName)
}

func TestCombineDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	alice := &telegram.Owner{ID: 1, DisplayName: "A"}
	group := Merge([]telegram.UnitRecord{unit(1, alice)})
	before := group[0].GiftsCount

	_ = Combine(group, group)
	assert.Equal(t, before, group[0].GiftsCount)
}
