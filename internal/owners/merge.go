// Package owners aggregates per-unit ownership records into per-owner rows.
// All functions are pure: same input, same output, no I/O.
package owners

import (
	"fmt"
	"sort"

	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/telegram"
)

// UnknownOwner is the display name used when a unit's holder has no
// resolvable public identity.
const UnknownOwner = "Unknown"

// groupKey derives the identity key a record is merged under. Stronger
// identity signals win: upstream numeric id, then username, then plain-text
// owner name, then blockchain address. Records with no signal at all share
// one anonymous group.
func groupKey(record *telegram.UnitRecord) string {
	if record.Owner != nil && record.Owner.ID != 0 {
		return fmt.Sprintf("id:%d", record.Owner.ID)
	}
	if record.Owner != nil && record.Owner.Username != "" {
		return "user:" + record.Owner.Username
	}
	if record.OwnerName != "" {
		return "name:" + record.OwnerName
	}
	if record.Address != "" {
		return "addr:" + record.Address
	}
	return "anonymous"
}

func displayName(record *telegram.UnitRecord) string {
	if record.Owner != nil && record.Owner.DisplayName != "" {
		return record.Owner.DisplayName
	}
	if record.OwnerName != "" {
		return record.OwnerName
	}
	return UnknownOwner
}

// Merge aggregates the unit records of one model into per-owner rows.
// An owner is hidden only when every contributing unit lacked a resolvable
// identity. Output order is deterministic: gift count descending, then
// display name, so repeated merges of the same input are identical.
func Merge(records []telegram.UnitRecord) []datastore.GiftOwner {
	merged := make(map[string]*datastore.GiftOwner, len(records))
	order := make([]string, 0, len(records))

	for i := range records {
		record := &records[i]
		key := groupKey(record)

		owner, ok := merged[key]
		if !ok {
			owner = &datastore.GiftOwner{
				DisplayName: displayName(record),
				Hidden:      true,
			}
			merged[key] = owner
			order = append(order, key)
		}

		owner.GiftsCount++
		owner.GiftNumbers = append(owner.GiftNumbers, record.Num)
		owner.Units = append(owner.Units, unitDetail(record))

		if record.Owner != nil {
			if record.Owner.ID != 0 {
				owner.Hidden = false
				owner.OwnerID = record.Owner.ID
			}
			if record.Owner.Username != "" {
				owner.Hidden = false
				owner.Username = record.Owner.Username
			}
			if record.Owner.DisplayName != "" {
				owner.DisplayName = record.Owner.DisplayName
			}
		}
		if record.OwnerName != "" {
			owner.Hidden = false
			if owner.Username == "" {
				owner.OwnerName = record.OwnerName
			}
		}
		if record.Address != "" {
			owner.Hidden = false
			owner.Address = record.Address
		}
	}

	result := make([]datastore.GiftOwner, 0, len(order))
	for _, key := range order {
		owner := merged[key]
		sort.Ints(owner.GiftNumbers)
		sort.Slice(owner.Units, func(i, j int) bool {
			return owner.Units[i].Number < owner.Units[j].Number
		})
		result = append(result, *owner)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].GiftsCount != result[j].GiftsCount {
			return result[i].GiftsCount > result[j].GiftsCount
		}
		return result[i].DisplayName < result[j].DisplayName
	})

	return result
}

func unitDetail(record *telegram.UnitRecord) datastore.UnitDetail {
	detail := datastore.UnitDetail{
		Number:   record.Num,
		Pattern:  record.Pattern,
		Backdrop: record.Backdrop,
	}
	if detail.Pattern == "" {
		detail.Pattern = UnknownOwner
	}
	if detail.Backdrop == "" {
		detail.Backdrop = UnknownOwner
	}
	return detail
}

// GroupModels groups unit records by model name and merges the owners of
// each model. Models are ordered by total gift count descending, then name.
func GroupModels(records []telegram.UnitRecord) []datastore.GiftModel {
	byModel := make(map[string][]telegram.UnitRecord)
	order := make([]string, 0)

	for _, record := range records {
		name := record.Model
		if _, ok := byModel[name]; !ok {
			order = append(order, name)
		}
		byModel[name] = append(byModel[name], record)
	}

	models := make([]datastore.GiftModel, 0, len(order))
	for _, name := range order {
		group := byModel[name]
		mergedOwners := Merge(group)
		imageURL := ""
		for i := range group {
			if group[i].ModelURL != "" {
				imageURL = group[i].ModelURL
				break
			}
		}
		models = append(models, datastore.GiftModel{
			Name:        name,
			OwnersCount: len(mergedOwners),
			ImageURL:    imageURL,
			Owners:      mergedOwners,
		})
	}

	sort.SliceStable(models, func(i, j int) bool {
		ti, tj := totalGifts(&models[i]), totalGifts(&models[j])
		if ti != tj {
			return ti > tj
		}
		return models[i].Name < models[j].Name
	})

	return models
}

func totalGifts(model *datastore.GiftModel) int {
	count := 0
	for i := range model.Owners {
		count += model.Owners[i].GiftsCount
	}
	return count
}

// Combine merges already-aggregated owner rows across models into one
// per-owner view of a whole gift, using the same identity priority as Merge.
func Combine(groups ...[]datastore.GiftOwner) []datastore.GiftOwner {
	merged := make(map[string]*datastore.GiftOwner)
	order := make([]string, 0)

	for _, group := range groups {
		for i := range group {
			owner := &group[i]
			key := ownerKey(owner)

			existing, ok := merged[key]
			if !ok {
				clone := *owner
				clone.GiftNumbers = append([]int(nil), owner.GiftNumbers...)
				clone.Units = append([]datastore.UnitDetail(nil), owner.Units...)
				merged[key] = &clone
				order = append(order, key)
				continue
			}

			existing.GiftsCount += owner.GiftsCount
			existing.GiftNumbers = append(existing.GiftNumbers, owner.GiftNumbers...)
			existing.Units = append(existing.Units, owner.Units...)
			if owner.Username != "" {
				existing.Username = owner.Username
			}
			if !owner.Hidden {
				existing.Hidden = false
			}
		}
	}

	result := make([]datastore.GiftOwner, 0, len(order))
	for _, key := range order {
		owner := merged[key]
		sort.Ints(owner.GiftNumbers)
		result = append(result, *owner)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].GiftsCount != result[j].GiftsCount {
			return result[i].GiftsCount > result[j].GiftsCount
		}
		return result[i].DisplayName < result[j].DisplayName
	})

	return result
}

// Holder is one entry of the cross-gift ownership leaderboard.
type Holder struct {
	DisplayName string `json:"display_name"`
	Username    string `json:"username,omitempty"`
	TotalGifts  int    `json:"total_gifts"`
	GiftsHeld   int    `json:"gifts_held"` // distinct gift types held
}

// Leaderboard aggregates owners across whole gifts into the top holders by
// total unit count. The anonymous group is excluded; it is not one person.
func Leaderboard(gifts []datastore.Gift, limit int) []Holder {
	type entry struct {
		holder Holder
		seen   map[string]bool
	}
	merged := make(map[string]*entry)
	order := make([]string, 0)

	for g := range gifts {
		gift := &gifts[g]
		for m := range gift.Models {
			model := &gift.Models[m]
			for o := range model.Owners {
				owner := &model.Owners[o]
				key := ownerKey(owner)
				if key == "anonymous" {
					continue
				}

				existing, ok := merged[key]
				if !ok {
					existing = &entry{
						holder: Holder{
							DisplayName: owner.DisplayName,
							Username:    owner.Username,
						},
						seen: make(map[string]bool),
					}
					merged[key] = existing
					order = append(order, key)
				}

				existing.holder.TotalGifts += owner.GiftsCount
				if !existing.seen[gift.ID] {
					existing.seen[gift.ID] = true
					existing.holder.GiftsHeld++
				}
				if existing.holder.Username == "" && owner.Username != "" {
					existing.holder.Username = owner.Username
				}
			}
		}
	}

	result := make([]Holder, 0, len(order))
	for _, key := range order {
		result = append(result, merged[key].holder)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].TotalGifts != result[j].TotalGifts {
			return result[i].TotalGifts > result[j].TotalGifts
		}
		return result[i].DisplayName < result[j].DisplayName
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result
}

func ownerKey(owner *datastore.GiftOwner) string {
	if owner.OwnerID != 0 {
		return fmt.Sprintf("id:%d", owner.OwnerID)
	}
	if owner.Username != "" {
		return "user:" + owner.Username
	}
	if owner.OwnerName != "" {
		return "name:" + owner.OwnerName
	}
	if owner.Address != "" {
		return "addr:" + owner.Address
	}
	return "anonymous"
}
