// Package ledger maintains the append-only count-change log of every gift.
// Entries are immutable once written; the only mutation path is append.
package ledger

import (
	"log/slog"
	"time"

	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/errors"
	"github.com/gifttrack/gifttrack-go/internal/logging"
)

// HoursPerDay is the number of hour-of-day buckets returned by HourBuckets.
const HoursPerDay = 24

var logger *slog.Logger

func init() {
	logger = logging.ForService("ledger")
	if logger == nil {
		logger = slog.Default().With("service", "ledger")
	}
}

// Service appends to and reads from the gift history ledger.
type Service struct {
	ds datastore.Interface
}

// NewService creates a ledger service backed by the given datastore.
func NewService(ds datastore.Interface) *Service {
	return &Service{ds: ds}
}

// Record appends a ledger entry when the remaining count changed since the
// last entry of the gift. The first observation of a gift is recorded with a
// zero delta. Delta is signed as previous minus current, so purchases are
// positive. Returns the appended entry, or nil when nothing changed.
func (s *Service) Record(giftID string, remaining, total int, ts time.Time) (*datastore.GiftHistory, error) {
	last, err := s.ds.LatestGiftHistory(giftID)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("gift_id", giftID).
			Component("ledger").
			Build()
	}

	delta := 0
	if last != nil {
		if last.RemainingCount == remaining {
			return nil, nil
		}
		delta = last.RemainingCount - remaining
	}

	entry := &datastore.GiftHistory{
		GiftID:         giftID,
		RemainingCount: remaining,
		TotalCount:     total,
		Delta:          delta,
		Timestamp:      ts.UTC(),
	}
	if err := s.ds.AppendGiftHistory(entry); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("gift_id", giftID).
			Component("ledger").
			Build()
	}

	logger.Debug("Ledger entry appended",
		"gift_id", giftID,
		"remaining", remaining,
		"delta", delta)

	return entry, nil
}

// Append writes a ledger entry with an explicit delta, bypassing change
// detection. Used for the drop-to-zero entry when a listing gift vanishes.
func (s *Service) Append(giftID string, remaining, total, delta int, ts time.Time) (*datastore.GiftHistory, error) {
	entry := &datastore.GiftHistory{
		GiftID:         giftID,
		RemainingCount: remaining,
		TotalCount:     total,
		Delta:          delta,
		Timestamp:      ts.UTC(),
	}
	if err := s.ds.AppendGiftHistory(entry); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("gift_id", giftID).
			Component("ledger").
			Build()
	}
	return entry, nil
}

// Window returns the ledger entries of a gift inside [since, until], ordered
// by timestamp ascending.
func (s *Service) Window(giftID string, since, until time.Time) ([]datastore.GiftHistory, error) {
	return s.ds.GetGiftHistoryWindow(giftID, since.UTC(), until.UTC())
}

// HourBuckets sums the positive deltas (purchases) of a window into 24
// hour-of-day buckets. Bucketing is done on the UTC hour; any display
// offset is applied at the presentation boundary, never here.
func (s *Service) HourBuckets(giftID string, since, until time.Time) ([HoursPerDay]int, error) {
	var buckets [HoursPerDay]int

	entries, err := s.Window(giftID, since, until)
	if err != nil {
		return buckets, err
	}

	return BucketByHour(entries), nil
}

// BucketByHour is the pure bucketing step of HourBuckets, exposed for the
// analytics engine which already holds a window in memory.
func BucketByHour(entries []datastore.GiftHistory) [HoursPerDay]int {
	var buckets [HoursPerDay]int
	for i := range entries {
		if entries[i].Delta > 0 {
			buckets[entries[i].Timestamp.UTC().Hour()] += entries[i].Delta
		}
	}
	return buckets
}

// SumDeltas returns the signed sum of deltas of a ledger slice. For any
// window it equals remaining at the start minus remaining at the end.
func SumDeltas(entries []datastore.GiftHistory) int {
	sum := 0
	for i := range entries {
		sum += entries[i].Delta
	}
	return sum
}
