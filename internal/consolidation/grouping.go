package consolidation

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/speedy-van/dispatch/pkg/db/models"
)

// Time bands carve the operating day into four-hour windows. Bookings
// only consolidate inside one band.
const (
	BandMorning   = "morning"   // 06:00-10:00
	BandMidday    = "midday"    // 10:00-14:00
	BandAfternoon = "afternoon" // 14:00-18:00
	BandEvening   = "evening"   // 18:00-22:00
)

// TimeBand returns the band for a scheduled time, or "" outside the
// operating day.
func TimeBand(t time.Time) string {
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 10:
		return BandMorning
	case hour >= 10 && hour < 14:
		return BandMidday
	case hour >= 14 && hour < 18:
		return BandAfternoon
	case hour >= 18 && hour < 22:
		return BandEvening
	default:
		return ""
	}
}

// PostcodeArea returns the leading letters of a UK postcode ("G2 1AB"
// -> "G", "EH12 9DN" -> "EH"). Empty input yields "".
func PostcodeArea(postcode string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(postcode))
	var sb strings.Builder
	for _, r := range trimmed {
		if !unicode.IsLetter(r) {
			break
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// BucketKey identifies one consolidation bucket.
type BucketKey struct {
	Day          string
	Band         string
	PostcodeArea string
}

// GroupBookings buckets bookings by day, time band and pickup postcode
// area. Bookings without a band or pickup address are returned as
// ungroupable. Bucket contents and the key order are deterministic.
func GroupBookings(bookings []models.Booking) (map[BucketKey][]models.Booking, []models.Booking) {
	buckets := map[BucketKey][]models.Booking{}
	var ungroupable []models.Booking

	for _, b := range bookings {
		band := TimeBand(b.ScheduledAt)
		pickup := b.Pickup()
		if band == "" || pickup == nil || PostcodeArea(pickup.Postcode) == "" {
			ungroupable = append(ungroupable, b)
			continue
		}
		key := BucketKey{
			Day:          b.ScheduledAt.Format("2006-01-02"),
			Band:         band,
			PostcodeArea: PostcodeArea(pickup.Postcode),
		}
		buckets[key] = append(buckets[key], b)
	}

	for key := range buckets {
		group := buckets[key]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].ScheduledAt.Equal(group[j].ScheduledAt) {
				return group[i].ScheduledAt.Before(group[j].ScheduledAt)
			}
			return group[i].Reference < group[j].Reference
		})
		buckets[key] = group
	}
	return buckets, ungroupable
}

// SortedKeys returns bucket keys in a stable order for iteration.
func SortedKeys(buckets map[BucketKey][]models.Booking) []BucketKey {
	keys := make([]BucketKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Day != keys[j].Day {
			return keys[i].Day < keys[j].Day
		}
		if keys[i].Band != keys[j].Band {
			return bandRank(keys[i].Band) < bandRank(keys[j].Band)
		}
		return keys[i].PostcodeArea < keys[j].PostcodeArea
	})
	return keys
}

func bandRank(band string) int {
	switch band {
	case BandMorning:
		return 0
	case BandMidday:
		return 1
	case BandAfternoon:
		return 2
	case BandEvening:
		return 3
	default:
		return 4
	}
}
