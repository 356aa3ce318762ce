package consolidation

import (
	"math"

	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/maps"
)

const (
	// SingleRouteScore is the fixed score for one-booking routes, which
	// bypass the optimizer entirely.
	SingleRouteScore = 100.0

	avgSpeedKmh     = 80.0
	minsPerStopover = 10.0
)

// Candidate is one proposed multi-drop route before persistence.
type Candidate struct {
	// Bookings in delivery order.
	Bookings          []models.Booking
	TotalKm           float64
	TotalDurationMins int
	// Score is the productive share of the total driving, 0-100. The
	// delivery legs are productive; hops between a dropoff and the next
	// pickup are overhead. A perfectly clustered bucket scores 100.
	Score float64
}

// Feasibility limits taken from the routing config.
type Limits struct {
	MaxDrops      int
	MaxDistanceKm float64
}

// Optimize sequences a bucket of bookings into one candidate route by
// greedy nearest-neighbour over job legs. Returns false when the bucket
// cannot form a feasible route; the caller then falls back to single
// routes.
func Optimize(bookings []models.Booking, limits Limits) (Candidate, bool) {
	if len(bookings) < 2 {
		return Candidate{}, false
	}
	if limits.MaxDrops > 0 && len(bookings) > limits.MaxDrops {
		return Candidate{}, false
	}
	for _, b := range bookings {
		if b.Pickup() == nil || b.Dropoff() == nil {
			return Candidate{}, false
		}
	}

	ordered := sequence(bookings)
	totalKm := chainedKm(ordered)
	if limits.MaxDistanceKm > 0 && totalKm > limits.MaxDistanceKm {
		return Candidate{}, false
	}

	naiveKm := 0.0
	for _, b := range bookings {
		naiveKm += legKm(b)
	}

	duration := int(math.Ceil(totalKm/avgSpeedKmh*60)) + len(ordered)*int(minsPerStopover)

	score := SingleRouteScore
	if totalKm > 0 {
		score = naiveKm / totalKm * 100
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Candidate{
		Bookings:          ordered,
		TotalKm:           totalKm,
		TotalDurationMins: duration,
		Score:             score,
	}, true
}

// sequence orders jobs nearest-neighbour: after finishing one dropoff,
// the van heads to the closest remaining pickup. The first job is the
// earliest scheduled booking, ties broken by reference.
func sequence(bookings []models.Booking) []models.Booking {
	remaining := make([]models.Booking, len(bookings))
	copy(remaining, bookings)

	first := 0
	for i := 1; i < len(remaining); i++ {
		if remaining[i].ScheduledAt.Before(remaining[first].ScheduledAt) ||
			(remaining[i].ScheduledAt.Equal(remaining[first].ScheduledAt) &&
				remaining[i].Reference < remaining[first].Reference) {
			first = i
		}
	}

	ordered := []models.Booking{remaining[first]}
	remaining = append(remaining[:first], remaining[first+1:]...)

	for len(remaining) > 0 {
		last := ordered[len(ordered)-1].Dropoff()
		best := 0
		bestKm := math.MaxFloat64
		for i, b := range remaining {
			km := maps.HaversineKm(
				maps.LatLng{Latitude: last.Latitude, Longitude: last.Longitude},
				maps.LatLng{Latitude: b.Pickup().Latitude, Longitude: b.Pickup().Longitude},
			)
			if km < bestKm || (km == bestKm && b.Reference < remaining[best].Reference) {
				best = i
				bestKm = km
			}
		}
		ordered = append(ordered, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

func chainedKm(ordered []models.Booking) float64 {
	total := 0.0
	for i, b := range ordered {
		if i > 0 {
			prev := ordered[i-1].Dropoff()
			total += maps.HaversineKm(
				maps.LatLng{Latitude: prev.Latitude, Longitude: prev.Longitude},
				maps.LatLng{Latitude: b.Pickup().Latitude, Longitude: b.Pickup().Longitude},
			)
		}
		total += legKm(b)
	}
	return total
}

func legKm(b models.Booking) float64 {
	pickup, dropoff := b.Pickup(), b.Dropoff()
	return maps.HaversineKm(
		maps.LatLng{Latitude: pickup.Latitude, Longitude: pickup.Longitude},
		maps.LatLng{Latitude: dropoff.Latitude, Longitude: dropoff.Longitude},
	)
}
