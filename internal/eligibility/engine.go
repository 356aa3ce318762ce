package eligibility

import (
	"fmt"

	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/maps"
)

// Van capacity and multi-drop policy limits. These mirror the fleet's
// standard Luton van and the dispatch team's consolidation rules.
const (
	VanCapacityM3 = 15.0
	VanCapacityKg = 1000.0

	// MaxLoadPercent is the largest share of van capacity a single booking
	// may occupy and still leave room to combine with others.
	MaxLoadPercent = 70.0

	MaxDistanceMiles = 200.0
	MaxDrivingHours  = 8.0
	AvgSpeedMph      = 50.0

	LoadMinsPerM3   = 4.0
	UnloadMinsPerM3 = 3.0

	// FloorMultiplier inflates handling time at an address with floors
	// and no lift.
	FloorMultiplier = 1.4

	// OperatingHourStart/End bound the consolidation day. Bookings
	// scheduled outside never share a route.
	OperatingHourStart = 6
	OperatingHourEnd   = 22

	// savingsRatePercent estimates the discount a booking could earn if
	// consolidated, surfaced to the customer as potential savings.
	savingsRatePercent = 15
)

// Result is the multi-drop verdict for one booking.
type Result struct {
	Eligible              bool
	Reason                string
	LoadPercent           float64
	PotentialSavingsPence int
}

// Score judges a booking's multi-drop suitability. Pure: same booking,
// same verdict. Callers cache the result on the booking row.
func Score(b *models.Booking) Result {
	pickup := b.Pickup()
	dropoff := b.Dropoff()
	if pickup == nil || dropoff == nil {
		return ineligible("booking is missing pickup or dropoff address")
	}

	hour := b.ScheduledAt.Hour()
	if hour < OperatingHourStart || hour >= OperatingHourEnd {
		return ineligible("scheduled outside operating hours")
	}

	var totalVolume, totalWeight float64
	for _, item := range b.Items {
		if item.VolumeM3 > VanCapacityM3 || item.WeightKg > VanCapacityKg {
			return ineligible(fmt.Sprintf("oversize item %q exceeds van capacity", item.Name))
		}
		totalVolume += item.TotalVolumeM3()
		totalWeight += item.TotalWeightKg()
	}

	loadPercent := loadPercentOf(totalVolume, totalWeight)
	if loadPercent > MaxLoadPercent {
		return Result{
			Eligible:    false,
			Reason:      fmt.Sprintf("load %.1f%% exceeds the %.0f%% multi-drop ceiling", loadPercent, MaxLoadPercent),
			LoadPercent: loadPercent,
		}
	}

	miles := maps.KmToMiles(maps.HaversineKm(
		maps.LatLng{Latitude: pickup.Latitude, Longitude: pickup.Longitude},
		maps.LatLng{Latitude: dropoff.Latitude, Longitude: dropoff.Longitude},
	))
	if miles > MaxDistanceMiles {
		return Result{
			Eligible:    false,
			Reason:      fmt.Sprintf("leg of %.0f mi exceeds the %.0f mi multi-drop limit", miles, MaxDistanceMiles),
			LoadPercent: loadPercent,
		}
	}

	hours := miles/AvgSpeedMph + handlingMins(totalVolume, pickup, dropoff)/60
	if hours > MaxDrivingHours {
		return Result{
			Eligible:    false,
			Reason:      fmt.Sprintf("estimated %.1f h exceeds the %.0f h driving limit", hours, MaxDrivingHours),
			LoadPercent: loadPercent,
		}
	}

	return Result{
		Eligible:              true,
		Reason:                "within multi-drop limits",
		LoadPercent:           loadPercent,
		PotentialSavingsPence: b.TotalPence * savingsRatePercent / 100,
	}
}

// Apply caches the verdict on the booking row.
func Apply(b *models.Booking, r Result) {
	eligible := r.Eligible
	reason := r.Reason
	load := r.LoadPercent
	savings := r.PotentialSavingsPence

	b.EligibleForMultiDrop = &eligible
	b.EligibilityReason = &reason
	b.EstimatedLoadPercent = &load
	b.PotentialSavingsPence = &savings
}

func loadPercentOf(volumeM3, weightKg float64) float64 {
	byVolume := volumeM3 / VanCapacityM3 * 100
	byWeight := weightKg / VanCapacityKg * 100
	if byWeight > byVolume {
		return byWeight
	}
	return byVolume
}

func handlingMins(volumeM3 float64, pickup, dropoff *models.BookingAddress) float64 {
	load := LoadMinsPerM3 * volumeM3
	if pickup.FloorNumber > 0 && !pickup.HasLift {
		load *= FloorMultiplier
	}
	unload := UnloadMinsPerM3 * volumeM3
	if dropoff.FloorNumber > 0 && !dropoff.HasLift {
		unload *= FloorMultiplier
	}
	return load + unload
}

func ineligible(reason string) Result {
	return Result{Eligible: false, Reason: reason}
}
