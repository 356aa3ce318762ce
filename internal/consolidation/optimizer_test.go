package consolidation

import (
	"testing"
	"time"

	"github.com/speedy-van/dispatch/pkg/db/models"
)

func optimizerBooking(ref string, hour int, pickupLat, pickupLng, dropLat, dropLng float64) models.Booking {
	return models.Booking{
		Reference:   ref,
		ScheduledAt: time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC),
		Addresses: []models.BookingAddress{
			{Kind: models.AddressKindPickup, Postcode: "G2 1AB", Latitude: pickupLat, Longitude: pickupLng},
			{Kind: models.AddressKindDropoff, Postcode: "G4 9XZ", Latitude: dropLat, Longitude: dropLng},
		},
	}
}

func TestOptimizeSequencesNearestNeighbour(t *testing.T) {
	// Three jobs roughly north to south through Glasgow. The earliest
	// booking anchors the route; the far job should come last.
	near := optimizerBooking("SV-100", 8, 55.8700, -4.2500, 55.8650, -4.2400)
	mid := optimizerBooking("SV-101", 9, 55.8640, -4.2390, 55.8600, -4.2300)
	far := optimizerBooking("SV-102", 9, 55.8200, -4.2000, 55.8100, -4.1900)

	candidate, ok := Optimize([]models.Booking{far, mid, near}, Limits{MaxDrops: 10, MaxDistanceKm: 50})
	if !ok {
		t.Fatal("expected feasible candidate")
	}
	if len(candidate.Bookings) != 3 {
		t.Fatalf("stops = %d, want 3", len(candidate.Bookings))
	}
	order := []string{candidate.Bookings[0].Reference, candidate.Bookings[1].Reference, candidate.Bookings[2].Reference}
	want := []string{"SV-100", "SV-101", "SV-102"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if candidate.TotalKm <= 0 {
		t.Error("expected positive distance")
	}
	if candidate.TotalDurationMins <= 0 {
		t.Error("expected positive duration")
	}
	if candidate.Score <= 0 || candidate.Score > 100 {
		t.Errorf("score = %v, want within (0, 100]", candidate.Score)
	}
}

func TestOptimizeIsDeterministic(t *testing.T) {
	a := optimizerBooking("SV-110", 8, 55.870, -4.250, 55.865, -4.240)
	b := optimizerBooking("SV-111", 9, 55.864, -4.239, 55.860, -4.230)

	first, ok1 := Optimize([]models.Booking{a, b}, Limits{MaxDrops: 10, MaxDistanceKm: 50})
	second, ok2 := Optimize([]models.Booking{b, a}, Limits{MaxDrops: 10, MaxDistanceKm: 50})
	if !ok1 || !ok2 {
		t.Fatal("expected feasible candidates")
	}
	if first.Bookings[0].Reference != second.Bookings[0].Reference {
		t.Errorf("input order changed the result: %s vs %s",
			first.Bookings[0].Reference, second.Bookings[0].Reference)
	}
	if first.TotalKm != second.TotalKm {
		t.Errorf("distances differ: %v vs %v", first.TotalKm, second.TotalKm)
	}
}

func TestOptimizeRejectsSingleBooking(t *testing.T) {
	only := optimizerBooking("SV-120", 8, 55.870, -4.250, 55.865, -4.240)
	if _, ok := Optimize([]models.Booking{only}, Limits{MaxDrops: 10, MaxDistanceKm: 50}); ok {
		t.Fatal("one booking must not form a multi-drop route")
	}
}

func TestOptimizeRejectsTooManyDrops(t *testing.T) {
	bookings := []models.Booking{
		optimizerBooking("SV-130", 8, 55.870, -4.250, 55.865, -4.240),
		optimizerBooking("SV-131", 8, 55.869, -4.249, 55.864, -4.239),
		optimizerBooking("SV-132", 8, 55.868, -4.248, 55.863, -4.238),
	}
	if _, ok := Optimize(bookings, Limits{MaxDrops: 2, MaxDistanceKm: 50}); ok {
		t.Fatal("expected drop-count limit to reject the bucket")
	}
}

func TestOptimizeRejectsOverDistance(t *testing.T) {
	glasgow := optimizerBooking("SV-140", 8, 55.8642, -4.2518, 55.8600, -4.2400)
	london := optimizerBooking("SV-141", 9, 51.5074, -0.1278, 51.5000, -0.1200)

	if _, ok := Optimize([]models.Booking{glasgow, london}, Limits{MaxDrops: 10, MaxDistanceKm: 50}); ok {
		t.Fatal("expected distance limit to reject the bucket")
	}
}

func TestOptimizeRejectsMissingAddresses(t *testing.T) {
	complete := optimizerBooking("SV-150", 8, 55.870, -4.250, 55.865, -4.240)
	incomplete := models.Booking{
		Reference:   "SV-151",
		ScheduledAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
	if _, ok := Optimize([]models.Booking{complete, incomplete}, Limits{MaxDrops: 10, MaxDistanceKm: 50}); ok {
		t.Fatal("expected missing addresses to reject the bucket")
	}
}
