package metrics

import "github.com/prometheus/client_golang/prometheus"

// RoutingMetrics counts consolidation and offer lifecycle outcomes.
type RoutingMetrics struct {
	routesCreated      *prometheus.CounterVec
	bookingsProcessed  prometheus.Counter
	offersExpired      prometheus.Counter
	reassignments      prometheus.Counter
	runErrors          prometheus.Counter
	unassignedLeftover prometheus.Gauge
}

// NewRoutingMetrics registers the routing metrics on the provided registerer.
func NewRoutingMetrics(reg prometheus.Registerer) *RoutingMetrics {
	if reg == nil {
		return &RoutingMetrics{}
	}
	routesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_routes_created_total",
		Help: "Routes created, labelled by order type.",
	}, []string{"order_type"})
	bookingsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_bookings_processed_total",
		Help: "Bookings examined by consolidation runs.",
	})
	offersExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_offers_expired_total",
		Help: "Driver offers expired by the sweep.",
	})
	reassignments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_reassignments_total",
		Help: "Offers cascaded to a new driver after decline/expiry.",
	})
	runErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_run_errors_total",
		Help: "Per-bucket errors recorded during consolidation runs.",
	})
	unassignedLeftover := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "routing_unassigned_leftover",
		Help: "Eligible bookings left without a route after the last run.",
	})
	reg.MustRegister(routesCreated, bookingsProcessed, offersExpired, reassignments, runErrors, unassignedLeftover)
	return &RoutingMetrics{
		routesCreated:      routesCreated,
		bookingsProcessed:  bookingsProcessed,
		offersExpired:      offersExpired,
		reassignments:      reassignments,
		runErrors:          runErrors,
		unassignedLeftover: unassignedLeftover,
	}
}

// IncRoutesCreated increments the created counter for the given order type.
func (m *RoutingMetrics) IncRoutesCreated(orderType string) {
	if m == nil || m.routesCreated == nil {
		return
	}
	m.routesCreated.WithLabelValues(normalizeLabel(orderType)).Inc()
}

// AddBookingsProcessed adds to the processed counter.
func (m *RoutingMetrics) AddBookingsProcessed(n int) {
	if m == nil || m.bookingsProcessed == nil || n <= 0 {
		return
	}
	m.bookingsProcessed.Add(float64(n))
}

// AddOffersExpired adds to the expired counter.
func (m *RoutingMetrics) AddOffersExpired(n int) {
	if m == nil || m.offersExpired == nil || n <= 0 {
		return
	}
	m.offersExpired.Add(float64(n))
}

// IncReassignments increments the cascade counter.
func (m *RoutingMetrics) IncReassignments() {
	if m == nil || m.reassignments == nil {
		return
	}
	m.reassignments.Inc()
}

// AddRunErrors adds to the run error counter.
func (m *RoutingMetrics) AddRunErrors(n int) {
	if m == nil || m.runErrors == nil || n <= 0 {
		return
	}
	m.runErrors.Add(float64(n))
}

// SetUnassignedLeftover records the leftover gauge after a run.
func (m *RoutingMetrics) SetUnassignedLeftover(n int) {
	if m == nil || m.unassignedLeftover == nil {
		return
	}
	m.unassignedLeftover.Set(float64(n))
}
