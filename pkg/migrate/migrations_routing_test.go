package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestAssignmentsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_assignments.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS assignments",
		"FOREIGN KEY (route_id) REFERENCES routes(id) ON DELETE CASCADE",
		"FOREIGN KEY (driver_id) REFERENCES drivers(id) ON DELETE CASCADE",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_assignments_active_route",
		"WHERE status IN ('invited', 'claimed')",
		"DROP TABLE IF EXISTS assignments",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestBookingsMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "*_create_bookings.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS bookings",
		"CREATE TABLE IF NOT EXISTS booking_addresses",
		"CREATE TABLE IF NOT EXISTS booking_items",
		"FOREIGN KEY (route_id) REFERENCES routes(id) ON DELETE SET NULL",
		"CHECK (total_pence >= 0)",
		"CREATE INDEX IF NOT EXISTS ix_bookings_status_scheduled",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestRoutingConfigMigrationSeedsSingleton(t *testing.T) {
	content := readMigration(t, "*_create_routing_configs.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS routing_configs",
		"CHECK (id = 1)",
		"mode routing_mode NOT NULL DEFAULT 'manual'",
		"auto_routing_enabled BOOLEAN NOT NULL DEFAULT FALSE",
		"INSERT INTO routing_configs (id) VALUES (1)",
		"ON CONFLICT (id) DO NOTHING",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationContainsDedupeIndex(t *testing.T) {
	content := readMigration(t, "*_create_outbox.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate",
		"WHERE published_at IS NULL",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
