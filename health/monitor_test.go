package health

import (
	"sync"
	"testing"
	"time"
)

func TestNewMonitor(t *testing.T) {
	monitor := NewMonitor()

	if monitor == nil {
		t.Fatal("NewMonitor() returned nil")
	}

	if n := len(monitor.AggregateHealth("aethalometer").SubStatuses); n != 0 {
		t.Errorf("New monitor should have 0 components, got %d", n)
	}
}

func TestMonitor_Update(t *testing.T) {
	monitor := NewMonitor()

	monitor.Update("collector", Status{
		Component: "wrong-name",
		Status:    StatusHealthy,
		Message:   "connected",
	})

	retrieved, exists := monitor.Get("collector")
	if !exists {
		t.Fatal("Component should exist after update")
	}

	if retrieved.Component != "collector" {
		t.Errorf("Expected component name 'collector', got %s", retrieved.Component)
	}

	if retrieved.Timestamp.IsZero() {
		t.Error("Update should set timestamp if not provided")
	}
}

func TestMonitor_UpdateReplaces(t *testing.T) {
	monitor := NewMonitor()

	monitor.Update("a", NewHealthy("a", "ok"))
	monitor.Update("b", NewHealthy("b", "connected"))
	monitor.Update("b", NewDegraded("b", "reconnecting"))
	monitor.Update("c", NewUnhealthy("c", "disk full"))

	tests := []struct {
		name     string
		expected string
	}{
		{"a", StatusHealthy},
		{"b", StatusDegraded},
		{"c", StatusUnhealthy},
	}

	for _, test := range tests {
		status, ok := monitor.Get(test.name)
		if !ok {
			t.Fatalf("missing status for %s", test.name)
		}
		if status.Status != test.expected {
			t.Errorf("%s: expected %s, got %s", test.name, test.expected, status.Status)
		}
	}

	if n := len(monitor.AggregateHealth("aethalometer").SubStatuses); n != 3 {
		t.Errorf("expected 3 statuses, got %d", n)
	}
}

func TestMonitor_AggregateHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(m *Monitor)
		expected   string
		components int
	}{
		{"empty", func(_ *Monitor) {}, StatusHealthy, 0},
		{"all healthy", func(m *Monitor) {
			m.Update("collector", NewHealthy("collector", "connected"))
			m.Update("storage", NewHealthy("storage", "writing"))
		}, StatusHealthy, 2},
		{"reconnecting", func(m *Monitor) {
			m.Update("collector", NewDegraded("collector", "reconnecting"))
			m.Update("storage", NewHealthy("storage", "writing"))
		}, StatusDegraded, 2},
		{"storage failed", func(m *Monitor) {
			m.Update("collector", NewDegraded("collector", "reconnecting"))
			m.Update("storage", NewUnhealthy("storage", "permission denied"))
		}, StatusUnhealthy, 2},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			monitor := NewMonitor()
			test.setup(monitor)

			agg := monitor.AggregateHealth("aethalometer")
			if agg.Status != test.expected {
				t.Errorf("expected %s, got %s", test.expected, agg.Status)
			}
			if agg.Component != "aethalometer" {
				t.Errorf("expected component aethalometer, got %s", agg.Component)
			}
			if len(agg.SubStatuses) != test.components {
				t.Errorf("expected %d sub statuses, got %d", test.components, len(agg.SubStatuses))
			}
		})
	}
}

func TestAggregate_SortsSubStatuses(t *testing.T) {
	agg := Aggregate("system", []Status{
		NewHealthy("storage", ""),
		NewHealthy("collector", ""),
	})

	if agg.SubStatuses[0].Component != "collector" || agg.SubStatuses[1].Component != "storage" {
		t.Errorf("sub statuses not sorted: %+v", agg.SubStatuses)
	}
}

func TestStatus_WithMetrics(t *testing.T) {
	base := NewHealthy("collector", "connected")
	withMetrics := base.WithMetrics(&Metrics{LinesProcessed: 42, Uptime: time.Minute})

	if base.Metrics != nil {
		t.Error("WithMetrics must not modify the receiver")
	}
	if withMetrics.Metrics.LinesProcessed != 42 {
		t.Errorf("expected 42 lines, got %d", withMetrics.Metrics.LinesProcessed)
	}
	if !withMetrics.IsHealthy() || withMetrics.Component != "collector" {
		t.Error("unexpected status values")
	}
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			monitor.Update("collector", NewHealthy("collector", "connected"))
		}()
		go func() {
			defer wg.Done()
			_ = monitor.AggregateHealth("aethalometer")
		}()
	}
	wg.Wait()

	if n := len(monitor.AggregateHealth("aethalometer").SubStatuses); n != 1 {
		t.Errorf("expected 1 component, got %d", n)
	}
}
