// Package health tracks the health of the collector's parts.
//
// The collector reports healthy while connected to the instrument and degraded
// while waiting to reconnect. The storage writer reports unhealthy once an
// append has failed. Monitor keeps the latest status of each and
// AggregateHealth folds them into one answer for the /health endpoint:
//
//	monitor := health.NewMonitor()
//	monitor.Update("collector", health.NewHealthy("collector", "connected to 10.0.0.5:8002"))
//	monitor.Update("collector", health.NewDegraded("collector", "reconnecting in 10s"))
//
//	if monitor.AggregateHealth("aethalometer").IsUnhealthy() {
//	    // answer 503
//	}
package health
