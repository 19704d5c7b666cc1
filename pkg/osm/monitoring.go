package osm

import (
	"sync"
	"time"
)

// MonitoringHooks defines hooks for monitoring interpreter traffic
type MonitoringHooks struct {
	// OnRequest is called before making an HTTP request
	OnRequest func(service, operation string)

	// OnResponse is called after receiving an HTTP response or failing to
	OnResponse func(service, operation string, duration time.Duration, success bool)

	// OnRateLimit is called after waiting on the rate limiter
	OnRateLimit func(service string, waitTime time.Duration)

	// OnError is called when an error occurs
	OnError func(service, errorType string)

	// OnCache is called for every cache lookup when caching is enabled
	OnCache func(hit bool, size int)
}

var (
	globalHooks *MonitoringHooks
	hooksMutex  sync.RWMutex
)

// SetMonitoringHooks sets global monitoring hooks. Passing nil disables them.
func SetMonitoringHooks(hooks *MonitoringHooks) {
	hooksMutex.Lock()
	defer hooksMutex.Unlock()
	globalHooks = hooks
}

func getMonitoringHooks() *MonitoringHooks {
	hooksMutex.RLock()
	defer hooksMutex.RUnlock()
	return globalHooks
}

func notifyError(service, errorType string) {
	if hooks := getMonitoringHooks(); hooks != nil && hooks.OnError != nil {
		hooks.OnError(service, errorType)
	}
}
