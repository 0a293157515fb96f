package health

import (
	"context"
	"sync"
	"time"

	"github.com/pscankit/autotag/internal/domain"
)

// SystemHealthChecker implements comprehensive system health monitoring
type SystemHealthChecker struct {
	params domain.RuleParams
	engine domain.TagEngine
	cache  domain.CacheManager

	// Health check configuration
	timeout   time.Duration
	startTime time.Time

	// Cached health status to avoid expensive checks on every request
	lastCheck   time.Time
	lastHealth  domain.SystemHealth
	cacheTTL    time.Duration
	healthMutex sync.RWMutex
}

// NewSystemHealthChecker creates a new system health checker
func NewSystemHealthChecker(
	params domain.RuleParams,
	engine domain.TagEngine,
	cache domain.CacheManager,
) *SystemHealthChecker {
	return &SystemHealthChecker{
		params:    params,
		engine:    engine,
		cache:     cache,
		timeout:   5 * time.Second,
		cacheTTL:  30 * time.Second,
		startTime: time.Now(),
	}
}

// CheckHealth performs a comprehensive system health check
func (h *SystemHealthChecker) CheckHealth(ctx context.Context) domain.SystemHealth {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()

	// Return cached result if still valid
	if time.Since(h.lastCheck) < h.cacheTTL {
		return h.lastHealth
	}

	// Create context with timeout for health checks
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	now := time.Now()
	components := make(map[string]domain.HealthStatus)
	overallStatus := domain.HealthStatusHealthy

	// Check parameter store component
	paramsHealth := h.checkParams()
	components["params"] = paramsHealth
	if paramsHealth.Status != domain.HealthStatusHealthy {
		overallStatus = h.aggregateStatus(overallStatus, paramsHealth.Status)
	}

	// Check engine component
	engineHealth := h.engine.HealthCheck(checkCtx)
	components["engine"] = engineHealth
	if engineHealth.Status != domain.HealthStatusHealthy {
		overallStatus = h.aggregateStatus(overallStatus, engineHealth.Status)
	}

	// Check cache component
	cacheHealth := h.cache.HealthCheck(checkCtx)
	components["cache"] = cacheHealth
	if cacheHealth.Status != domain.HealthStatusHealthy {
		overallStatus = h.aggregateStatus(overallStatus, cacheHealth.Status)
	}

	// Collect system metrics
	metrics := h.collectSystemMetrics(checkCtx)

	systemHealth := domain.SystemHealth{
		Status:     overallStatus,
		Timestamp:  now,
		Components: components,
		Metrics:    metrics,
		Uptime:     time.Since(h.startTime),
	}

	// Cache the result
	h.lastCheck = now
	h.lastHealth = systemHealth

	return systemHealth
}

// CheckComponent performs a health check on a specific component
func (h *SystemHealthChecker) CheckComponent(ctx context.Context, component string) domain.HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch component {
	case "params":
		return h.checkParams()
	case "engine":
		return h.engine.HealthCheck(checkCtx)
	case "cache":
		return h.cache.HealthCheck(checkCtx)
	default:
		return domain.HealthStatus{
			Status:    domain.HealthStatusUnhealthy,
			Message:   "Unknown component",
			Timestamp: time.Now(),
			Details: map[string]any{
				"component": component,
				"error":     "Component not found",
			},
		}
	}
}

// checkParams builds the health status of the parameter store
func (h *SystemHealthChecker) checkParams() domain.HealthStatus {
	stats := h.params.Stats()

	status := domain.HealthStatusHealthy
	message := "Parameter store is operating normally"
	if count, ok := stats["rule_count"].(int); ok && count == 0 {
		status = domain.HealthStatusDegraded
		message = "No auto tag rules configured"
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   stats,
		Timestamp: time.Now(),
	}
}

// aggregateStatus determines the overall status based on component statuses
func (h *SystemHealthChecker) aggregateStatus(current, componentStatus string) string {
	// Priority: unhealthy > degraded > healthy
	statusPriority := map[string]int{
		domain.HealthStatusHealthy:   0,
		domain.HealthStatusDegraded:  1,
		domain.HealthStatusUnhealthy: 2,
	}

	currentPriority := statusPriority[current]
	componentPriority := statusPriority[componentStatus]

	if componentPriority > currentPriority {
		return componentStatus
	}
	return current
}

// collectSystemMetrics gathers system-wide metrics
func (h *SystemHealthChecker) collectSystemMetrics(ctx context.Context) map[string]any {
	metrics := make(map[string]any)

	metrics["params"] = h.params.Stats()

	if engineStats := h.engine.GetStats(ctx); engineStats != nil {
		metrics["engine"] = engineStats
	}

	cacheStats := h.cache.Stats()
	metrics["cache"] = map[string]any{
		"hits":      cacheStats.Hits,
		"misses":    cacheStats.Misses,
		"size":      cacheStats.Size,
		"max_size":  cacheStats.MaxSize,
		"hit_ratio": cacheStats.HitRatio,
	}

	metrics["system"] = map[string]any{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"timestamp":      time.Now(),
	}

	return metrics
}

// IsHealthy returns true if the system is healthy
func (h *SystemHealthChecker) IsHealthy(ctx context.Context) bool {
	health := h.CheckHealth(ctx)
	return health.Status == domain.HealthStatusHealthy
}
