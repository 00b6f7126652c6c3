package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"service-nanny/internal/config"
	"service-nanny/internal/logger"
	"service-nanny/internal/models"

	"golang.org/x/sync/errgroup"
)

/**
 * Health monitor
 * @description
 * - Poll performs one bounded GET and never fails, errors only mark the result unhealthy
 * - The background poller writes a last-known cache and never touches running records
 */
type HealthMonitor struct {
	client      *http.Client
	rewriteHost string
	concurrency int
	now         func() time.Time

	mu   sync.RWMutex
	last map[string]models.HealthResult
}

func NewHealthMonitor(cfg config.HealthConfig, client *http.Client) *HealthMonitor {
	if client == nil {
		client = &http.Client{}
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &HealthMonitor{
		client:      client,
		rewriteHost: cfg.RewriteLocalhost,
		concurrency: concurrency,
		now:         time.Now,
		last:        make(map[string]models.HealthResult),
	}
}

// Poll issues one GET to the descriptor's health URL; only a 2xx answer is healthy.
func (h *HealthMonitor) Poll(ctx context.Context, desc models.ServiceDescriptor) models.HealthResult {
	start := h.now()
	result := models.HealthResult{CheckedAt: start}

	timeout := time.Duration(desc.HealthTimeout)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.targetURL(desc.HealthCheckURL), nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp, err := h.client.Do(req)
	result.Latency = models.Duration(time.Since(start))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result.StatusCode = resp.StatusCode
	result.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !result.Healthy {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result
}

func (h *HealthMonitor) targetURL(raw string) string {
	if h.rewriteHost == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(h.rewriteHost, port)
		} else {
			u.Host = h.rewriteHost
		}
		return u.String()
	}
	return raw
}

// PollAll polls every descriptor concurrently and stores the results in the cache.
func (h *HealthMonitor) PollAll(ctx context.Context, descs []models.ServiceDescriptor) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for _, desc := range descs {
		desc := desc
		g.Go(func() error {
			res := h.Poll(gctx, desc)
			h.store(desc.Name, res)
			if !res.Healthy {
				logger.Debugf("Health [%s] unhealthy: %s", desc.Name, res.Error)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (h *HealthMonitor) store(name string, res models.HealthResult) {
	h.mu.Lock()
	h.last[name] = res
	h.mu.Unlock()
	setHealthGauge(name, res.Healthy)
}

// Last returns the most recent cached result for name.
func (h *HealthMonitor) Last(name string) (models.HealthResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	res, ok := h.last[name]
	return res, ok
}

// Forget drops the cached result of a stopped service.
func (h *HealthMonitor) Forget(name string) {
	h.mu.Lock()
	delete(h.last, name)
	h.mu.Unlock()
	dropHealthGauge(name)
}

/**
 * Run the background poller until ctx ends
 * @param {time.Duration} interval - Tick period, non-positive disables the poller
 * @param {func() []models.ServiceDescriptor} targets - Services to poll on each tick
 * @param {func(context.Context)} afterTick - Called after each round, may be nil
 */
func (h *HealthMonitor) Run(ctx context.Context, interval time.Duration, targets func() []models.ServiceDescriptor, afterTick func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Infof("Health poller started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("Health poller stopped")
			return
		case <-ticker.C:
			h.PollAll(ctx, targets())
			if afterTick != nil {
				afterTick(ctx)
			}
		}
	}
}
