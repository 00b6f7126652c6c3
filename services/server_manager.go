package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"service-nanny/internal/config"
	"service-nanny/internal/env"
	"service-nanny/internal/logger"
	"service-nanny/internal/manifest"
	"service-nanny/internal/models"
	"service-nanny/internal/runtime"
)

// Journal stores lifecycle events and serves the most recent ones.
type Journal interface {
	EventSink
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}

type Server struct {
	cfg       *config.AppConfig
	registry  *Registry
	arbiter   *Arbiter
	health    *HealthMonitor
	service   *ServiceManager
	journal   Journal
	startTime time.Time
}

/**
 * Create new server instance with all managers
 * @param {config.AppConfig} cfg - Application configuration
 * @param {runtime.Runtime} rt - Container runtime
 * @param {Journal} journal - Event journal, may be nil
 * @returns {Server} Returns new server instance
 * @description
 * - Builds the registry, arbiter, health monitor and lifecycle controller
 * - Nothing is discovered until Init is called
 * @example
 * server := NewServer(cfg, runtime.NewCompose(cfg.Runtime, nil), journal)
 * server.Init(ctx)
 */
func NewServer(cfg *config.AppConfig, rt runtime.Runtime, journal Journal) *Server {
	loader := &manifest.Loader{DefaultTimeout: cfg.Health.DefaultTimeout}
	registry := NewRegistry(loader, cfg.Services.Exclude)
	arbiter := NewArbiter()
	health := NewHealthMonitor(cfg.Health, &http.Client{})

	var sink EventSink
	if journal != nil {
		sink = journal
	}
	return &Server{
		cfg:       cfg,
		registry:  registry,
		arbiter:   arbiter,
		health:    health,
		service:   NewServiceManager(registry, arbiter, rt, health, sink, TimeoutsFromConfig(cfg.Runtime)),
		journal:   journal,
		startTime: time.Now(),
	}
}

func (s *Server) Services() *ServiceManager {
	return s.service
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) Health() *HealthMonitor {
	return s.health
}

/**
 * Discover services and rebuild running state from the runtime
 * @returns {error} Only when the services root cannot be read
 */
func (s *Server) Init(ctx context.Context) error {
	if _, _, err := s.Rescan(ctx); err != nil {
		return err
	}
	return nil
}

/**
 * Rescan the services root
 * @returns {int} Number of services discovered
 * @returns {[]models.SkippedManifest} Manifests skipped because they failed to load
 * @throws
 * - DiscoveryFailed when the root cannot be read, the registry is unchanged
 * @description
 * - Reconciles running records afterwards, a running service whose manifest vanished stays tracked
 */
func (s *Server) Rescan(ctx context.Context) (int, []models.SkippedManifest, error) {
	n, err := s.registry.Discover(s.cfg.Services.Dir)
	skipped := []models.SkippedManifest{}
	var discErr *DiscoveryError
	switch {
	case errors.As(err, &discErr):
		for dir, e := range discErr.Skipped {
			skipped = append(skipped, models.SkippedManifest{Dir: dir, Error: e.Error()})
		}
		sort.Slice(skipped, func(i, j int) bool { return skipped[i].Dir < skipped[j].Dir })
	case err != nil:
		s.service.emit(ctx, "", models.ActionDiscover, models.OutcomeFailed, err.Error())
		return 0, nil, err
	}

	s.service.emit(ctx, "", models.ActionDiscover, models.OutcomeOK, fmt.Sprintf("%d discovered, %d skipped", n, len(skipped)))
	s.service.Reconcile(ctx)
	return n, skipped, nil
}

/**
 * Start background workers
 * @description
 * - Health poller when health.poll_interval > 0, each tick ends with a reconcile
 * - Manifest watcher when services.watch is set
 * - Both stop when ctx is cancelled
 */
func (s *Server) StartBackground(ctx context.Context) {
	if s.cfg.Health.PollInterval > 0 {
		go s.health.Run(ctx, s.cfg.Health.PollInterval, s.service.RunningDescriptors, s.service.Reconcile)
	}
	if s.cfg.Services.Watch {
		w := NewWatcher(s.cfg.Services.Dir, s.cfg.Services.WatchDebounce, func(ctx context.Context) {
			if _, _, err := s.Rescan(ctx); err != nil {
				logger.Errorf("Rescan after manifest change failed: %v", err)
			}
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Errorf("Manifest watcher stopped: %v", err)
			}
		}()
	}
}

// info decorates desc with its state and the poller's last result, if any.
func (s *Server) info(desc models.ServiceDescriptor) models.ServiceInfo {
	info := models.ServiceInfo{ServiceDescriptor: desc, Status: s.service.State(desc.Name)}
	if res, ok := s.health.Last(desc.Name); ok {
		info.LastHealth = &res
	}
	return info
}

func (s *Server) List() models.ServiceListResponse {
	descs := s.registry.List()
	infos := make([]models.ServiceInfo, 0, len(descs))
	for _, d := range descs {
		infos = append(infos, s.info(d))
	}
	return models.ServiceListResponse{
		Total:           len(infos),
		Services:        infos,
		ExclusiveHolder: s.arbiter.Info().Holder,
	}
}

func (s *Server) Describe(name string) (models.ServiceInfo, error) {
	desc, err := s.registry.Get(name)
	if err != nil {
		return models.ServiceInfo{}, err
	}
	return s.info(desc), nil
}

func (s *Server) Resource() models.HolderInfo {
	return s.arbiter.Info()
}

// Events returns recent journal entries, newest first.
func (s *Server) Events(ctx context.Context, limit int) ([]models.Event, error) {
	if s.journal == nil {
		return []models.Event{}, nil
	}
	return s.journal.Recent(ctx, limit)
}

/**
* Get health check response for the server
* @returns {models.HealthResponse} Returns liveness summary with request metrics
* @description
* - Calculates server uptime from start time
* - Counts discovered and running services
* - Reports the exclusive resource holder
 */
func (s *Server) GetHealthz() models.HealthResponse {
	// 计算服务运行时间
	uptime := time.Since(s.startTime)

	return models.HealthResponse{
		Status:             "ok",
		Version:            env.Version,
		StartTime:          s.startTime.Format(time.RFC3339),
		Uptime:             uptime.Round(time.Second).String(),
		ServicesDiscovered: s.registry.Count(),
		ServicesRunning:    len(s.service.Running()),
		ExclusiveHolder:    s.arbiter.Info().Holder,
		Metrics: models.Metrics{
			TotalRequests: GetTotalRequestCount(),
			ErrorRequests: GetTotalErrorCount(),
		},
	}
}

func (s *Server) Root() models.RootResponse {
	return models.RootResponse{
		Message:            "service-nanny fleet orchestrator",
		Version:            env.Version,
		ServicesDiscovered: s.registry.Count(),
		ExclusiveHolder:    s.arbiter.Info().Holder,
	}
}
