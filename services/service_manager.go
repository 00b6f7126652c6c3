package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"service-nanny/internal/config"
	"service-nanny/internal/logger"
	"service-nanny/internal/models"
	"service-nanny/internal/runtime"
	"service-nanny/internal/utils"

	"github.com/google/uuid"
)

const (
	DefaultLogTail = 100
	MaxLogTail     = 10000

	// 强制启动时最多尝试获取资源的次数
	maxForceAttempts = 3
)

// EventSink receives lifecycle events, the journal implements it.
type EventSink interface {
	Record(ctx context.Context, ev models.Event) error
}

/**
 * Runtime call deadlines
 * @property {time.Duration} Up - Bring-up deadline
 * @property {time.Duration} Down - Tear-down deadline
 * @property {time.Duration} Ps - Is-up probe deadline
 * @property {time.Duration} Logs - Log fetch deadline
 */
type Timeouts struct {
	Up   time.Duration
	Down time.Duration
	Ps   time.Duration
	Logs time.Duration
}

func TimeoutsFromConfig(cfg config.RuntimeConfig) Timeouts {
	return Timeouts{Up: cfg.UpTimeout, Down: cfg.DownTimeout, Ps: cfg.PsTimeout, Logs: cfg.LogsTimeout}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Up <= 0 {
		t.Up = 120 * time.Second
	}
	if t.Down <= 0 {
		t.Down = 60 * time.Second
	}
	if t.Ps <= 0 {
		t.Ps = 15 * time.Second
	}
	if t.Logs <= 0 {
		t.Logs = 30 * time.Second
	}
	return t
}

// ForceStartBudget is the longest a forced Start can block: one stop cycle per
// attempt, then the bring-up and the rollback of a failed bring-up.
func (t Timeouts) ForceStartBudget() time.Duration {
	t = t.withDefaults()
	// 每轮: 仲裁前检查 + stop内检查 + teardown + stop后复查
	cycle := t.Down + 3*t.Ps
	return t.Ps + maxForceAttempts*cycle + t.Up + t.Ps + t.Down
}

type StartResult struct {
	Status         models.RunState
	HealthCheckURL string
	AlreadyRunning bool
}

// runningRecord exists for a name iff the runtime reports the service up.
type runningRecord struct {
	desc      models.ServiceDescriptor
	startedAt time.Time
}

/**
 * Lifecycle controller
 * @description
 * - Owns running records and, through the arbiter, the exclusive resource holder
 * - Operations on one name are serialized by a per-name lock
 * - No operation waits for a second per-name lock while holding one
 */
type ServiceManager struct {
	registry *Registry
	arbiter  *Arbiter
	runtime  runtime.Runtime
	health   *HealthMonitor
	events   EventSink
	timeouts Timeouts
	now      func() time.Time

	mu      sync.Mutex
	records map[string]*runningRecord
	states  map[string]models.RunState
	lastErr map[string]string

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

func NewServiceManager(registry *Registry, arbiter *Arbiter, rt runtime.Runtime, health *HealthMonitor, events EventSink, timeouts Timeouts) *ServiceManager {
	return &ServiceManager{
		registry: registry,
		arbiter:  arbiter,
		runtime:  rt,
		health:   health,
		events:   events,
		timeouts: timeouts.withDefaults(),
		now:      time.Now,
		records:  make(map[string]*runningRecord),
		states:   make(map[string]models.RunState),
		lastErr:  make(map[string]string),
		locks:    make(map[string]chan struct{}),
	}
}

func (sm *ServiceManager) nameLock(name string) chan struct{} {
	sm.locksMu.Lock()
	defer sm.locksMu.Unlock()
	l, ok := sm.locks[name]
	if !ok {
		l = make(chan struct{}, 1)
		sm.locks[name] = l
	}
	return l
}

// lockName waits for the per-name lock or ctx.
func (sm *ServiceManager) lockName(ctx context.Context, name string) (func(), error) {
	l := sm.nameLock(name)
	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (sm *ServiceManager) tryLockName(name string) (func(), bool) {
	l := sm.nameLock(name)
	select {
	case l <- struct{}{}:
		return func() { <-l }, true
	default:
		return nil, false
	}
}

// resolve finds the descriptor in the registry, falling back to a running record's copy.
func (sm *ServiceManager) resolve(name string) (desc models.ServiceDescriptor, orphaned bool, ok bool) {
	if d, err := sm.registry.Get(name); err == nil {
		return d, false, true
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if rec, exists := sm.records[name]; exists {
		return rec.desc, true, true
	}
	return models.ServiceDescriptor{}, false, false
}

// bounded detaches from the caller's cancellation so a half-done runtime call is never abandoned.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

func (sm *ServiceManager) isUp(ctx context.Context, desc models.ServiceDescriptor) (bool, error) {
	psCtx, cancel := context.WithTimeout(ctx, sm.timeouts.Ps)
	defer cancel()
	return sm.runtime.IsUp(psCtx, desc.WorkingDirectory)
}

/**
 * Start a service
 * @param {string} name - Service name
 * @param {bool} force - Stop the current resource holder first when busy
 * @returns {StartResult} Running status and health URL
 * @throws
 * - UnknownService when name is not registered
 * - ResourceConflict naming the holder when not forced
 * - StopFailed naming the holder when the forced stop fails
 * - StartFailed carrying the runtime diagnostic
 */
func (sm *ServiceManager) Start(ctx context.Context, name string, force bool) (StartResult, error) {
	desc, err := sm.registry.Get(name)
	if err != nil {
		return StartResult{}, unknownService("start", name)
	}

	unlock, err := sm.lockName(ctx, name)
	if err != nil {
		return StartResult{}, &OpError{Op: "start", Service: name, Kind: KindStartFailed, Err: err}
	}
	defer func() { unlock() }()

	up, err := sm.isUp(ctx, desc)
	if err != nil {
		logger.Warnf("Service [%s] state probe failed, starting anyway: %v", name, err)
	}
	if up {
		return sm.alreadyRunning(ctx, desc), nil
	}

	acquired := false
	if desc.RequiresExclusiveResource {
		for attempt := 1; ; attempt++ {
			sm.claimExternalHolder(ctx, name)
			err := sm.arbiter.TryAcquire(name)
			if err == nil {
				acquired = true
				break
			}
			var busy *ResourceBusyError
			if !errors.As(err, &busy) {
				return StartResult{}, &OpError{Op: "start", Service: name, Kind: KindStartFailed, Err: err}
			}
			if !force || attempt >= maxForceAttempts {
				sm.emit(ctx, name, models.ActionStart, models.OutcomeConflict, fmt.Sprintf("resource held by %s", busy.Holder))
				return StartResult{}, &OpError{Op: "start", Service: name, Kind: KindResourceConflict, Holder: busy.Holder}
			}

			logger.Infof("Service [%s] force start: stopping resource holder [%s]", name, busy.Holder)
			unlock()
			stopErr := sm.stop(ctx, busy.Holder, models.ActionForceStop)
			relock, lockErr := sm.lockName(ctx, name)
			if lockErr != nil {
				unlock = func() {}
				return StartResult{}, &OpError{Op: "start", Service: name, Kind: KindStartFailed, Err: lockErr}
			}
			unlock = relock
			if stopErr != nil {
				sm.emit(ctx, name, models.ActionStart, models.OutcomeFailed, fmt.Sprintf("forced stop of %s failed", busy.Holder))
				return StartResult{}, &OpError{Op: "start", Service: name, Kind: KindStopFailed, Holder: busy.Holder, Err: stopErr}
			}

			// the world may have changed while the lock was released
			if desc, err = sm.registry.Get(name); err != nil {
				return StartResult{}, unknownService("start", name)
			}
			if up, err := sm.isUp(ctx, desc); err == nil && up {
				return sm.alreadyRunning(ctx, desc), nil
			}
			if !desc.RequiresExclusiveResource {
				break
			}
		}
	}

	sm.setState(name, models.StateStarting, "")
	if busy := utils.BusyHostPorts(desc.Ports); len(busy) > 0 {
		logger.Warnf("Service [%s] host ports %v already in use, bring-up may fail", name, busy)
	}
	logger.Infof("Service [%s] starting in %s", name, desc.WorkingDirectory)
	upCtx, cancel := bounded(ctx, sm.timeouts.Up)
	err = sm.runtime.BringUp(upCtx, desc.WorkingDirectory)
	cancel()
	if err != nil {
		return StartResult{}, sm.failStart(ctx, desc, acquired, err)
	}

	sm.mu.Lock()
	sm.records[name] = &runningRecord{desc: desc, startedAt: sm.now()}
	sm.states[name] = models.StateRunning
	delete(sm.lastErr, name)
	sm.mu.Unlock()

	logger.Infof("Service [%s] started", name)
	sm.emit(ctx, name, models.ActionStart, models.OutcomeOK, "")
	return StartResult{Status: models.StateRunning, HealthCheckURL: desc.HealthCheckURL}, nil
}

// alreadyRunning adopts a service the runtime reports up and returns success without bring-up.
func (sm *ServiceManager) alreadyRunning(ctx context.Context, desc models.ServiceDescriptor) StartResult {
	if sm.adopt(desc) {
		sm.emit(ctx, desc.Name, models.ActionReconcile, models.OutcomeOK, "adopted running service")
	}
	sm.emit(ctx, desc.Name, models.ActionStart, models.OutcomeNoop, "already running")
	return StartResult{Status: models.StateRunning, HealthCheckURL: desc.HealthCheckURL, AlreadyRunning: true}
}

// claimExternalHolder adopts an exclusive service brought up outside the daemon
// (startup scripts, a manual compose up) so the arbiter sees it before name acquires.
// Services with an operation in flight are skipped, the daemon already tracks them.
func (sm *ServiceManager) claimExternalHolder(ctx context.Context, name string) {
	if _, held := sm.arbiter.CurrentHolder(); held {
		return
	}
	for _, d := range sm.registry.List() {
		if d.Name == name || !d.RequiresExclusiveResource {
			continue
		}
		unlock, free := sm.tryLockName(d.Name)
		if !free {
			continue
		}
		up, err := sm.isUp(ctx, d)
		if err != nil {
			logger.Warnf("Service [%s] state check failed during arbitration: %v", d.Name, err)
		} else if up && sm.adopt(d) {
			sm.emit(ctx, d.Name, models.ActionReconcile, models.OutcomeOK, "adopted running service")
		}
		unlock()
		if _, held := sm.arbiter.CurrentHolder(); held {
			return
		}
	}
}

// adopt creates a missing record for a service found running and reports whether it did.
func (sm *ServiceManager) adopt(desc models.ServiceDescriptor) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.states[desc.Name] = models.StateRunning
	_, had := sm.records[desc.Name]
	if !had {
		sm.records[desc.Name] = &runningRecord{desc: desc, startedAt: sm.now()}
	}
	if desc.RequiresExclusiveResource {
		if err := sm.arbiter.TryAcquire(desc.Name); err != nil {
			logger.Errorf("Service [%s] is running without the exclusive resource: %v", desc.Name, err)
		}
	}
	if had {
		return false
	}
	logger.Warnf("Service [%s] found running without a record, adopted", desc.Name)
	return true
}

// dropRecord removes a stale record and holder and reports whether anything changed.
func (sm *ServiceManager) dropRecord(name string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, had := sm.records[name]
	delete(sm.records, name)
	released := sm.arbiter.Release(name)
	sm.states[name] = models.StateStopped
	return had || released
}

func (sm *ServiceManager) failStart(ctx context.Context, desc models.ServiceDescriptor, acquired bool, cause error) error {
	name := desc.Name
	logger.Errorf("Service [%s] bring-up failed: %v", name, cause)

	probeCtx, cancel := bounded(ctx, sm.timeouts.Ps)
	up, probeErr := sm.runtime.IsUp(probeCtx, desc.WorkingDirectory)
	cancel()

	if probeErr == nil && up {
		downCtx, cancel := bounded(ctx, sm.timeouts.Down)
		rbErr := sm.runtime.TearDown(downCtx, desc.WorkingDirectory)
		cancel()
		if rbErr != nil {
			err := errors.Join(fmt.Errorf("bring-up: %w", cause), fmt.Errorf("rollback: %w", rbErr))
			sm.mu.Lock()
			sm.records[name] = &runningRecord{desc: desc, startedAt: sm.now()}
			sm.states[name] = models.StateRunning
			sm.lastErr[name] = err.Error()
			sm.mu.Unlock()
			logger.Errorf("Service [%s] rollback failed, containers left running: %v", name, rbErr)
			sm.emit(ctx, name, models.ActionStart, models.OutcomeFailed, err.Error())
			return &OpError{Op: "start", Service: name, Kind: KindStartFailed, Err: err}
		}
		logger.Infof("Service [%s] rolled back after failed bring-up", name)
	}

	sm.mu.Lock()
	if acquired {
		sm.arbiter.Release(name)
	}
	delete(sm.records, name)
	sm.states[name] = models.StateFailedStart
	sm.lastErr[name] = cause.Error()
	sm.mu.Unlock()
	sm.health.Forget(name)
	sm.emit(ctx, name, models.ActionStart, models.OutcomeFailed, cause.Error())

	sm.setState(name, models.StateStopped, "")
	return &OpError{Op: "start", Service: name, Kind: KindStartFailed, Err: cause}
}

// Stop tears a service down; stopping a stopped service succeeds without invoking the runtime.
func (sm *ServiceManager) Stop(ctx context.Context, name string) error {
	return sm.stop(ctx, name, models.ActionStop)
}

func (sm *ServiceManager) stop(ctx context.Context, name string, action models.EventAction) error {
	unlock, err := sm.lockName(ctx, name)
	if err != nil {
		return &OpError{Op: "stop", Service: name, Kind: KindStopFailed, Err: err}
	}
	defer unlock()

	desc, _, ok := sm.resolve(name)
	if !ok {
		if sm.arbiter.Release(name) {
			logger.Warnf("Service [%s] unknown but held the resource, released", name)
			sm.emit(ctx, name, models.ActionReconcile, models.OutcomeOK, "released stale holder")
			return nil
		}
		return unknownService("stop", name)
	}

	up, err := sm.isUp(ctx, desc)
	if err != nil {
		logger.Warnf("Service [%s] state probe failed, tearing down anyway: %v", name, err)
	}
	if err == nil && !up {
		if sm.dropRecord(name) {
			logger.Warnf("Service [%s] was not running, stale record removed", name)
			sm.emit(ctx, name, models.ActionReconcile, models.OutcomeOK, "removed stale record")
		}
		sm.health.Forget(name)
		sm.emit(ctx, name, action, models.OutcomeNoop, "not running")
		return nil
	}

	previous := sm.State(name)
	sm.setState(name, models.StateStopping, "")
	logger.Infof("Service [%s] stopping", name)

	downCtx, cancel := bounded(ctx, sm.timeouts.Down)
	err = sm.runtime.TearDown(downCtx, desc.WorkingDirectory)
	cancel()
	if err != nil {
		sm.setState(name, previous, err.Error())
		logger.Errorf("Service [%s] stop failed: %v", name, err)
		sm.emit(ctx, name, action, models.OutcomeFailed, err.Error())
		return &OpError{Op: "stop", Service: name, Kind: KindStopFailed, Err: err}
	}

	sm.mu.Lock()
	delete(sm.records, name)
	sm.arbiter.Release(name)
	sm.states[name] = models.StateStopped
	delete(sm.lastErr, name)
	sm.mu.Unlock()
	sm.health.Forget(name)

	logger.Infof("Service [%s] stopped", name)
	sm.emit(ctx, name, action, models.OutcomeOK, "")
	return nil
}

/**
 * Report the status of one service
 * @returns {models.ServiceStatus} Running and health view, health defaults to false
 * @throws
 * - UnknownService when neither registered nor tracked
 * @description
 * - A runtime probe error yields isRunning=false with the error text, never a failure
 * - Divergence between records and the runtime is repaired unless an operation is in flight
 */
func (sm *ServiceManager) Status(ctx context.Context, name string) (models.ServiceStatus, error) {
	desc, orphaned, ok := sm.resolve(name)
	if !ok {
		return models.ServiceStatus{}, unknownService("status", name)
	}

	status := models.ServiceStatus{Name: name, Orphaned: orphaned}
	up, err := sm.isUp(ctx, desc)
	if err != nil {
		status.State = sm.State(name)
		status.LastError = err.Error()
		return status, nil
	}

	if unlock, free := sm.tryLockName(name); free {
		sm.repair(ctx, desc, up)
		unlock()
	}

	status.IsRunning = up
	status.State = sm.State(name)
	status.LastError = sm.LastError(name)
	if up {
		sm.mu.Lock()
		if rec, ok := sm.records[name]; ok {
			started := rec.startedAt
			status.StartedAt = &started
			status.Uptime = sm.now().Sub(started).Round(time.Second).String()
		}
		sm.mu.Unlock()
		res := sm.health.Poll(ctx, desc)
		sm.health.store(name, res)
		status.IsHealthy = res.Healthy
	}
	return status, nil
}

// repair makes the record match the observed runtime state.
func (sm *ServiceManager) repair(ctx context.Context, desc models.ServiceDescriptor, up bool) {
	sm.mu.Lock()
	_, has := sm.records[desc.Name]
	sm.mu.Unlock()

	switch {
	case up && !has:
		if sm.adopt(desc) {
			sm.emit(ctx, desc.Name, models.ActionReconcile, models.OutcomeOK, "adopted running service")
		}
	case !up && has:
		if sm.dropRecord(desc.Name) {
			logger.Warnf("Service [%s] no longer running, record removed", desc.Name)
			sm.health.Forget(desc.Name)
			sm.emit(ctx, desc.Name, models.ActionReconcile, models.OutcomeOK, "removed stale record")
		}
	}
}

/**
 * Align running records and the holder with the runtime
 * @description
 * - Probes every registered and every tracked service
 * - Names with an operation in flight are skipped
 * - A holder with no record and no running containers is released
 */
func (sm *ServiceManager) Reconcile(ctx context.Context) {
	names := make(map[string]struct{})
	for _, d := range sm.registry.List() {
		names[d.Name] = struct{}{}
	}
	sm.mu.Lock()
	for name := range sm.records {
		names[name] = struct{}{}
	}
	sm.mu.Unlock()
	if holder, ok := sm.arbiter.CurrentHolder(); ok {
		names[holder] = struct{}{}
	}

	for name := range names {
		if ctx.Err() != nil {
			return
		}
		unlock, free := sm.tryLockName(name)
		if !free {
			continue
		}
		desc, _, ok := sm.resolve(name)
		if !ok {
			if sm.arbiter.Release(name) {
				logger.Warnf("Reconcile: released resource held by unknown service [%s]", name)
				sm.emit(ctx, name, models.ActionReconcile, models.OutcomeOK, "released stale holder")
			}
			unlock()
			continue
		}
		up, err := sm.isUp(ctx, desc)
		if err != nil {
			logger.Warnf("Reconcile: probe of [%s] failed: %v", name, err)
			unlock()
			continue
		}
		sm.repair(ctx, desc, up)
		if !up {
			if holder, held := sm.arbiter.CurrentHolder(); held && holder == name {
				sm.arbiter.Release(name)
				sm.emit(ctx, name, models.ActionReconcile, models.OutcomeOK, "released stale holder")
			}
		}
		unlock()
	}
}

// Logs returns the last tail lines of the service's runtime output.
func (sm *ServiceManager) Logs(ctx context.Context, name string, tail int) ([]string, error) {
	desc, _, ok := sm.resolve(name)
	if !ok {
		return nil, unknownService("logs", name)
	}
	tail = ClampTail(tail)

	logsCtx, cancel := context.WithTimeout(ctx, sm.timeouts.Logs)
	defer cancel()
	lines, err := sm.runtime.FetchLogs(logsCtx, desc.WorkingDirectory, tail)
	if err != nil {
		return nil, &OpError{Op: "logs", Service: name, Kind: KindLogsUnavailable, Err: err}
	}
	return lines, nil
}

// ClampTail applies the default and bounds of a log tail request.
func ClampTail(tail int) int {
	if tail <= 0 {
		return DefaultLogTail
	}
	if tail > MaxLogTail {
		return MaxLogTail
	}
	return tail
}

// Running lists the tracked running services sorted by name.
func (sm *ServiceManager) Running() []models.RunningInfo {
	sm.mu.Lock()
	infos := make([]models.RunningInfo, 0, len(sm.records))
	for name, rec := range sm.records {
		infos = append(infos, models.RunningInfo{Name: name, StartedAt: rec.startedAt})
	}
	sm.mu.Unlock()

	for i := range infos {
		if _, err := sm.registry.Get(infos[i].Name); err != nil {
			infos[i].Orphaned = true
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// RunningDescriptors returns the descriptors of tracked running services for the poller.
func (sm *ServiceManager) RunningDescriptors() []models.ServiceDescriptor {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	descs := make([]models.ServiceDescriptor, 0, len(sm.records))
	for _, rec := range sm.records {
		descs = append(descs, rec.desc)
	}
	return descs
}

func (sm *ServiceManager) State(name string) models.RunState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if st, ok := sm.states[name]; ok {
		return st
	}
	if _, ok := sm.records[name]; ok {
		return models.StateRunning
	}
	return models.StateStopped
}

func (sm *ServiceManager) LastError(name string) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.lastErr[name]
}

func (sm *ServiceManager) setState(name string, st models.RunState, lastErr string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.states[name] = st
	if lastErr != "" {
		sm.lastErr[name] = lastErr
	}
}

func (sm *ServiceManager) Holder() models.HolderInfo {
	return sm.arbiter.Info()
}

func (sm *ServiceManager) emit(ctx context.Context, service string, action models.EventAction, outcome models.EventOutcome, detail string) {
	recordLifecycle(service, action, outcome)
	if sm.events == nil {
		return
	}
	holder, _ := sm.arbiter.CurrentHolder()
	ev := models.Event{
		ID:      uuid.NewString(),
		At:      sm.now(),
		Service: service,
		Action:  action,
		Outcome: outcome,
		Holder:  holder,
		Detail:  detail,
	}
	if err := sm.events.Record(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warnf("Journal write failed for [%s] %s: %v", service, action, err)
	}
}
