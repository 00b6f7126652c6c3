package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"service-nanny/internal/models"
	"service-nanny/internal/runtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartExclusiveConflict(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "b": true})
	ctx := context.Background()

	res, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, res.Status)
	assert.Equal(t, "a", env.holder())

	_, err = env.sm.Start(ctx, "b", false)
	require.Error(t, err)
	assert.Equal(t, KindResourceConflict, KindOf(err))
	assert.Equal(t, "a", HolderOf(err))
	assert.Contains(t, err.Error(), "start 'b'")

	assert.Equal(t, 0, env.rt.Calls(runtime.OpUp, env.dir("b")))
	assert.Equal(t, "a", env.holder())
	assert.True(t, env.events.has("b", models.ActionStart, models.OutcomeConflict))
}

func TestConcurrentStartsMutualExclusion(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	services := map[string]bool{}
	for _, n := range names {
		services[n] = true
	}
	env := newTestEnv(t, services)
	env.rt.BeforeUp = func(ctx context.Context, dir string) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
	)
	for _, n := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := env.sm.Start(context.Background(), name, false)
			mu.Lock()
			defer mu.Unlock()
			switch KindOf(err) {
			case KindNone:
				winners = append(winners, name)
			case KindResourceConflict:
				conflicts++
			default:
				t.Errorf("unexpected error for %s: %v", name, err)
			}
		}(n)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(names)-1, conflicts)
	assert.Equal(t, 1, env.rt.UpCount())
	assert.Equal(t, winners[0], env.holder())
	require.Len(t, env.sm.Running(), 1)
}

func TestNonExclusiveServicesRunAlongside(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "c": false})
	ctx := context.Background()

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)
	_, err = env.sm.Start(ctx, "c", false)
	require.NoError(t, err)

	assert.Equal(t, "a", env.holder())
	assert.Len(t, env.sm.Running(), 2)
}

func TestForceStartStopsHolder(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "b": true})
	ctx := context.Background()

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)

	res, err := env.sm.Start(ctx, "b", true)
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, res.Status)
	assert.Equal(t, env.healthSrv.URL+"/ok", res.HealthCheckURL)

	assert.Equal(t, 1, env.rt.Calls(runtime.OpDown, env.dir("a")))
	assert.False(t, env.rt.Running(env.dir("a")))
	assert.True(t, env.rt.Running(env.dir("b")))
	assert.Equal(t, "b", env.holder())
	assert.Equal(t, models.StateStopped, env.sm.State("a"))

	running := env.sm.Running()
	require.Len(t, running, 1)
	assert.Equal(t, "b", running[0].Name)
	assert.True(t, env.events.has("a", models.ActionForceStop, models.OutcomeOK))
}

func TestForceStartAbortsWhenHolderStopFails(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "b": true})
	ctx := context.Background()

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)
	env.rt.SetError(runtime.OpDown, env.dir("a"), errors.New("daemon unreachable"))

	_, err = env.sm.Start(ctx, "b", true)
	require.Error(t, err)
	assert.Equal(t, KindStopFailed, KindOf(err))
	assert.Equal(t, "a", HolderOf(err))
	assert.Contains(t, err.Error(), "daemon unreachable")

	assert.Equal(t, "a", env.holder())
	assert.True(t, env.rt.Running(env.dir("a")))
	assert.Equal(t, 0, env.rt.Calls(runtime.OpUp, env.dir("b")))
	assert.Equal(t, models.StateRunning, env.sm.State("a"))
}

func TestStartIsIdempotent(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	ctx := context.Background()

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)
	res, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)

	assert.True(t, res.AlreadyRunning)
	assert.Equal(t, 1, env.rt.Calls(runtime.OpUp, env.dir("a")))
	assert.Equal(t, "a", env.holder())
}

func TestStartAdoptsExternallyRunningService(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	env.rt.SetUp(env.dir("a"), true)

	res, err := env.sm.Start(context.Background(), "a", false)
	require.NoError(t, err)
	assert.True(t, res.AlreadyRunning)
	assert.Equal(t, 0, env.rt.Calls(runtime.OpUp, env.dir("a")))
	assert.Equal(t, "a", env.holder())
	assert.Len(t, env.sm.Running(), 1)
}

func TestStartSeesExclusiveServiceStartedOutside(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "b": true, "c": false})
	ctx := context.Background()
	// brought up by a startup script, the daemon never saw it
	env.rt.SetUp(env.dir("a"), true)

	_, err := env.sm.Start(ctx, "b", false)
	require.Error(t, err)
	assert.Equal(t, KindResourceConflict, KindOf(err))
	assert.Equal(t, "a", HolderOf(err))
	assert.Equal(t, 0, env.rt.Calls(runtime.OpUp, env.dir("b")))
	assert.False(t, env.rt.Running(env.dir("b")))
	assert.Equal(t, "a", env.holder())
	assert.True(t, env.events.has("a", models.ActionReconcile, models.OutcomeOK))

	running := env.sm.Running()
	require.Len(t, running, 1)
	assert.Equal(t, "a", running[0].Name)

	// non-exclusive services are never checked for arbitration
	_, err = env.sm.Start(ctx, "c", false)
	require.NoError(t, err)

	res, err := env.sm.Start(ctx, "b", true)
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, res.Status)
	assert.Equal(t, 1, env.rt.Calls(runtime.OpDown, env.dir("a")))
	assert.False(t, env.rt.Running(env.dir("a")))
	assert.True(t, env.rt.Running(env.dir("b")))
	assert.Equal(t, "b", env.holder())
}

func TestStopIsIdempotent(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	ctx := context.Background()

	require.NoError(t, env.sm.Stop(ctx, "a"))
	assert.Equal(t, 0, env.rt.Calls(runtime.OpDown, env.dir("a")))

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)
	require.NoError(t, env.sm.Stop(ctx, "a"))
	require.NoError(t, env.sm.Stop(ctx, "a"))
	assert.Equal(t, 1, env.rt.Calls(runtime.OpDown, env.dir("a")))
	assert.Empty(t, env.holder())
	assert.Empty(t, env.sm.Running())
}

func TestStopUnknownService(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	err := env.sm.Stop(context.Background(), "ghost")
	assert.Equal(t, KindUnknownService, KindOf(err))

	_, err = env.sm.Start(context.Background(), "ghost", false)
	assert.Equal(t, KindUnknownService, KindOf(err))
}

func TestStopFailureKeepsRecordAndHolder(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	ctx := context.Background()

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)
	env.rt.SetError(runtime.OpDown, env.dir("a"), errors.New("permission denied"))

	err = env.sm.Stop(ctx, "a")
	require.Error(t, err)
	assert.Equal(t, KindStopFailed, KindOf(err))
	var exitErr *runtime.ExitError
	assert.ErrorAs(t, err, &exitErr)

	assert.Equal(t, "a", env.holder())
	assert.Len(t, env.sm.Running(), 1)
	assert.Equal(t, models.StateRunning, env.sm.State("a"))
	assert.Contains(t, env.sm.LastError("a"), "permission denied")
}

func TestStartFailureReleasesResource(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "b": true})
	ctx := context.Background()
	env.rt.SetError(runtime.OpUp, env.dir("a"), errors.New("image not found"))

	_, err := env.sm.Start(ctx, "a", false)
	require.Error(t, err)
	assert.Equal(t, KindStartFailed, KindOf(err))
	assert.Contains(t, err.Error(), "image not found")

	assert.Empty(t, env.holder())
	assert.Equal(t, models.StateStopped, env.sm.State("a"))
	assert.Contains(t, env.sm.LastError("a"), "image not found")
	assert.Empty(t, env.sm.Running())

	_, err = env.sm.Start(ctx, "b", false)
	require.NoError(t, err)
}

func TestStartTimeoutRollsBack(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	env.sm.timeouts.Up = 50 * time.Millisecond
	env.rt.BeforeUp = func(ctx context.Context, dir string) error {
		// containers come up but the command never returns in time
		env.rt.SetUp(dir, true)
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := env.sm.Start(context.Background(), "a", false)
	require.Error(t, err)
	assert.Equal(t, KindStartFailed, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 1, env.rt.Calls(runtime.OpDown, env.dir("a")))
	assert.False(t, env.rt.Running(env.dir("a")))
	assert.Empty(t, env.holder())
	assert.Empty(t, env.sm.Running())
}

func TestStartRollbackFailureKeepsRecord(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	dir := env.dir("a")
	env.rt.SetError(runtime.OpUp, dir, errors.New("healthcheck container exited"))
	env.rt.SetUpFailureLeavesRunning(dir, true)
	env.rt.SetError(runtime.OpDown, dir, errors.New("daemon unreachable"))

	_, err := env.sm.Start(context.Background(), "a", false)
	require.Error(t, err)
	assert.Equal(t, KindStartFailed, KindOf(err))
	assert.Contains(t, err.Error(), "rollback")
	assert.Contains(t, err.Error(), "daemon unreachable")

	assert.True(t, env.rt.Running(dir))
	assert.Equal(t, "a", env.holder())
	assert.Len(t, env.sm.Running(), 1)
}

func TestDiscoveryReplacesAndKeepsOrphanTracked(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "b": true})
	ctx := context.Background()

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(env.dir("a")))
	writeManifest(t, env.root, "d", false, env.healthSrv.URL+"/ok")
	n, err := env.registry.Discover(env.root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names := []string{}
	for _, d := range env.registry.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"b", "d"}, names)

	// discovery never touches running state
	assert.Equal(t, "a", env.holder())

	_, err = env.sm.Start(ctx, "a", false)
	assert.Equal(t, KindUnknownService, KindOf(err))

	st, err := env.sm.Status(ctx, "a")
	require.NoError(t, err)
	assert.True(t, st.Orphaned)
	assert.True(t, st.IsRunning)

	running := env.sm.Running()
	require.Len(t, running, 1)
	assert.True(t, running[0].Orphaned)

	// b still cannot take the resource until a is actually down
	_, err = env.sm.Start(ctx, "b", false)
	assert.Equal(t, KindResourceConflict, KindOf(err))

	require.NoError(t, env.sm.Stop(ctx, "a"))
	assert.Empty(t, env.holder())
	_, err = env.sm.Status(ctx, "a")
	assert.Equal(t, KindUnknownService, KindOf(err))
}

func TestForceStartStopsOrphanedHolder(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "b": true})
	ctx := context.Background()

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(env.dir("a")))
	_, err = env.registry.Discover(env.root)
	require.NoError(t, err)

	_, err = env.sm.Start(ctx, "b", true)
	require.NoError(t, err)
	assert.Equal(t, "b", env.holder())
	assert.Equal(t, 1, env.rt.Calls(runtime.OpDown, env.dir("a")))
}

func TestStatusHealthIndependence(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": false})
	writeManifest(t, env.root, "sick", false, env.healthSrv.URL+"/bad")
	writeManifest(t, env.root, "gone", false, "http://127.0.0.1:1/health")
	_, err := env.registry.Discover(env.root)
	require.NoError(t, err)
	ctx := context.Background()

	st, err := env.sm.Status(ctx, "a")
	require.NoError(t, err)
	assert.False(t, st.IsRunning)
	assert.False(t, st.IsHealthy)
	assert.Equal(t, models.StateStopped, st.State)

	for _, name := range []string{"a", "sick", "gone"} {
		_, err := env.sm.Start(ctx, name, false)
		require.NoError(t, err)
	}

	st, err = env.sm.Status(ctx, "a")
	require.NoError(t, err)
	assert.True(t, st.IsRunning)
	assert.True(t, st.IsHealthy)
	assert.NotNil(t, st.StartedAt)

	for _, name := range []string{"sick", "gone"} {
		st, err := env.sm.Status(ctx, name)
		require.NoError(t, err)
		assert.True(t, st.IsRunning)
		assert.False(t, st.IsHealthy)
		assert.Equal(t, models.StateRunning, st.State)
	}
}

func TestStatusReportsRuntimeError(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": false})
	env.rt.SetError(runtime.OpPs, env.dir("a"), errors.New("cannot connect to the docker daemon"))

	st, err := env.sm.Status(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, st.IsRunning)
	assert.Contains(t, st.LastError, "cannot connect")
}

func TestStatusRepairsStaleRecord(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	ctx := context.Background()

	_, err := env.sm.Start(ctx, "a", false)
	require.NoError(t, err)
	// containers died behind our back
	env.rt.SetUp(env.dir("a"), false)

	st, err := env.sm.Status(ctx, "a")
	require.NoError(t, err)
	assert.False(t, st.IsRunning)
	assert.Empty(t, env.sm.Running())
	assert.Empty(t, env.holder())
	assert.True(t, env.events.has("a", models.ActionReconcile, models.OutcomeOK))
}

func TestReconcileAdoptsAndDrops(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true, "c": false})
	ctx := context.Background()

	env.rt.SetUp(env.dir("a"), true)
	env.rt.SetUp(env.dir("c"), true)
	env.sm.Reconcile(ctx)

	assert.Len(t, env.sm.Running(), 2)
	assert.Equal(t, "a", env.holder())
	assert.Equal(t, models.StateRunning, env.sm.State("a"))

	env.rt.SetUp(env.dir("a"), false)
	env.sm.Reconcile(ctx)

	running := env.sm.Running()
	require.Len(t, running, 1)
	assert.Equal(t, "c", running[0].Name)
	assert.Empty(t, env.holder())
}

func TestReconcileReleasesUnknownHolder(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": true})
	require.NoError(t, env.arbiter.TryAcquire("vanished"))

	env.sm.Reconcile(context.Background())
	assert.Empty(t, env.holder())
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"a": false})
	ctx := context.Background()
	env.rt.SetLogs(env.dir("a"), []string{"booting", "loading weights", "ready"})

	lines, err := env.sm.Logs(ctx, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"loading weights", "ready"}, lines)

	_, err = env.sm.Logs(ctx, "ghost", 2)
	assert.Equal(t, KindUnknownService, KindOf(err))

	env.rt.SetError(runtime.OpLogs, env.dir("a"), errors.New("no such project"))
	_, err = env.sm.Logs(ctx, "a", 2)
	assert.Equal(t, KindLogsUnavailable, KindOf(err))
}

func TestClampTail(t *testing.T) {
	assert.Equal(t, DefaultLogTail, ClampTail(0))
	assert.Equal(t, DefaultLogTail, ClampTail(-5))
	assert.Equal(t, 1, ClampTail(1))
	assert.Equal(t, MaxLogTail, ClampTail(MaxLogTail+1))
}

func TestForceStartBudgetCoversEveryForcedStop(t *testing.T) {
	tm := Timeouts{Up: 100 * time.Second, Down: 60 * time.Second, Ps: 5 * time.Second, Logs: time.Second}
	budget := tm.ForceStartBudget()
	assert.GreaterOrEqual(t, budget, maxForceAttempts*tm.Down+tm.Up)
	assert.Equal(t, 5*time.Second+3*(60*time.Second+15*time.Second)+100*time.Second+5*time.Second+60*time.Second, budget)

	// 零值使用默认超时
	assert.Equal(t, Timeouts{}.withDefaults().ForceStartBudget(), Timeouts{}.ForceStartBudget())
	assert.Greater(t, Timeouts{}.ForceStartBudget(), 5*time.Minute)
}
