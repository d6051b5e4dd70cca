package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/directdebit/internal/clock"
	instalmentdomain "github.com/smallbiznis/directdebit/internal/instalment/domain"
	obsmetrics "github.com/smallbiznis/directdebit/internal/observability/metrics"
	"go.uber.org/zap"
)

type stubProcessor struct {
	mu        sync.Mutex
	due       []instalmentdomain.Task
	claimErr  error
	outcomes  map[string]instalmentdomain.Outcome
	errs      map[string]error
	processed []string
	lease     time.Duration
}

func (p *stubProcessor) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]instalmentdomain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lease = lease
	if p.claimErr != nil {
		return nil, p.claimErr
	}
	if limit < len(p.due) {
		return p.due[:limit], nil
	}
	return p.due, nil
}

func (p *stubProcessor) Process(_ context.Context, task instalmentdomain.Task) (instalmentdomain.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, task.ScheduleID)
	if err := p.errs[task.ScheduleID]; err != nil {
		return instalmentdomain.OutcomeFailed, err
	}
	if outcome, ok := p.outcomes[task.ScheduleID]; ok {
		return outcome, nil
	}
	return instalmentdomain.OutcomeDone, nil
}

type heldLocker struct {
	held     map[string]bool
	released []string
}

func (l *heldLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.held[key] {
		return "", false, nil
	}
	return "token-" + key, true, nil
}

func (l *heldLocker) Release(_ context.Context, key, _ string) error {
	l.released = append(l.released, key)
	return nil
}

func newTestScheduler(t *testing.T, proc TaskProcessor, locker *heldLocker) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	p := Params{
		Log:         zap.NewNop(),
		Instalments: proc,
		GenID:       node,
		Clock:       clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Config:      Config{BatchSize: 2, LockTTL: time.Minute},
	}
	if locker != nil {
		p.Locker = locker
	}
	s, err := New(p)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func tasks(ids ...string) []instalmentdomain.Task {
	out := make([]instalmentdomain.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, instalmentdomain.Task{GatewayID: "gocardless", OrderID: "o-" + id, ScheduleID: id})
	}
	return out
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunOnceProcessesClaimedBatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "directdebit", Environment: "test"})

	proc := &stubProcessor{due: tasks("IS1", "IS2", "IS3")}
	s := newTestScheduler(t, proc, nil)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(proc.processed) != 2 {
		t.Fatalf("expected batch size 2 to be honoured, processed %v", proc.processed)
	}
	if proc.lease != time.Minute {
		t.Fatalf("expected lease to equal lock ttl, got %s", proc.lease)
	}

	labels := map[string]string{"service": "directdebit", "env": "test", "job": JobInstalmentPoll, "resource": resourceInstalmentSchedule}
	if got := getCounterValue(t, registry, "directdebit_scheduler_batch_processed_total", labels); got != 2 {
		t.Fatalf("expected 2 processed, got %v", got)
	}
}

func TestLockedTaskIsDeferred(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "directdebit", Environment: "test"})

	proc := &stubProcessor{due: tasks("IS1", "IS2")}
	locker := &heldLocker{held: map[string]bool{"directdebit:instalment:gocardless:IS1": true}}
	s := newTestScheduler(t, proc, locker)

	if err := s.InstalmentPollJob(context.Background()); err != nil {
		t.Fatalf("poll job: %v", err)
	}
	if len(proc.processed) != 1 || proc.processed[0] != "IS2" {
		t.Fatalf("expected only IS2 to be processed, got %v", proc.processed)
	}
	if len(locker.released) != 1 || locker.released[0] != "directdebit:instalment:gocardless:IS2" {
		t.Fatalf("expected IS2 lock to be released, got %v", locker.released)
	}

	labels := map[string]string{"service": "directdebit", "env": "test", "job": JobInstalmentPoll, "reason": obsmetrics.SchedulerBatchDeferredReasonLockHeld}
	if got := getCounterValue(t, registry, "directdebit_scheduler_batch_deferred_total", labels); got != 1 {
		t.Fatalf("expected 1 deferred, got %v", got)
	}
}

func TestFailedTaskDoesNotStopBatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	boom := errors.New("boom")
	proc := &stubProcessor{due: tasks("IS1", "IS2"), errs: map[string]error{"IS1": boom}}
	s := newTestScheduler(t, proc, nil)

	err := s.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined poll error, got %v", err)
	}
	if len(proc.processed) != 2 {
		t.Fatalf("expected both tasks to be attempted, got %v", proc.processed)
	}
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "directdebit",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "directdebit",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "directdebit_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "directdebit",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "directdebit_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestClaimErrorIsReturned(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	claimErr := errors.New("db down")
	s := newTestScheduler(t, &stubProcessor{claimErr: claimErr}, nil)
	if err := s.RunOnce(context.Background()); !errors.Is(err, claimErr) {
		t.Fatalf("expected claim error, got %v", err)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
