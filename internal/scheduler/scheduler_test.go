package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"watchpost/internal/models"
	"watchpost/internal/probe"
	"watchpost/internal/store/storetest"
)

// fakeProbe counts ticks and returns a canned result.
type fakeProbe struct {
	kind   string
	result probe.Result

	mu        sync.Mutex
	ticks     int
	lastInput probe.Input
	panicMsg  string
	delay     time.Duration
}

func (p *fakeProbe) Kind() string { return p.kind }

func (p *fakeProbe) Check(ctx context.Context, in probe.Input) probe.Result {
	p.mu.Lock()
	p.ticks++
	p.lastInput = in
	panicMsg := p.panicMsg
	delay := p.delay
	p.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	result := p.result
	result.CheckedAt = time.Now().UTC()
	return result
}

func (p *fakeProbe) tickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

func (p *fakeProbe) input() probe.Input {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastInput
}

// fakeNotifier records alert calls.
type fakeNotifier struct {
	warnDays int

	mu       sync.Mutex
	apiDown  int
	certExp  int
	lastDays int
}

func (n *fakeNotifier) CertWarnDays(ctx context.Context, userID int) int {
	if n.warnDays == 0 {
		return 30
	}
	return n.warnDays
}

func (n *fakeNotifier) NotifyAPIDown(ctx context.Context, userID int, name, url, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.apiDown++
}

func (n *fakeNotifier) NotifyCertExpiring(ctx context.Context, userID int, name, url string, notAfter time.Time, days int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.certExp++
	n.lastDays = days
}

func (n *fakeNotifier) apiDownCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.apiDown
}

func (n *fakeNotifier) certExpCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.certExp
}

func upResult() probe.Result {
	latency := 12
	code := 200
	return probe.Result{
		Outcome:    models.OutcomeUp,
		LatencyMS:  &latency,
		StatusCode: &code,
	}
}

func newTestScheduler(t *testing.T, p *fakeProbe, n *fakeNotifier, fs *storetest.Fake, unit time.Duration) *Scheduler {
	t.Helper()
	s := New(fs, n, zap.NewNop(), []probe.Probe{p},
		WithTickUnit(unit),
		WithTickTimeout(5*time.Second),
	)
	t.Cleanup(s.StopAll)
	return s
}

func addTarget(fs *storetest.Fake, kind string, interval int) *models.Target {
	target := &models.Target{
		UserID:   1,
		Name:     "t",
		URL:      "https://service.example/health",
		Kind:     kind,
		Interval: interval,
		Active:   true,
	}
	_ = fs.CreateTarget(context.Background(), target)
	return target
}

func TestScheduleCadence(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 50*time.Millisecond)

	target := addTarget(fs, models.KindAPI, 2) // period 100ms
	s.Schedule(target)

	// Immediate tick is synchronous
	assert.Equal(t, 1, fp.tickCount())

	// Short of one interval: still only the immediate tick
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, fp.tickCount())

	// Past one interval: exactly two cumulative ticks
	require.Eventually(t, func() bool { return fp.tickCount() == 2 },
		200*time.Millisecond, 5*time.Millisecond)
}

func TestScheduleInactiveTargetIsNoop(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 10*time.Millisecond)

	target := addTarget(fs, models.KindAPI, 1)
	target.Active = false
	s.Schedule(target)

	assert.False(t, s.Scheduled(target.ID))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, fp.tickCount())
}

func TestStopHaltsTicks(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 30*time.Millisecond)

	target := addTarget(fs, models.KindAPI, 1)
	s.Schedule(target)
	require.Equal(t, 1, fp.tickCount())

	s.Stop(target.ID)
	assert.False(t, s.Scheduled(target.ID))

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, fp.tickCount())
}

func TestStopUnknownIDIsNoop(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 10*time.Millisecond)

	s.Stop(12345)
}

func TestRestartReplacesCadence(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 50*time.Millisecond)

	target := addTarget(fs, models.KindAPI, 1) // period 50ms
	s.Schedule(target)
	require.Equal(t, 1, fp.tickCount())

	// Stretch the interval: no tick from the old cadence may fire.
	target.Interval = 20 // period 1s
	s.Restart(target)
	require.Equal(t, 2, fp.tickCount()) // restart's immediate tick

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 2, fp.tickCount())
}

func TestScheduleTwiceKeepsOneTimer(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 50*time.Millisecond)

	target := addTarget(fs, models.KindAPI, 2) // period 100ms
	s.Schedule(target)
	s.Schedule(target)

	// Two immediate ticks, then a single live timer: exactly one
	// periodic tick in the first window, not two.
	require.Equal(t, 2, fp.tickCount())
	time.Sleep(130 * time.Millisecond)
	assert.Equal(t, 3, fp.tickCount())
}

func TestStartLoadsActiveTargets(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, time.Minute)

	active1 := addTarget(fs, models.KindAPI, 5)
	active2 := addTarget(fs, models.KindAPI, 5)
	inactive := addTarget(fs, models.KindAPI, 5)
	inactive.Active = false
	_ = fs.UpdateTarget(context.Background(), inactive)

	s.Start(context.Background())

	assert.True(t, s.Scheduled(active1.ID))
	assert.True(t, s.Scheduled(active2.ID))
	assert.False(t, s.Scheduled(inactive.ID))
	assert.Equal(t, 2, fp.tickCount())
}

func TestStartSurvivesLoadFailure(t *testing.T) {
	fs := storetest.New()
	fs.ListActiveErr = context.DeadlineExceeded
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, time.Minute)

	// Monitoring starts with zero targets rather than crashing.
	s.Start(context.Background())
	assert.Equal(t, 0, fp.tickCount())
}

func TestTickPanicForcesDownStatus(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, panicMsg: "boom"}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, time.Minute)

	target := addTarget(fs, models.KindAPI, 5)
	s.Schedule(target)

	updates := fs.StatusUpdates(target.ID)
	require.Len(t, updates, 1)
	assert.Equal(t, models.OutcomeDown, updates[0].Outcome)
	require.NotNil(t, updates[0].Error)
	assert.Contains(t, *updates[0].Error, "unexpected failure")
}

func TestAPIDownTriggersAlert(t *testing.T) {
	fs := storetest.New()
	errMsg := "request failed"
	down := probe.Result{Outcome: models.OutcomeDown, Error: &errMsg}
	fp := &fakeProbe{kind: models.KindAPI, result: down}
	fn := &fakeNotifier{}
	s := newTestScheduler(t, fp, fn, fs, time.Minute)

	target := addTarget(fs, models.KindAPI, 5)
	s.Schedule(target)

	require.Eventually(t, func() bool { return fn.apiDownCount() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestAPIUpDoesNotAlert(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	fn := &fakeNotifier{}
	s := newTestScheduler(t, fp, fn, fs, time.Minute)

	target := addTarget(fs, models.KindAPI, 5)
	s.Schedule(target)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, fn.apiDownCount())
}

func TestDomainWarningTriggersAlertAndPersistsCert(t *testing.T) {
	fs := storetest.New()
	days := 5
	notAfter := time.Now().Add(5 * 24 * time.Hour)
	fp := &fakeProbe{kind: models.KindDomain, result: probe.Result{
		Outcome:           models.OutcomeUp,
		CertState:         models.CertWarning,
		CertDaysRemaining: &days,
		CertNotAfter:      &notAfter,
	}}
	fn := &fakeNotifier{warnDays: 45}
	s := newTestScheduler(t, fp, fn, fs, time.Minute)

	target := addTarget(fs, models.KindDomain, 60)
	s.Schedule(target)

	// Effective threshold resolved through the notifier reaches the probe
	assert.Equal(t, 45, fp.input().CertWarnDays)

	certs := fs.CertificateUpdates(target.ID)
	require.Len(t, certs, 1)
	assert.Equal(t, models.CertWarning, certs[0].State)
	require.NotNil(t, certs[0].DaysRemaining)
	assert.Equal(t, 5, *certs[0].DaysRemaining)

	require.Eventually(t, func() bool { return fn.certExpCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, fn.lastDays)
}

func TestDomainValidCertDoesNotAlert(t *testing.T) {
	fs := storetest.New()
	days := 200
	fp := &fakeProbe{kind: models.KindDomain, result: probe.Result{
		Outcome:           models.OutcomeUp,
		CertState:         models.CertValid,
		CertDaysRemaining: &days,
	}}
	fn := &fakeNotifier{}
	s := newTestScheduler(t, fp, fn, fs, time.Minute)

	target := addTarget(fs, models.KindDomain, 60)
	s.Schedule(target)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, fn.certExpCount())
}

func TestProxyResolvedForAPITargets(t *testing.T) {
	fs := storetest.New()
	fs.Proxies[7] = &models.Proxy{ID: 7, Host: "proxy.internal", Port: 3128, Protocol: "http"}
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, time.Minute)

	target := addTarget(fs, models.KindAPI, 5)
	proxyID := 7
	target.ProxyID = &proxyID
	s.Schedule(target)

	in := fp.input()
	require.NotNil(t, in.Proxy)
	assert.Equal(t, "proxy.internal", in.Proxy.Host)
}

func TestMissingProxyProbesDirectly(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, time.Minute)

	target := addTarget(fs, models.KindAPI, 5)
	proxyID := 99
	target.ProxyID = &proxyID
	s.Schedule(target)

	assert.Equal(t, 1, fp.tickCount())
	assert.Nil(t, fp.input().Proxy)
}

func TestPersistenceFailureDoesNotUnschedule(t *testing.T) {
	fs := storetest.New()
	fs.UpdateStatusErr = context.DeadlineExceeded
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 30*time.Millisecond)

	target := addTarget(fs, models.KindAPI, 1)
	s.Schedule(target)

	// The write fails every tick; the schedule entry must survive and
	// keep trying on the next tick.
	require.Eventually(t, func() bool { return fp.tickCount() >= 2 },
		time.Second, 5*time.Millisecond)
	assert.True(t, s.Scheduled(target.ID))
}

func TestSlowTickSkipsOverlap(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult(), delay: 120 * time.Millisecond}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 30*time.Millisecond)

	target := addTarget(fs, models.KindAPI, 1) // period 30ms, tick takes 120ms
	go s.Schedule(target)                      // immediate tick blocks, run async

	// Over ~4 periods at most two ticks can have started; overlapping
	// fires are skipped, not queued.
	time.Sleep(140 * time.Millisecond)
	assert.LessOrEqual(t, fp.tickCount(), 2)
}

func TestEndToEndStatusAndLogHistory(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 50*time.Millisecond)

	target := addTarget(fs, models.KindAPI, 5) // period 250ms
	s.Schedule(target)

	// Immediately after scheduling the status row is populated
	stored, err := fs.GetTarget(context.Background(), target.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastCheckedAt)
	assert.Equal(t, models.OutcomeUp, stored.LastOutcome)
	firstChecked := *stored.LastCheckedAt
	assert.Equal(t, 1, fs.LogCount(target.ID))

	// One interval later: exactly two log rows, advanced checked-at
	require.Eventually(t, func() bool { return fs.LogCount(target.ID) == 2 },
		time.Second, 5*time.Millisecond)

	stored, err = fs.GetTarget(context.Background(), target.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastCheckedAt)
	assert.True(t, !stored.LastCheckedAt.Before(firstChecked))
}

func TestStopAllTearsDownEverything(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, 30*time.Millisecond)

	t1 := addTarget(fs, models.KindAPI, 1)
	t2 := addTarget(fs, models.KindAPI, 1)
	s.Schedule(t1)
	s.Schedule(t2)

	s.StopAll()
	assert.False(t, s.Scheduled(t1.ID))
	assert.False(t, s.Scheduled(t2.ID))

	count := fp.tickCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, fp.tickCount())
}

func TestUnknownKindPersistsDown(t *testing.T) {
	fs := storetest.New()
	fp := &fakeProbe{kind: models.KindAPI, result: upResult()}
	s := newTestScheduler(t, fp, &fakeNotifier{}, fs, time.Minute)

	target := addTarget(fs, "ping", 5)
	s.Schedule(target)

	updates := fs.StatusUpdates(target.ID)
	require.Len(t, updates, 1)
	assert.Equal(t, models.OutcomeDown, updates[0].Outcome)
	require.NotNil(t, updates[0].Error)
	assert.Contains(t, *updates[0].Error, "unknown target kind")
}
