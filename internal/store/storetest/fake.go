// Package storetest provides an in-memory Storer for tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"watchpost/internal/models"
	"watchpost/internal/store"
)

// Fake is a thread-safe in-memory Storer. Probe ticks run on their own
// goroutines, so every method locks.
type Fake struct {
	mu sync.Mutex

	Targets map[int]*models.Target
	Proxies map[int]*models.Proxy
	Prefs   map[int]*models.AlertPreference

	statuses map[int][]store.StatusUpdate
	certs    map[int][]store.CertificateUpdate
	logs     map[int][]store.LogEntry

	nextID int

	// Error hooks
	ListActiveErr   error
	UpdateStatusErr error
}

// New creates an empty fake store.
func New() *Fake {
	return &Fake{
		Targets:  make(map[int]*models.Target),
		Proxies:  make(map[int]*models.Proxy),
		Prefs:    make(map[int]*models.AlertPreference),
		statuses: make(map[int][]store.StatusUpdate),
		certs:    make(map[int][]store.CertificateUpdate),
		logs:     make(map[int][]store.LogEntry),
		nextID:   1,
	}
}

func (f *Fake) ListActiveTargets(ctx context.Context) ([]models.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListActiveErr != nil {
		return nil, f.ListActiveErr
	}
	var out []models.Target
	for _, t := range f.Targets {
		if t.Active {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *Fake) GetTarget(ctx context.Context, id int) (*models.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Targets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *Fake) GetProxy(ctx context.Context, id int) (*models.Proxy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Proxies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) CreateTarget(ctx context.Context, t *models.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.nextID
	f.nextID++
	cp := *t
	f.Targets[t.ID] = &cp
	return nil
}

func (f *Fake) UpdateTarget(ctx context.Context, t *models.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.Targets[t.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Name = t.Name
	existing.URL = t.URL
	existing.Interval = t.Interval
	existing.ProxyID = t.ProxyID
	existing.Active = t.Active
	return nil
}

func (f *Fake) DeleteTarget(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Targets[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.Targets, id)
	delete(f.logs, id)
	return nil
}

func (f *Fake) ListTargets(ctx context.Context, userID int) ([]models.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Target
	for _, t := range f.Targets {
		if userID == 0 || t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *Fake) UpdateStatus(ctx context.Context, targetID int, u store.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateStatusErr != nil {
		return f.UpdateStatusErr
	}
	f.statuses[targetID] = append(f.statuses[targetID], u)
	if t, ok := f.Targets[targetID]; ok {
		t.LastOutcome = u.Outcome
		t.LastLatencyMS = u.LatencyMS
		checkedAt := u.CheckedAt
		t.LastCheckedAt = &checkedAt
		t.LastError = u.Error
	}
	return nil
}

func (f *Fake) UpdateCertificate(ctx context.Context, targetID int, u store.CertificateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certs[targetID] = append(f.certs[targetID], u)
	if t, ok := f.Targets[targetID]; ok {
		t.CertState = u.State
		t.CertDaysRemaining = u.DaysRemaining
		t.LastOutcome = u.Outcome
		checkedAt := u.CheckedAt
		t.LastCheckedAt = &checkedAt
		t.LastError = u.Error
	}
	return nil
}

func (f *Fake) AppendLog(ctx context.Context, targetID int, e store.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[targetID] = append(f.logs[targetID], e)
	return nil
}

func (f *Fake) ListLogs(ctx context.Context, targetID int, limit int) ([]models.MonitoringLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MonitoringLog
	for i, e := range f.logs[targetID] {
		out = append(out, models.MonitoringLog{
			ID:         i + 1,
			TargetID:   targetID,
			Outcome:    e.Outcome,
			LatencyMS:  e.LatencyMS,
			StatusCode: e.StatusCode,
			Error:      e.Error,
			Time:       e.Time,
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) GetAlertPreference(ctx context.Context, userID int) (*models.AlertPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Prefs[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, entries := range f.logs {
		var kept []store.LogEntry
		for _, e := range entries {
			if e.Time.Before(cutoff) {
				deleted++
			} else {
				kept = append(kept, e)
			}
		}
		f.logs[id] = kept
	}
	return deleted, nil
}

// LogCount reports the number of log entries recorded for a target.
func (f *Fake) LogCount(targetID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs[targetID])
}

// StatusUpdates returns a copy of the status updates recorded for a
// target.
func (f *Fake) StatusUpdates(targetID int) []store.StatusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.StatusUpdate(nil), f.statuses[targetID]...)
}

// CertificateUpdates returns a copy of the certificate updates
// recorded for a target.
func (f *Fake) CertificateUpdates(targetID int) []store.CertificateUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.CertificateUpdate(nil), f.certs[targetID]...)
}

var _ store.Storer = (*Fake)(nil)
