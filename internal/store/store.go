package store

import (
	"context"
	"errors"
	"time"

	"watchpost/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// StatusUpdate carries the liveness fields a probe tick writes back to
// a target row.
type StatusUpdate struct {
	Outcome   string
	LatencyMS *int
	CheckedAt time.Time
	Error     *string
}

// CertificateUpdate carries the certificate fields a TLS probe tick
// writes back to a domain target row.
type CertificateUpdate struct {
	State         string
	DaysRemaining *int
	Outcome       string
	CheckedAt     time.Time
	Error         *string
}

// LogEntry is one append-only monitoring log row.
type LogEntry struct {
	Outcome    string
	LatencyMS  *int
	StatusCode *int
	Error      *string
	Time       time.Time
}

// Storer defines the persistence operations the scheduler, the probes
// and the API layer need from the target store.
type Storer interface {
	ListActiveTargets(ctx context.Context) ([]models.Target, error)
	GetTarget(ctx context.Context, id int) (*models.Target, error)
	GetProxy(ctx context.Context, id int) (*models.Proxy, error)

	CreateTarget(ctx context.Context, t *models.Target) error
	UpdateTarget(ctx context.Context, t *models.Target) error
	DeleteTarget(ctx context.Context, id int) error
	ListTargets(ctx context.Context, userID int) ([]models.Target, error)

	UpdateStatus(ctx context.Context, targetID int, u StatusUpdate) error
	UpdateCertificate(ctx context.Context, targetID int, u CertificateUpdate) error
	AppendLog(ctx context.Context, targetID int, e LogEntry) error
	ListLogs(ctx context.Context, targetID int, limit int) ([]models.MonitoringLog, error)

	// GetAlertPreference returns nil (not an error) when the user has
	// no preference row; callers apply process-wide defaults.
	GetAlertPreference(ctx context.Context, userID int) (*models.AlertPreference, error)

	// DeleteLogsBefore removes monitoring log rows older than cutoff
	// and reports how many were deleted.
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
