package probe

import (
	"context"
	"time"

	"watchpost/internal/models"
)

// Input carries everything a probe needs for one check. The scheduler
// resolves the proxy row and the effective certificate warning
// threshold before dispatching.
type Input struct {
	Target       *models.Target
	Proxy        *models.Proxy
	CertWarnDays int
}

// Result is the structured outcome of one check. Probes never return
// errors; every failure mode is encoded here and persisted by the
// caller.
type Result struct {
	Outcome    string
	LatencyMS  *int
	StatusCode *int
	Error      *string

	// Certificate fields, set only by the TLS probe
	CertState         string
	CertDaysRemaining *int
	CertNotAfter      *time.Time

	CheckedAt time.Time
}

// Probe is the check logic for one target kind.
type Probe interface {
	// Kind returns the target kind this probe handles ("api", "domain")
	Kind() string

	// Check performs one check. It must not panic and must not block
	// past the configured timeout.
	Check(ctx context.Context, in Input) Result
}

func intPtr(v int) *int {
	return &v
}

func strPtr(s string) *string {
	return &s
}
