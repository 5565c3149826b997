package probe

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchpost/internal/models"
)

func domainTarget(url string) *models.Target {
	return &models.Target{ID: 2, UserID: 1, Name: "dom", URL: url, Kind: models.KindDomain, Interval: 60}
}

func TestTLSProbeNonHTTPSNotApplicable(t *testing.T) {
	p := NewTLSProbe(2 * time.Second)
	// Host does not even need to resolve: the scheme decides.
	result := p.Check(context.Background(), Input{
		Target:       domainTarget("http://plain.example"),
		CertWarnDays: 30,
	})

	assert.Equal(t, models.OutcomeUp, result.Outcome)
	assert.Equal(t, models.CertNotApplicable, result.CertState)
	assert.Nil(t, result.CertDaysRemaining)
	assert.Nil(t, result.Error)
}

func TestTLSProbeHandshakeInspectsSelfSignedCert(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	p := NewTLSProbe(5 * time.Second)
	result := p.Check(context.Background(), Input{
		Target:       domainTarget(ts.URL),
		CertWarnDays: 30,
	})

	// Verification is disabled: a self-signed cert must be inspected,
	// not rejected at handshake.
	assert.Equal(t, models.OutcomeUp, result.Outcome)
	require.NotNil(t, result.CertDaysRemaining)
	require.NotNil(t, result.CertNotAfter)
	assert.Contains(t, []string{models.CertValid, models.CertWarning}, result.CertState)
}

func TestTLSProbeUnreachableHost(t *testing.T) {
	p := NewTLSProbe(500 * time.Millisecond)
	result := p.Check(context.Background(), Input{
		Target:       domainTarget("https://127.0.0.1:1"),
		CertWarnDays: 30,
	})

	assert.Equal(t, models.OutcomeDown, result.Outcome)
	assert.Equal(t, models.CertNotReachable, result.CertState)
	assert.Nil(t, result.CertDaysRemaining)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "connection failed")
}

func TestClassifyCertificate(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		notAfter  time.Time
		warnDays  int
		wantState string
		wantDays  int
	}{
		{
			name:      "expiring in 5 days with 30 day threshold",
			notAfter:  now.Add(5 * 24 * time.Hour),
			warnDays:  30,
			wantState: models.CertWarning,
			wantDays:  5,
		},
		{
			name:      "expired yesterday",
			notAfter:  now.Add(-24 * time.Hour),
			warnDays:  30,
			wantState: models.CertExpired,
			wantDays:  -1,
		},
		{
			name:      "well within validity",
			notAfter:  now.Add(90 * 24 * time.Hour),
			warnDays:  30,
			wantState: models.CertValid,
			wantDays:  90,
		},
		{
			name:      "expiring later today rounds up to one day",
			notAfter:  now.Add(6 * time.Hour),
			warnDays:  30,
			wantState: models.CertWarning,
			wantDays:  1,
		},
		{
			name:      "exactly at threshold",
			notAfter:  now.Add(30 * 24 * time.Hour),
			warnDays:  30,
			wantState: models.CertWarning,
			wantDays:  30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{NotAfter: tt.notAfter}
			state, days := ClassifyCertificate(cert, now, tt.warnDays)
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantDays, days)
		})
	}
}
