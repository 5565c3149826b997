package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"watchpost/internal/models"
)

// TLSProbe inspects the certificate a domain target presents.
type TLSProbe struct {
	timeout time.Duration
	now     func() time.Time
}

// NewTLSProbe creates a TLS probe with a bounded handshake timeout.
func NewTLSProbe(timeout time.Duration) *TLSProbe {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TLSProbe{timeout: timeout, now: time.Now}
}

// Kind returns the target kind this probe handles
func (t *TLSProbe) Kind() string {
	return models.KindDomain
}

// Check opens a TLS connection to the target host and classifies the
// leaf certificate. Verification is disabled at the transport level:
// the point is to inspect whatever the server presents, so self-signed
// and expired certificates must survive the handshake.
func (t *TLSProbe) Check(ctx context.Context, in Input) Result {
	result := Result{
		CheckedAt: t.now().UTC(),
	}

	parsed, err := url.Parse(in.Target.URL)
	if err != nil {
		result.Outcome = models.OutcomeDown
		result.CertState = models.CertError
		result.Error = strPtr(fmt.Sprintf("invalid target URL: %v", err))
		return result
	}

	// Non-TLS targets are not down merely for lacking a certificate.
	if !strings.EqualFold(parsed.Scheme, "https") {
		result.Outcome = models.OutcomeUp
		result.CertState = models.CertNotApplicable
		return result
	}

	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = "443"
	}

	dialer := &net.Dialer{Timeout: t.timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, port), &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true,
	})
	if err != nil {
		result.Outcome = models.OutcomeDown
		result.CertState = models.CertNotReachable
		result.Error = strPtr(fmt.Sprintf("connection failed: %v", err))
		return result
	}
	defer conn.Close()

	// Handshake completed: the host is up regardless of what the
	// certificate itself looks like.
	result.Outcome = models.OutcomeUp

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		result.CertState = models.CertUnavailable
		result.Error = strPtr("server presented no certificate")
		return result
	}

	state, days := ClassifyCertificate(certs[0], t.now(), in.CertWarnDays)
	result.CertState = state
	result.CertDaysRemaining = intPtr(days)
	notAfter := certs[0].NotAfter
	result.CertNotAfter = &notAfter
	if state == models.CertExpired {
		result.Error = strPtr(fmt.Sprintf("certificate expired on %s", certs[0].NotAfter.Format(time.RFC3339)))
	}

	return result
}

// ClassifyCertificate buckets a leaf certificate by its remaining
// validity window. Days remaining is ceil((notAfter - now) / 24h), so
// a certificate expiring later today still reports one day left.
func ClassifyCertificate(cert *x509.Certificate, now time.Time, warnDays int) (string, int) {
	remaining := cert.NotAfter.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}

	switch {
	case cert.NotAfter.Before(now):
		return models.CertExpired, days
	case days <= warnDays:
		return models.CertWarning, days
	default:
		return models.CertValid, days
	}
}
