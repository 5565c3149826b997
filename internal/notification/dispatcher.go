package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"watchpost/internal/config"
	"watchpost/internal/store"
)

// Dispatcher sends email and SNMP alerts according to a user's alert
// preference, falling back field-by-field to process-wide defaults.
// Every failure is logged, never returned: the scheduler treats alert
// dispatch as fire-and-forget.
type Dispatcher struct {
	store    store.Storer
	logger   *zap.Logger
	defaults config.AlertConfig
	email    EmailSender
	trap     TrapSender
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEmailSender overrides the outbound mail transport.
func WithEmailSender(s EmailSender) Option {
	return func(d *Dispatcher) { d.email = s }
}

// WithTrapSender overrides the SNMP transport.
func WithTrapSender(s TrapSender) Option {
	return func(d *Dispatcher) { d.trap = s }
}

// NewDispatcher creates a dispatcher wired to the real SMTP and SNMP
// transports.
func NewDispatcher(st store.Storer, logger *zap.Logger, defaults config.AlertConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		logger:   logger,
		defaults: defaults,
		email:    NewSMTPSender(defaults),
		trap:     NewSNMPTrapSender(5 * time.Second),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// effective is a fully resolved alert preference.
type effective struct {
	EmailTo         string
	SNMPHost        string
	SNMPPort        int
	SNMPCommunity   string
	OIDAPIDown      string
	OIDCertExpiring string
	CertWarnDays    int
}

// resolve merges a user's preference row over the process defaults. A
// missing row, or a lookup failure, falls back to defaults entirely.
func (d *Dispatcher) resolve(ctx context.Context, userID int) effective {
	eff := effective{
		EmailTo:         d.defaults.EmailTo,
		SNMPHost:        d.defaults.SNMPHost,
		SNMPPort:        d.defaults.SNMPPort,
		SNMPCommunity:   d.defaults.SNMPCommunity,
		OIDAPIDown:      d.defaults.OIDAPIDown,
		OIDCertExpiring: d.defaults.OIDCertExpiring,
		CertWarnDays:    d.defaults.CertWarnDays,
	}

	pref, err := d.store.GetAlertPreference(ctx, userID)
	if err != nil {
		d.logger.Warn("failed to load alert preference, using defaults",
			zap.Int("user_id", userID), zap.Error(err))
		return eff
	}
	if pref == nil {
		return eff
	}

	if pref.EmailTo != "" {
		eff.EmailTo = pref.EmailTo
	}
	if pref.SNMPHost != "" {
		eff.SNMPHost = pref.SNMPHost
	}
	if pref.SNMPPort != 0 {
		eff.SNMPPort = pref.SNMPPort
	}
	if pref.SNMPCommunity != "" {
		eff.SNMPCommunity = pref.SNMPCommunity
	}
	if pref.OIDAPIDown != "" {
		eff.OIDAPIDown = pref.OIDAPIDown
	}
	if pref.OIDCertExpiring != "" {
		eff.OIDCertExpiring = pref.OIDCertExpiring
	}
	if pref.CertWarnDays != nil && *pref.CertWarnDays > 0 {
		eff.CertWarnDays = *pref.CertWarnDays
	}
	return eff
}

// CertWarnDays resolves the effective certificate warning threshold
// for a user.
func (d *Dispatcher) CertWarnDays(ctx context.Context, userID int) int {
	return d.resolve(ctx, userID).CertWarnDays
}

// NotifyAPIDown alerts that an API target stopped answering.
func (d *Dispatcher) NotifyAPIDown(ctx context.Context, userID int, targetName, targetURL, errMsg string) {
	eff := d.resolve(ctx, userID)

	subject := fmt.Sprintf("Target down: %s", targetName)
	text := fmt.Sprintf("The API target %s (%s) is down.\n\nError: %s\nTime: %s\n",
		targetName, targetURL, errMsg, time.Now().UTC().Format(time.RFC3339))
	html := fmt.Sprintf(
		"<h2>Target down: %s</h2><p>The API target <a href=%q>%s</a> is down.</p><p><b>Error:</b> %s</p>",
		targetName, targetURL, targetURL, errMsg)

	d.sendEmail(ctx, EmailMessage{To: eff.EmailTo, Subject: subject, Text: text, HTML: html})
	d.sendTrap(ctx, eff, eff.OIDAPIDown,
		fmt.Sprintf("API target %s is down: %s", targetURL, errMsg))
}

// NotifyCertExpiring alerts that a domain target's certificate is
// expiring or already expired.
func (d *Dispatcher) NotifyCertExpiring(ctx context.Context, userID int, targetName, targetURL string, notAfter time.Time, daysRemaining int) {
	eff := d.resolve(ctx, userID)

	state := "expiring"
	if daysRemaining <= 0 {
		state = "expired"
	}

	subject := fmt.Sprintf("Certificate %s: %s", state, targetName)
	text := fmt.Sprintf("The certificate for %s (%s) is %s.\n\nExpiry: %s\nDays remaining: %d\n",
		targetName, targetURL, state, notAfter.Format(time.RFC3339), daysRemaining)
	html := fmt.Sprintf(
		"<h2>Certificate %s: %s</h2><p>The certificate for <a href=%q>%s</a> expires on %s (%d days remaining).</p>",
		state, targetName, targetURL, targetURL, notAfter.Format("2006-01-02"), daysRemaining)

	d.sendEmail(ctx, EmailMessage{To: eff.EmailTo, Subject: subject, Text: text, HTML: html})
	d.sendTrap(ctx, eff, eff.OIDCertExpiring,
		fmt.Sprintf("certificate for %s %s, expiry %s, %d days remaining",
			targetURL, state, notAfter.Format("2006-01-02"), daysRemaining))
}

func (d *Dispatcher) sendEmail(ctx context.Context, msg EmailMessage) {
	if msg.To == "" {
		d.logger.Warn("no alert email recipient configured, skipping email")
		return
	}
	if s, ok := d.email.(*SMTPSender); ok && !s.Configured() {
		d.logger.Warn("smtp transport not configured, skipping email",
			zap.String("to", msg.To))
		return
	}
	if err := d.email.Send(ctx, msg); err != nil {
		d.logger.Error("failed to send alert email",
			zap.String("to", msg.To), zap.Error(err))
	}
}

func (d *Dispatcher) sendTrap(ctx context.Context, eff effective, oid, value string) {
	if eff.SNMPHost == "" || oid == "" {
		d.logger.Warn("snmp receiver or OID not configured, skipping trap")
		return
	}
	if !ValidOID(oid) {
		d.logger.Warn("malformed OID, trap not sent", zap.String("oid", oid))
		return
	}
	if err := d.trap.SendTrap(ctx, Trap{
		Host:      eff.SNMPHost,
		Port:      eff.SNMPPort,
		Community: eff.SNMPCommunity,
		OID:       oid,
		Value:     value,
	}); err != nil {
		d.logger.Error("failed to send snmp trap",
			zap.String("host", eff.SNMPHost), zap.Error(err))
	}
}
