package models

import "time"

// Target kinds. Kind is fixed at creation time; changing the kind of an
// existing target is modeled as delete+recreate by the API layer.
const (
	KindAPI    = "api"
	KindDomain = "domain"
)

// Probe outcomes.
const (
	OutcomeUp      = "up"
	OutcomeDown    = "down"
	OutcomePending = "pending"
)

// Certificate states for domain targets.
const (
	CertValid         = "valid"
	CertWarning       = "warning"
	CertExpired       = "expired"
	CertUnavailable   = "unavailable"
	CertError         = "error"
	CertNotApplicable = "not_applicable"
	CertNotReachable  = "not_reachable"
)

// Target represents a monitored endpoint
type Target struct {
	ID       int    `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID   int    `json:"user_id" gorm:"not null;index"`
	Name     string `json:"name" gorm:"not null"`
	URL      string `json:"url" gorm:"not null"`
	Kind     string `json:"kind" gorm:"not null;index"`
	Interval int    `json:"interval" gorm:"default:5"` // minutes
	ProxyID  *int   `json:"proxy_id"`
	Active   bool   `json:"active" gorm:"default:true;index"`

	// Status fields, written only by probe ticks
	LastOutcome       string     `json:"last_outcome" gorm:"default:'pending'"`
	LastLatencyMS     *int       `json:"last_latency_ms"`
	LastCheckedAt     *time.Time `json:"last_checked_at"`
	LastError         *string    `json:"last_error"`
	CertState         string     `json:"cert_state" gorm:"default:'not_applicable'"`
	CertDaysRemaining *int       `json:"cert_days_remaining"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships (optional, for eager loading)
	User  User            `json:"-" gorm:"foreignKey:UserID"`
	Proxy *Proxy          `json:"-" gorm:"foreignKey:ProxyID"`
	Logs  []MonitoringLog `json:"-" gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Target
func (Target) TableName() string {
	return "targets"
}
