package models

import "time"

// AlertPreference holds one user's notification routing. Every field is
// optional; the dispatcher falls back field-by-field to process-wide
// defaults for anything left empty.
type AlertPreference struct {
	ID     int `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID int `json:"user_id" gorm:"uniqueIndex;not null"`

	EmailTo string `json:"email_to"`

	SNMPHost        string `json:"snmp_host"`
	SNMPPort        int    `json:"snmp_port"`
	SNMPCommunity   string `json:"snmp_community"`
	OIDAPIDown      string `json:"oid_api_down"`
	OIDCertExpiring string `json:"oid_cert_expiring"`

	CertWarnDays *int `json:"cert_warn_days"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

// TableName specifies the table name for AlertPreference
func (AlertPreference) TableName() string {
	return "alert_preferences"
}
