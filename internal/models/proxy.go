package models

import "time"

// Proxy holds an outbound proxy definition an API target can be probed
// through. Credentials are optional.
type Proxy struct {
	ID       int    `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID   int    `json:"user_id" gorm:"not null;index"`
	Host     string `json:"host" gorm:"not null"`
	Port     int    `json:"port" gorm:"not null"`
	Protocol string `json:"protocol" gorm:"default:'http'"` // http, https, socks5
	Username string `json:"username"`
	Password string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Proxy
func (Proxy) TableName() string {
	return "proxies"
}
