package models

import "time"

// MonitoringLog is one append-only probe result row. Rows are never
// updated and are removed only by the retention job or by cascade when
// the owning target is deleted.
type MonitoringLog struct {
	ID         int     `json:"id" gorm:"primaryKey;autoIncrement"`
	TargetID   int     `json:"target_id" gorm:"not null;index:idx_target_time"`
	Outcome    string  `json:"outcome" gorm:"not null"`
	LatencyMS  *int    `json:"latency_ms"`
	StatusCode *int    `json:"status_code"`
	Error      *string `json:"error"`

	Time time.Time `json:"time" gorm:"not null;index:idx_target_time,sort:desc"`
}

// TableName specifies the table name for MonitoringLog
func (MonitoringLog) TableName() string {
	return "monitoring_log"
}
