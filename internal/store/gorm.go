package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"watchpost/internal/models"
)

// GormStore is the Postgres-backed Storer implementation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store on top of an open GORM connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListActiveTargets(ctx context.Context) ([]models.Target, error) {
	var targets []models.Target
	err := s.db.WithContext(ctx).Where("active = ?", true).Find(&targets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active targets: %w", err)
	}
	return targets, nil
}

func (s *GormStore) GetTarget(ctx context.Context, id int) (*models.Target, error) {
	var target models.Target
	err := s.db.WithContext(ctx).First(&target, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target %d: %w", id, err)
	}
	return &target, nil
}

func (s *GormStore) GetProxy(ctx context.Context, id int) (*models.Proxy, error) {
	var proxy models.Proxy
	err := s.db.WithContext(ctx).First(&proxy, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proxy %d: %w", id, err)
	}
	return &proxy, nil
}

func (s *GormStore) CreateTarget(ctx context.Context, t *models.Target) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateTarget(ctx context.Context, t *models.Target) error {
	result := s.db.WithContext(ctx).Model(&models.Target{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"name":     t.Name,
			"url":      t.URL,
			"interval": t.Interval,
			"proxy_id": t.ProxyID,
			"active":   t.Active,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update target %d: %w", t.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteTarget(ctx context.Context, id int) error {
	result := s.db.WithContext(ctx).Delete(&models.Target{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete target %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListTargets(ctx context.Context, userID int) ([]models.Target, error) {
	var targets []models.Target
	q := s.db.WithContext(ctx)
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Order("id").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return targets, nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, targetID int, u StatusUpdate) error {
	err := s.db.WithContext(ctx).Model(&models.Target{}).
		Where("id = ?", targetID).
		Updates(map[string]interface{}{
			"last_outcome":    u.Outcome,
			"last_latency_ms": u.LatencyMS,
			"last_checked_at": u.CheckedAt,
			"last_error":      u.Error,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update status for target %d: %w", targetID, err)
	}
	return nil
}

func (s *GormStore) UpdateCertificate(ctx context.Context, targetID int, u CertificateUpdate) error {
	err := s.db.WithContext(ctx).Model(&models.Target{}).
		Where("id = ?", targetID).
		Updates(map[string]interface{}{
			"cert_state":          u.State,
			"cert_days_remaining": u.DaysRemaining,
			"last_outcome":        u.Outcome,
			"last_checked_at":     u.CheckedAt,
			"last_error":          u.Error,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update certificate for target %d: %w", targetID, err)
	}
	return nil
}

func (s *GormStore) AppendLog(ctx context.Context, targetID int, e LogEntry) error {
	row := models.MonitoringLog{
		TargetID:   targetID,
		Outcome:    e.Outcome,
		LatencyMS:  e.LatencyMS,
		StatusCode: e.StatusCode,
		Error:      e.Error,
		Time:       e.Time,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append log for target %d: %w", targetID, err)
	}
	return nil
}

func (s *GormStore) ListLogs(ctx context.Context, targetID int, limit int) ([]models.MonitoringLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []models.MonitoringLog
	err := s.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("time DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for target %d: %w", targetID, err)
	}
	return logs, nil
}

func (s *GormStore) GetAlertPreference(ctx context.Context, userID int) (*models.AlertPreference, error) {
	var pref models.AlertPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert preference for user %d: %w", userID, err)
	}
	return &pref, nil
}

func (s *GormStore) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("time < ?", cutoff).
		Delete(&models.MonitoringLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
