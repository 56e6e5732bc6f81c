package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/zaqqye/inhouse_attendance/internal/models"
)

func (s *Store) CreateBiometric(ctx context.Context, b *models.Biometric) error {
	err := s.db.WithContext(ctx).Create(b).Error
	return mapError(err, "El usuario ya tiene una huella registrada para este dedo")
}

func (s *Store) GetBiometric(ctx context.Context, id string) (*models.Biometric, error) {
	return first[models.Biometric](s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *Store) FindActiveBiometric(ctx context.Context, userID string, finger models.Finger) (*models.Biometric, error) {
	return first[models.Biometric](s.db.WithContext(ctx).
		Where("user_id = ? AND finger = ? AND active = ?", userID, finger, true))
}

func (s *Store) ListActiveBiometrics(ctx context.Context) ([]models.Biometric, error) {
	var out []models.Biometric
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("active = ?", true).
		Find(&out).Error
	return out, err
}

func (s *Store) ListUserBiometrics(ctx context.Context, userID string) ([]models.Biometric, error) {
	var out []models.Biometric
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) DeactivateBiometric(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Biometric{}).
		Where("id = ?", id).
		Update("active", false).Error
}

func (s *Store) MarkBiometricUsed(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Biometric{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_used_at": at,
			"use_count":    gorm.Expr("use_count + 1"),
		}).Error
}

func (s *Store) CountActiveBiometrics(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Biometric{}).Where("active = ?", true).Count(&n).Error
	return n, err
}

func (s *Store) CountUsersWithBiometrics(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Biometric{}).
		Where("active = ?", true).
		Distinct("user_id").
		Count(&n).Error
	return n, err
}

func (s *Store) RecentBiometrics(ctx context.Context, limit int) ([]models.Biometric, error) {
	var out []models.Biometric
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("active = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) MostUsedBiometrics(ctx context.Context, limit int) ([]models.Biometric, error) {
	var out []models.Biometric
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("active = ? AND last_used_at IS NOT NULL", true).
		Order("last_used_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
