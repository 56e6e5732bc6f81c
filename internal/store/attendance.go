package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

// CreateOpenAttendance locks any open record the user has for the day and
// only inserts when there is none. The partial unique index on
// (user_id, work_date) WHERE status = 'open' backs this up across replicas.
func (s *Store) CreateOpenAttendance(ctx context.Context, rec *models.Attendance) (*models.Attendance, error) {
	var existing *models.Attendance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open models.Attendance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND work_date = ? AND status = ?", rec.UserID, rec.WorkDate, models.AttendanceOpen).
			Take(&open).Error
		if err == nil {
			existing = &open
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(rec).Error
	})
	if IsUniqueViolation(err) {
		return s.FindOpenAttendance(ctx, rec.UserID, rec.WorkDate)
	}
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) FindOpenAttendance(ctx context.Context, userID, workDate string) (*models.Attendance, error) {
	return first[models.Attendance](s.db.WithContext(ctx).
		Preload("User").
		Preload("InHouse").
		Where("user_id = ? AND work_date = ? AND status = ?", userID, workDate, models.AttendanceOpen))
}

func (s *Store) GetAttendance(ctx context.Context, id string) (*models.Attendance, error) {
	return first[models.Attendance](s.db.WithContext(ctx).
		Preload("User").
		Preload("InHouse").
		Where("id = ?", id))
}

func (s *Store) CloseAttendance(ctx context.Context, rec *models.Attendance) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("id = ? AND status = ?", rec.ID, models.AttendanceOpen).
		Updates(map[string]any{
			"status":         rec.Status,
			"check_out_at":   rec.CheckOutAt,
			"check_out_time": rec.CheckOutTime,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Attendance{})
	return res.RowsAffected > 0, res.Error
}

func applyRange(q *gorm.DB, column, from, to string) *gorm.DB {
	if from != "" {
		q = q.Where(column+" >= ?", from)
	}
	if to != "" {
		q = q.Where(column+" <= ?", to)
	}
	return q
}

func (s *Store) ListAttendance(ctx context.Context, f attendance.Filter) ([]models.Attendance, error) {
	q := s.db.WithContext(ctx).Preload("User").Preload("InHouse")
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	q = applyRange(q, "work_date", f.From, f.To)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.Attendance
	err := q.Order("check_in_at DESC").Find(&out).Error
	return out, err
}

func (s *Store) CountAttendance(ctx context.Context, from, to string) (int64, error) {
	var n int64
	q := applyRange(s.db.WithContext(ctx).Model(&models.Attendance{}), "work_date", from, to)
	err := q.Count(&n).Error
	return n, err
}

func (s *Store) CountAttendanceByUser(ctx context.Context, from, to string) ([]attendance.UserCount, error) {
	q := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Select("attendances.user_id, users.first_name, users.last_name, users.area_id, " +
			"COUNT(*) AS total, MAX(attendances.work_date) AS last_date").
		Joins("JOIN users ON users.id = attendances.user_id")
	q = applyRange(q, "attendances.work_date", from, to)

	var rows []attendance.UserCount
	err := q.Group("attendances.user_id, users.first_name, users.last_name, users.area_id").
		Order("total DESC").
		Scan(&rows).Error
	return rows, err
}

func (s *Store) DailyAttendanceSummary(ctx context.Context, from, to string) ([]attendance.DaySummary, error) {
	q := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Select("work_date AS date, COUNT(*) AS total, COUNT(DISTINCT user_id) AS unique_users")
	q = applyRange(q, "work_date", from, to)

	var rows []attendance.DaySummary
	err := q.Group("work_date").Order("work_date ASC").Scan(&rows).Error
	return rows, err
}
