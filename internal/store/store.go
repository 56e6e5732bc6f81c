package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

const uniqueViolation = "23505"

// Store is the gorm-backed persistence shared by the attendance ledger, the
// biometric service and the auth middleware. Lookups return (nil, nil) when
// the row does not exist.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapError turns unique violations into Conflict errors.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return apperr.Conflict(msg).Wrap(err)
	}
	return err
}

func first[T any](q *gorm.DB) (*T, error) {
	var out T
	err := q.Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*models.User, error) {
	return first[models.User](s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *Store) FindActiveUser(ctx context.Context, id string) (*models.User, error) {
	return first[models.User](s.db.WithContext(ctx).Where("id = ? AND active = ?", id, true))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return first[models.User](s.db.WithContext(ctx).Where("email = ?", email))
}

func (s *Store) CountActiveUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("active = ?", true).Count(&n).Error
	return n, err
}

func (s *Store) ListStaff(ctx context.Context, inHouseID string) ([]models.User, error) {
	q := s.db.WithContext(ctx).
		Where("active = ? AND role <> ?", true, models.RoleAdmin)
	if inHouseID != "" {
		members := s.db.Model(&models.InHouseMember{}).Select("user_id").Where("in_house_id = ?", inHouseID)
		q = q.Where("id IN (?)", members)
	}
	var users []models.User
	err := q.Order("first_name ASC").Find(&users).Error
	return users, err
}

func (s *Store) FindActiveInHouse(ctx context.Context, id string) (*models.InHouse, error) {
	return first[models.InHouse](s.db.WithContext(ctx).Where("id = ? AND active = ?", id, true))
}

func (s *Store) IsInHouseMember(ctx context.Context, inHouseID, userID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.InHouseMember{}).
		Where("in_house_id = ? AND user_id = ?", inHouseID, userID).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) InHouseIDsByArea(ctx context.Context, areaID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.InHouse{}).
		Where("area_id = ? AND active = ?", areaID, true).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *Store) FindInHouseByEmail(ctx context.Context, email string) (*models.InHouse, error) {
	return first[models.InHouse](s.db.WithContext(ctx).Where("email = ?", email))
}
