package database

import (
	"context"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/zaqqye/inhouse_attendance/internal/config"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/utils"
)

// SeedAdmin creates the first administrator when no admin exists yet.
func SeedAdmin(ctx context.Context, db *gorm.DB, cfg *config.Config, log *slog.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	first, last := splitName(cfg.AdminFullName)
	admin := models.User{
		FirstName: first,
		LastName:  last,
		Email:     strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		Password:  hashed,
		Role:      models.RoleAdmin,
		Active:    true,
	}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return err
	}
	log.InfoContext(ctx, "Seeded initial admin", "email", admin.Email)
	return nil
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i], strings.TrimSpace(full[i+1:])
	}
	return full, ""
}
