package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Area struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex" json:"nombre"`
	Description string    `json:"descripcion"`
	Code        string    `gorm:"uniqueIndex" json:"codigo"`
	AdminID     *string   `gorm:"type:uuid;index" json:"administradorId"`
	Active      bool      `gorm:"index" json:"activo"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (a *Area) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
