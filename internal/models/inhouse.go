package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InHouse is a client company site where assigned users work.
type InHouse struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string `json:"nombre"`
	AreaID   string `gorm:"type:uuid;index" json:"areaId"`
	Manager  string `json:"encargado"`
	Email    string `gorm:"uniqueIndex" json:"correo"`
	Password string `json:"-"`
	Active   bool   `gorm:"index" json:"activo"`

	CanViewRealtime bool `json:"verTiempoReal"`
	CanViewHistory  bool `json:"verHistorial"`
	CanExport       bool `json:"exportarReportes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *InHouse) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}

// InHouseMember assigns a user to an In House.
type InHouseMember struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	InHouseID string    `gorm:"type:uuid;uniqueIndex:uniq_inhouse_user" json:"inHouseId"`
	UserID    string    `gorm:"type:uuid;uniqueIndex:uniq_inhouse_user;index" json:"usuarioId"`
	CreatedAt time.Time `json:"createdAt"`
}
