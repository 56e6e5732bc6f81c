package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName string    `json:"nombre"`
	LastName  string    `json:"apellidos"`
	Email     string    `gorm:"uniqueIndex" json:"correo"`
	Phone     string    `json:"celular"`
	AreaID    *string   `gorm:"type:uuid;index" json:"areaId"`
	Role      Role      `gorm:"size:32;index" json:"rol"`
	Password  string    `json:"-"`
	Active    bool      `gorm:"index" json:"activo"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
