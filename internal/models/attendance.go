package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttendanceStatus string

const (
	AttendanceOpen   AttendanceStatus = "open"
	AttendanceClosed AttendanceStatus = "closed"
)

type CheckInMethod string

const (
	MethodPassword  CheckInMethod = "password"
	MethodBiometric CheckInMethod = "biometric"
)

// Attendance is one check-in/check-out pair. WorkDate is the local calendar
// day (YYYY-MM-DD) of the check-in; a user has at most one open record per day.
type Attendance struct {
	ID           string           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string           `gorm:"type:uuid;index;uniqueIndex:uniq_open_attendance,where:status = 'open'" json:"usuarioId"`
	InHouseID    *string          `gorm:"type:uuid;index" json:"inHouseId"`
	WorkDate     string           `gorm:"size:10;index;uniqueIndex:uniq_open_attendance,where:status = 'open'" json:"fecha"`
	CheckInAt    time.Time        `json:"ingresoEn"`
	CheckOutAt   *time.Time       `json:"salidaEn"`
	CheckInTime  string           `gorm:"size:16" json:"horaIngreso"`
	CheckOutTime *string          `gorm:"size:16" json:"horaSalida"`
	Status       AttendanceStatus `gorm:"size:16;index" json:"estado"`
	Method       CheckInMethod    `gorm:"size:16" json:"metodo"`
	Confidence   *int             `json:"confianza,omitempty"`
	UserAgent    string           `json:"userAgent"`
	IP           string           `json:"ip"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`

	User    *User    `gorm:"foreignKey:UserID" json:"usuario,omitempty"`
	InHouse *InHouse `gorm:"foreignKey:InHouseID" json:"inHouse,omitempty"`
}

func (a *Attendance) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *Attendance) IsOpen() bool {
	return a.Status == AttendanceOpen
}
