package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Finger string

const (
	FingerRightThumb  Finger = "pulgar_derecho"
	FingerRightIndex  Finger = "indice_derecho"
	FingerRightMiddle Finger = "medio_derecho"
	FingerRightRing   Finger = "anular_derecho"
	FingerRightLittle Finger = "menique_derecho"
	FingerLeftThumb   Finger = "pulgar_izquierdo"
	FingerLeftIndex   Finger = "indice_izquierdo"
	FingerLeftMiddle  Finger = "medio_izquierdo"
	FingerLeftRing    Finger = "anular_izquierdo"
	FingerLeftLittle  Finger = "menique_izquierdo"
)

var Fingers = []Finger{
	FingerRightThumb, FingerRightIndex, FingerRightMiddle, FingerRightRing, FingerRightLittle,
	FingerLeftThumb, FingerLeftIndex, FingerLeftMiddle, FingerLeftRing, FingerLeftLittle,
}

func (f Finger) Valid() bool {
	for _, known := range Fingers {
		if f == known {
			return true
		}
	}
	return false
}

// Label is the human readable finger name used in messages.
func (f Finger) Label() string {
	return strings.ReplaceAll(string(f), "_", " ")
}

const DefaultDeviceModel = "DigitalPersona 4500"

// Biometric is an enrolled fingerprint template. Template holds the encrypted
// blob and never leaves the server. At most one active row exists per
// (user, finger).
type Biometric struct {
	ID            string            `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string            `gorm:"type:uuid;index;uniqueIndex:uniq_active_finger,where:active = true" json:"usuarioId"`
	Finger        Finger            `gorm:"size:32;uniqueIndex:uniq_active_finger,where:active = true" json:"dedo"`
	Template      string            `gorm:"type:text" json:"-"`
	Quality       int               `json:"calidad"`
	DeviceModel   string            `json:"modelo"`
	DeviceSerial  string            `json:"serial,omitempty"`
	DeviceVersion string            `json:"version,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	Active        bool              `gorm:"index" json:"activo"`
	LastUsedAt    *time.Time        `json:"ultimoUso"`
	UseCount      int               `json:"vecesUsado"`
	CreatedAt     time.Time         `json:"fechaRegistro"`
	UpdatedAt     time.Time         `json:"updatedAt"`

	User *User `gorm:"foreignKey:UserID" json:"usuario,omitempty"`
}

func (b *Biometric) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
