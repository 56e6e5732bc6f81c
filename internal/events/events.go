package events

import (
	"context"
	"errors"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/models"
)

const (
	TypeCheckIn  = "attendance.ingreso"
	TypeCheckOut = "attendance.salida"
)

// Event is an attendance state change fanned out to dashboards, the message
// bus and mail.
type Event struct {
	Type       string             `json:"type"`
	At         time.Time          `json:"at"`
	Attendance *models.Attendance `json:"asistencia"`
	User       *models.User       `json:"usuario,omitempty"`
}

// InHouseID is the room the event is scoped to, empty when unassigned.
func (e Event) InHouseID() string {
	if e.Attendance == nil || e.Attendance.InHouseID == nil {
		return ""
	}
	return *e.Attendance.InHouseID
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
