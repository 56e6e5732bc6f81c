package events

import (
	"context"
	"errors"
	"testing"

	"github.com/zaqqye/inhouse_attendance/internal/models"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestMultiPublishesToEverySink(t *testing.T) {
	boom := errors.New("broker down")
	a := &recorder{err: boom}
	b := &recorder{}

	err := Multi{a, nil, b}.Publish(context.Background(), Event{Type: TypeCheckIn})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain %v, got %v", boom, err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", len(a.got), len(b.got))
	}
}

func TestEventInHouseID(t *testing.T) {
	id := "site-1"
	if got := (Event{Attendance: &models.Attendance{InHouseID: &id}}).InHouseID(); got != id {
		t.Errorf("InHouseID() = %q", got)
	}
	if got := (Event{}).InHouseID(); got != "" {
		t.Errorf("InHouseID() on empty event = %q", got)
	}
}
