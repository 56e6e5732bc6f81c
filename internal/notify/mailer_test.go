package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-gomail/gomail"

	"github.com/zaqqye/inhouse_attendance/internal/events"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

type captureSender struct {
	sent  chan *gomail.Message
	block chan struct{}
	err   error
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(chan *gomail.Message, 8)}
}

func (s *captureSender) DialAndSend(m ...*gomail.Message) error {
	if s.block != nil {
		<-s.block
	}
	for _, msg := range m {
		s.sent <- msg
	}
	return s.err
}

func checkIn() events.Event {
	return events.Event{
		Type: events.TypeCheckIn,
		At:   time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC),
		User: &models.User{FirstName: "Ana", LastName: "Gómez"},
		Attendance: &models.Attendance{
			CheckInTime: "08:30:00",
			Method:      models.MethodBiometric,
			InHouse:     &models.InHouse{Name: "Planta Norte"},
		},
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func running(t *testing.T, m *Mailer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMailerSendsOnCheckIn(t *testing.T) {
	sender := newCaptureSender()
	m := NewMailer(sender, "noreply@example.com", []string{"rrhh@example.com"}, quiet())
	running(t, m)

	if err := m.Publish(context.Background(), checkIn()); err != nil {
		t.Fatal(err)
	}
	var msg *gomail.Message
	select {
	case msg = <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"rrhh@example.com", "Planta Norte", "08:30:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestMailerIgnoresCheckOut(t *testing.T) {
	sender := newCaptureSender()
	m := NewMailer(sender, "noreply@example.com", []string{"rrhh@example.com"}, quiet())
	ev := checkIn()
	ev.Type = events.TypeCheckOut
	if err := m.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(m.queue) != 0 {
		t.Fatal("checkout must not queue mail")
	}
}

func TestPublishDoesNotWaitForSMTP(t *testing.T) {
	sender := newCaptureSender()
	sender.block = make(chan struct{})
	sender.err = errors.New("smtp down")
	m := NewMailer(sender, "noreply@example.com", []string{"a@example.com"}, quiet())
	m.queue = make(chan *gomail.Message, 1)
	running(t, m)
	defer close(sender.block)

	start := time.Now()
	if err := m.Publish(context.Background(), checkIn()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("publish blocked for %s", elapsed)
	}

	// The worker holds one message in a stalled dial; the queue then fills.
	deadline := time.Now().Add(2 * time.Second)
	var err error
	for time.Now().Before(deadline) {
		if err = m.Publish(context.Background(), checkIn()); errors.Is(err, ErrQueueFull) {
			break
		}
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestNewSMTPMailerRequiresHost(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{Username: "x"}, quiet()); err == nil {
		t.Fatal("expected error")
	}
}
