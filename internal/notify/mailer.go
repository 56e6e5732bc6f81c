package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-gomail/gomail"

	"github.com/zaqqye/inhouse_attendance/internal/events"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
)

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Recipients []string
}

const queueSize = 64

var ErrQueueFull = errors.New("notification queue is full")

// Mailer emails the configured recipients whenever someone checks in.
// Publish only queues the message; Run delivers it.
type Mailer struct {
	sender     Sender
	from       string
	recipients []string
	queue      chan *gomail.Message
	logger     *slog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is empty")
	}
	if cfg.Username == "" {
		return nil, errors.New("sender is empty")
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Port == 465 {
		d.SSL = true
	}
	return NewMailer(d, cfg.Username, cfg.Recipients, logger), nil
}

func NewMailer(sender Sender, from string, recipients []string, logger *slog.Logger) *Mailer {
	return &Mailer{
		sender:     sender,
		from:       from,
		recipients: recipients,
		queue:      make(chan *gomail.Message, queueSize),
		logger:     logger,
	}
}

func (m *Mailer) Publish(ctx context.Context, ev events.Event) error {
	if ev.Type != events.TypeCheckIn || len(m.recipients) == 0 {
		return nil
	}
	select {
	case m.queue <- m.compose(ev):
		return nil
	default:
		m.logger.WarnContext(ctx, "Dropping check-in notification", "queued", len(m.queue))
		return ErrQueueFull
	}
}

// Run sends queued notifications until ctx is done.
func (m *Mailer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.queue:
			if err := m.sender.DialAndSend(msg); err != nil {
				m.logger.ErrorContext(ctx, "Failed to send check-in notification", logging.ErrAttr(err))
			}
		}
	}
}

func (m *Mailer) compose(ev events.Event) *gomail.Message {
	name := "Usuario"
	if ev.User != nil {
		name = strings.TrimSpace(ev.User.FullName())
	}
	site := "sin In House"
	method := ""
	hour := ""
	if rec := ev.Attendance; rec != nil {
		if rec.InHouse != nil {
			site = rec.InHouse.Name
		} else if rec.InHouseID != nil {
			site = *rec.InHouseID
		}
		method = string(rec.Method)
		hour = rec.CheckInTime
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, "Control de Asistencia")
	msg.SetHeader("To", m.recipients...)
	msg.SetHeader("Subject", fmt.Sprintf("Ingreso registrado: %s", name))
	msg.SetBody("text/plain", fmt.Sprintf(
		"%s registró ingreso.\n\nIn House: %s\nFecha: %s\nHora: %s\nMetodo: %s\n",
		name, site, ev.At.Format("2006-01-02"), hour, method,
	))
	return msg
}
