// Package terminal runs the unattended check-in station: wait for a reader,
// capture a finger, ask the server who it is, show the result, repeat.
package terminal

import (
	"context"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/biometric"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/reader"
)

const notRecognized = "Huella no reconocida"

type Verifier interface {
	Verify(ctx context.Context, template string) (*biometric.VerifyResult, string, error)
}

// Result is what the station shows after a scan.
type Result struct {
	Success bool
	Action  string
	User    string
	Time    string
	Message string
	At      time.Time
}

type Loop struct {
	// Detect resolves the reader; it returns nil while none is installed.
	Detect   func(ctx context.Context) reader.Capability
	Verifier Verifier
	Show     func(Result)
	Logger   *slog.Logger

	PollInterval time.Duration
	SuccessDwell time.Duration
	FailureDwell time.Duration

	backoff *backoff.Backoff
	reader  reader.Capability
}

func NewLoop(detect func(ctx context.Context) reader.Capability, v Verifier, show func(Result), logger *slog.Logger) *Loop {
	return &Loop{
		Detect:       detect,
		Verifier:     v,
		Show:         show,
		Logger:       logger,
		PollInterval: 5 * time.Second,
		SuccessDwell: 5 * time.Second,
		FailureDwell: 3 * time.Second,
		backoff:      &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true},
	}
}

// Run scans until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		wait := l.Step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// Step performs one poll/capture/verify cycle and returns how long to wait
// before the next one.
func (l *Loop) Step(ctx context.Context) time.Duration {
	if l.reader == nil {
		l.reader = l.Detect(ctx)
		if l.reader == nil {
			l.Logger.DebugContext(ctx, "No reader detected")
			return l.PollInterval
		}
	}
	status, err := l.reader.Available(ctx)
	if err != nil || !status.Available {
		l.Logger.InfoContext(ctx, "Reader not available", "message", status.Message)
		if err != nil {
			// the service went away, detect it again next time
			l.reader = nil
		}
		return l.PollInterval
	}

	sample, err := l.reader.Capture(ctx)
	if err != nil {
		wait := l.backoff.Duration()
		l.Logger.WarnContext(ctx, "Capture failed", "retryIn", wait, logging.ErrAttr(err))
		return wait
	}
	l.backoff.Reset()

	res, msg, err := l.Verifier.Verify(ctx, sample.Template)
	if err != nil {
		l.show(Result{Message: failureMessage(err), At: time.Now()})
		return l.FailureDwell
	}
	l.show(successResult(res, msg))
	return l.SuccessDwell
}

func (l *Loop) show(r Result) {
	if l.Show != nil {
		l.Show(r)
	}
}

func failureMessage(err error) string {
	ae, ok := apperr.As(err)
	if !ok {
		return "Error al verificar huella"
	}
	if ae.Kind == apperr.KindNotFound || ae.Message == "" {
		return notRecognized
	}
	return ae.Message
}

func successResult(res *biometric.VerifyResult, msg string) Result {
	r := Result{
		Success: true,
		Action:  res.Action,
		User:    res.User.FullName,
		Message: msg,
		At:      time.Now(),
	}
	if a := res.Attendance; a != nil {
		r.Time = a.CheckInTime
		if res.Action == attendance.ActionCheckOut && a.CheckOutTime != nil {
			r.Time = *a.CheckOutTime
		}
	}
	return r
}
