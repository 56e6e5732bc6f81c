// Package enrollment drives fingerprint enrollment at an administrator's
// workstation: select a finger, capture the best of several samples and
// submit it to the server.
package enrollment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/biometric"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/reader"
)

type State string

const (
	StateSelect     State = "select"
	StateCapture    State = "capture"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

const (
	DefaultSamples     = 3
	DefaultSampleDelay = 500 * time.Millisecond
)

var errNotSelecting = errors.New("enrollment flow is not waiting for a finger")

// Submitter is the server side of enrollment.
type Submitter interface {
	Enroll(ctx context.Context, req biometric.EnrollRequest) (*biometric.EnrollmentSummary, error)
	ListFingerprints(ctx context.Context, userID string) ([]models.Biometric, error)
}

type Flow struct {
	reader    reader.Capability
	submitter Submitter
	userID    string
	logger    *slog.Logger

	Samples     int
	SampleDelay time.Duration

	mu    sync.Mutex
	state State
	err   error
}

func NewFlow(r reader.Capability, s Submitter, userID string, logger *slog.Logger) *Flow {
	return &Flow{
		reader:      r,
		submitter:   s,
		userID:      userID,
		logger:      logger,
		Samples:     DefaultSamples,
		SampleDelay: DefaultSampleDelay,
		state:       StateSelect,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err is the failure that moved the flow to StateError.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Flow) set(s State, err error) {
	f.mu.Lock()
	f.state, f.err = s, err
	f.mu.Unlock()
}

// Retry returns a failed flow to finger selection.
func (f *Flow) Retry() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateError {
		return false
	}
	f.state, f.err = StateSelect, nil
	return true
}

// Enroll runs one enrollment for finger. Entry checks leave the flow in
// StateSelect; failures after capture starts move it to StateError.
func (f *Flow) Enroll(ctx context.Context, finger models.Finger) (*biometric.EnrollmentSummary, error) {
	if f.State() != StateSelect {
		return nil, errNotSelecting
	}
	status, err := f.checkEntry(ctx, finger)
	if err != nil {
		return nil, err
	}

	f.set(StateCapture, nil)
	sample, err := BestOf(ctx, f.reader, f.Samples, f.SampleDelay, f.logger)
	if err != nil {
		f.set(StateError, err)
		return nil, err
	}

	f.set(StateProcessing, nil)
	quality := sample.Quality
	summary, err := f.submitter.Enroll(ctx, biometric.EnrollRequest{
		UserID:   f.userID,
		Template: sample.Template,
		Finger:   string(finger),
		Quality:  &quality,
		DeviceInfo: &biometric.DeviceInfo{
			Model:   status.Model,
			Serial:  status.Serial,
			Version: status.Version,
		},
	})
	if err != nil {
		f.set(StateError, err)
		return nil, err
	}
	f.set(StateSuccess, nil)
	f.logger.InfoContext(ctx, "Fingerprint enrolled", "userID", f.userID, "finger", finger, "quality", quality)
	return summary, nil
}

func (f *Flow) checkEntry(ctx context.Context, finger models.Finger) (reader.Status, error) {
	if finger == "" || !finger.Valid() {
		return reader.Status{}, apperr.Validation("Por favor seleccione un dedo")
	}
	existing, err := f.submitter.ListFingerprints(ctx, f.userID)
	if err != nil {
		return reader.Status{}, err
	}
	for _, b := range existing {
		if b.Finger == finger && b.Active {
			return reader.Status{}, apperr.Validation("Este dedo ya tiene una huella registrada")
		}
	}
	if f.reader == nil {
		return reader.Status{}, apperr.Device("No hay un lector de huellas instalado")
	}
	status, err := f.reader.Available(ctx)
	if err != nil {
		return status, apperr.Device("Error al verificar lector").Wrap(err)
	}
	if !status.Available {
		return status, apperr.Device(status.Message)
	}
	return status, nil
}

// BestOf captures n samples in sequence and keeps the highest quality one.
// Individual capture failures are skipped; it fails only when all do.
func BestOf(ctx context.Context, r reader.Capability, n int, delay time.Duration, logger *slog.Logger) (reader.Sample, error) {
	var best reader.Sample
	captured := 0
	for i := 0; i < n; i++ {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return reader.Sample{}, ctx.Err()
			case <-time.After(delay):
			}
		}
		s, err := r.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return reader.Sample{}, ctx.Err()
			}
			logger.WarnContext(ctx, "Capture failed", "sample", i+1, "of", n, logging.ErrAttr(err))
			continue
		}
		if captured == 0 || s.Quality > best.Quality {
			best = s
		}
		captured++
	}
	if captured == 0 {
		return reader.Sample{}, apperr.Device("No se pudo capturar ninguna muestra válida.")
	}
	return best, nil
}
