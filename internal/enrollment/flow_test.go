package enrollment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/biometric"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/reader"
)

type scriptedReader struct {
	status  reader.Status
	samples []reader.Sample
	errs    []error
	calls   int
}

func (r *scriptedReader) Available(context.Context) (reader.Status, error) {
	return r.status, nil
}

func (r *scriptedReader) Capture(context.Context) (reader.Sample, error) {
	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return reader.Sample{}, r.errs[i]
	}
	return r.samples[i], nil
}

type fakeSubmitter struct {
	existing []models.Biometric
	got      *biometric.EnrollRequest
	err      error
}

func (s *fakeSubmitter) Enroll(_ context.Context, req biometric.EnrollRequest) (*biometric.EnrollmentSummary, error) {
	s.got = &req
	if s.err != nil {
		return nil, s.err
	}
	return &biometric.EnrollmentSummary{ID: "b-1", Finger: models.Finger(req.Finger), Quality: *req.Quality}, nil
}

func (s *fakeSubmitter) ListFingerprints(context.Context, string) ([]models.Biometric, error) {
	return s.existing, nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var ready = reader.Status{Available: true, Model: "DigitalPersona 4500", Serial: "SN-9"}

func newFlow(r reader.Capability, s Submitter) *Flow {
	f := NewFlow(r, s, "u-1", quiet())
	f.SampleDelay = 0
	return f
}

func TestEnrollKeepsBestSample(t *testing.T) {
	r := &scriptedReader{
		status:  ready,
		samples: []reader.Sample{{Template: "a", Quality: 60}, {Template: "b", Quality: 90}, {Template: "c", Quality: 70}},
	}
	sub := &fakeSubmitter{}
	f := newFlow(r, sub)

	summary, err := f.Enroll(context.Background(), models.FingerRightIndex)
	if err != nil {
		t.Fatal(err)
	}
	if f.State() != StateSuccess || summary.Quality != 90 {
		t.Fatalf("state %s summary %+v", f.State(), summary)
	}
	if sub.got.Template != "b" || sub.got.DeviceInfo.Serial != "SN-9" || sub.got.Finger != "indice_derecho" {
		t.Fatalf("unexpected submission %+v", sub.got)
	}
	if r.calls != DefaultSamples {
		t.Fatalf("captured %d samples", r.calls)
	}
}

func TestEnrollSkipsFailedCaptures(t *testing.T) {
	boom := apperr.Device("timeout")
	r := &scriptedReader{
		status:  ready,
		samples: []reader.Sample{{}, {Template: "b", Quality: 55}, {}},
		errs:    []error{boom, nil, boom},
	}
	sub := &fakeSubmitter{}
	if _, err := newFlow(r, sub).Enroll(context.Background(), models.FingerRightThumb); err != nil {
		t.Fatal(err)
	}
	if sub.got.Template != "b" {
		t.Fatalf("submitted %q", sub.got.Template)
	}
}

func TestEnrollAllCapturesFail(t *testing.T) {
	boom := errors.New("no finger")
	r := &scriptedReader{status: ready, samples: make([]reader.Sample, 3), errs: []error{boom, boom, boom}}
	sub := &fakeSubmitter{}
	f := newFlow(r, sub)

	_, err := f.Enroll(context.Background(), models.FingerRightIndex)
	if !apperr.IsKind(err, apperr.KindDevice) || f.State() != StateError {
		t.Fatalf("err %v state %s", err, f.State())
	}
	if sub.got != nil {
		t.Fatal("nothing should be submitted")
	}
	if !f.Retry() || f.State() != StateSelect || f.Err() != nil {
		t.Fatalf("retry must return to select, got %s", f.State())
	}
}

func TestEntryChecksStayInSelect(t *testing.T) {
	tests := []struct {
		name   string
		reader reader.Capability
		sub    *fakeSubmitter
		finger models.Finger
		kind   apperr.Kind
	}{
		{"no finger", &scriptedReader{status: ready}, &fakeSubmitter{}, "", apperr.KindValidation},
		{"unknown finger", &scriptedReader{status: ready}, &fakeSubmitter{}, "sexto_dedo", apperr.KindValidation},
		{"already enrolled", &scriptedReader{status: ready}, &fakeSubmitter{existing: []models.Biometric{{Finger: models.FingerRightIndex, Active: true}}}, models.FingerRightIndex, apperr.KindValidation},
		{"no reader", nil, &fakeSubmitter{}, models.FingerRightIndex, apperr.KindDevice},
		{"reader unplugged", &scriptedReader{status: reader.Status{Message: "Lector no conectado"}}, &fakeSubmitter{}, models.FingerRightIndex, apperr.KindDevice},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFlow(tc.reader, tc.sub)
			_, err := f.Enroll(context.Background(), tc.finger)
			if !apperr.IsKind(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			if f.State() != StateSelect {
				t.Fatalf("state %s", f.State())
			}
		})
	}
}

func TestServerRejectionMovesToError(t *testing.T) {
	r := &scriptedReader{status: ready, samples: []reader.Sample{{Template: "a", Quality: 40}, {Template: "b", Quality: 45}, {Template: "c", Quality: 30}}}
	sub := &fakeSubmitter{err: apperr.Validation("Datos de huella inválidos", "Calidad mínima 50")}
	f := newFlow(r, sub)

	if _, err := f.Enroll(context.Background(), models.FingerRightIndex); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("got %v", err)
	}
	if f.State() != StateError || f.Err() == nil {
		t.Fatalf("state %s err %v", f.State(), f.Err())
	}
	if _, err := f.Enroll(context.Background(), models.FingerRightIndex); err != errNotSelecting {
		t.Fatalf("enrolling from error state must be refused, got %v", err)
	}
}
