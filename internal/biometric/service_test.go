package biometric

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

type memStore struct {
	users      map[string]*models.User
	biometrics []*models.Biometric
	used       []string
}

func newMemStore(users ...*models.User) *memStore {
	m := &memStore{users: map[string]*models.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memStore) FindUser(_ context.Context, id string) (*models.User, error) {
	return m.users[id], nil
}

func (m *memStore) CountActiveUsers(context.Context) (int64, error) {
	var n int64
	for _, u := range m.users {
		if u.Active {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateBiometric(_ context.Context, b *models.Biometric) error {
	for _, e := range m.biometrics {
		if e.Active && e.UserID == b.UserID && e.Finger == b.Finger {
			return apperr.Conflict("duplicate")
		}
	}
	b.ID = fmt.Sprintf("bio-%d", len(m.biometrics)+1)
	b.CreatedAt = time.Now()
	cp := *b
	m.biometrics = append(m.biometrics, &cp)
	return nil
}

func (m *memStore) GetBiometric(_ context.Context, id string) (*models.Biometric, error) {
	for _, b := range m.biometrics {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindActiveBiometric(_ context.Context, userID string, finger models.Finger) (*models.Biometric, error) {
	for _, b := range m.biometrics {
		if b.Active && b.UserID == userID && b.Finger == finger {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListActiveBiometrics(context.Context) ([]models.Biometric, error) {
	var out []models.Biometric
	for _, b := range m.biometrics {
		if b.Active {
			cp := *b
			cp.User = m.users[b.UserID]
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *memStore) ListUserBiometrics(_ context.Context, userID string) ([]models.Biometric, error) {
	var out []models.Biometric
	for _, b := range m.biometrics {
		if b.Active && b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) DeactivateBiometric(_ context.Context, id string) error {
	for _, b := range m.biometrics {
		if b.ID == id {
			b.Active = false
		}
	}
	return nil
}

func (m *memStore) MarkBiometricUsed(_ context.Context, id string, at time.Time) error {
	for _, b := range m.biometrics {
		if b.ID == id {
			b.UseCount++
			b.LastUsedAt = &at
		}
	}
	m.used = append(m.used, id)
	return nil
}

func (m *memStore) CountActiveBiometrics(ctx context.Context) (int64, error) {
	list, _ := m.ListActiveBiometrics(ctx)
	return int64(len(list)), nil
}

func (m *memStore) CountUsersWithBiometrics(ctx context.Context) (int64, error) {
	seen := map[string]bool{}
	list, _ := m.ListActiveBiometrics(ctx)
	for _, b := range list {
		seen[b.UserID] = true
	}
	return int64(len(seen)), nil
}

func (m *memStore) RecentBiometrics(ctx context.Context, limit int) ([]models.Biometric, error) {
	list, _ := m.ListActiveBiometrics(ctx)
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *memStore) MostUsedBiometrics(ctx context.Context, limit int) ([]models.Biometric, error) {
	var out []models.Biometric
	list, _ := m.ListActiveBiometrics(ctx)
	for _, b := range list {
		if b.LastUsedAt != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeLedger struct {
	calls []attendance.ToggleInput
	open  map[string]bool
	err   error
}

func (l *fakeLedger) ToggleBiometric(_ context.Context, in attendance.ToggleInput) (*attendance.ToggleResult, error) {
	l.calls = append(l.calls, in)
	if l.err != nil {
		return nil, l.err
	}
	if l.open == nil {
		l.open = map[string]bool{}
	}
	action := attendance.ActionCheckIn
	if l.open[in.UserID] {
		action = attendance.ActionCheckOut
	}
	l.open[in.UserID] = !l.open[in.UserID]
	return &attendance.ToggleResult{Action: action, Attendance: &models.Attendance{UserID: in.UserID}}, nil
}

type brokenMatcher struct{}

func (brokenMatcher) Compare(context.Context, []byte, []byte) (int, error) {
	return 0, errors.New("connection refused")
}

func template(seed byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{seed, seed + 1, seed + 2}, 60))
}

func quality(q int) *int { return &q }

type harness struct {
	store  *memStore
	ledger *fakeLedger
	svc    *Service
	cipher *Cipher
}

func newHarness(t *testing.T, m Matcher) *harness {
	t.Helper()
	c, err := NewCipher("unit-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	cache, err := NewTemplateCache(time.Minute, 100)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cache.Close)

	h := &harness{
		store: newMemStore(
			&models.User{ID: "u1", FirstName: "Ana", LastName: "Ruiz", Role: models.RoleUser, Active: true},
			&models.User{ID: "u2", FirstName: "Beto", LastName: "Gil", Role: models.RoleUser, Active: true},
			&models.User{ID: "off", FirstName: "Zoe", Role: models.RoleUser, Active: false},
		),
		ledger: &fakeLedger{},
		cipher: c,
	}
	h.svc = NewService(h.store, c, NewComparer(c, m, cache, 60), h.ledger, nil, nil)
	return h
}

func TestEnrollThenDuplicate(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	ctx := context.Background()

	req := EnrollRequest{UserID: "u1", Template: template(1), Finger: "indice_derecho", Quality: quality(80)}
	summary, err := h.svc.Enroll(ctx, req)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if summary.Finger != models.FingerRightIndex || summary.Quality != 80 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	stored := h.store.biometrics[0]
	if strings.Contains(stored.Template, req.Template) {
		t.Fatal("template must be stored encrypted")
	}
	if stored.DeviceModel != models.DefaultDeviceModel {
		t.Errorf("device model = %q", stored.DeviceModel)
	}
	if stored.Metadata["formato"] != "ANSI-378" {
		t.Errorf("metadata = %v", stored.Metadata)
	}

	_, err = h.svc.Enroll(ctx, req)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "ya tiene una huella registrada") {
		t.Errorf("message = %q", err.Error())
	}
	if len(h.store.biometrics) != 1 {
		t.Errorf("expected a single active template, got %d", len(h.store.biometrics))
	}
}

func TestEnrollCollectsAllProblems(t *testing.T) {
	h := newHarness(t, ExactMatcher{})

	_, err := h.svc.Enroll(context.Background(), EnrollRequest{Template: "short!", Finger: "dedo_gordo", Quality: quality(20)})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	// user id, base64 charset, length, finger, quality
	if len(e.Details) != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", len(e.Details), e.Details)
	}
	if len(h.store.biometrics) != 0 {
		t.Error("nothing should be persisted")
	}
}

func TestEnrollRejectsLowQuality(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	for q := 0; q < MinQuality; q += 7 {
		_, err := h.svc.Enroll(context.Background(), EnrollRequest{UserID: "u1", Template: template(1), Finger: "pulgar_derecho", Quality: quality(q)})
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("quality %d: expected validation error, got %v", q, err)
		}
	}
	if len(h.store.biometrics) != 0 {
		t.Error("nothing should be persisted")
	}
}

func TestEnrollUserChecks(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	ctx := context.Background()

	_, err := h.svc.Enroll(ctx, EnrollRequest{UserID: "ghost", Template: template(1), Finger: "pulgar_derecho", Quality: quality(90)})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("unknown user: %v", err)
	}
	_, err = h.svc.Enroll(ctx, EnrollRequest{UserID: "off", Template: template(1), Finger: "pulgar_derecho", Quality: quality(90)})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("inactive user: %v", err)
	}
}

func TestVerifyTogglesAttendance(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	ctx := context.Background()

	for _, r := range []EnrollRequest{
		{UserID: "u1", Template: template(1), Finger: "indice_derecho", Quality: quality(80)},
		{UserID: "u2", Template: template(9), Finger: "indice_derecho", Quality: quality(75)},
	} {
		if _, err := h.svc.Enroll(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	res, err := h.svc.Verify(ctx, VerifyRequest{Template: template(9), InHouseID: "h1"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Action != attendance.ActionCheckIn || res.User.ID != "u2" || res.Biometric.Confidence != 100 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.User.FullName != "Beto Gil" {
		t.Errorf("full name = %q", res.User.FullName)
	}
	if h.ledger.calls[0].InHouseID != "h1" || h.ledger.calls[0].Confidence != 100 {
		t.Errorf("ledger input = %+v", h.ledger.calls[0])
	}
	if h.store.biometrics[1].UseCount != 1 || h.store.biometrics[1].LastUsedAt == nil {
		t.Error("usage counters should be bumped")
	}

	res, err = h.svc.Verify(ctx, VerifyRequest{Template: template(9)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != attendance.ActionCheckOut {
		t.Errorf("second scan should be salida, got %q", res.Action)
	}
}

func TestVerifyUnrecognized(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	ctx := context.Background()

	_, err := h.svc.Verify(ctx, VerifyRequest{Template: template(3)})
	if !apperr.IsKind(err, apperr.KindNotFound) || !strings.Contains(err.Error(), "No hay huellas") {
		t.Fatalf("empty store: %v", err)
	}

	if _, err := h.svc.Enroll(ctx, EnrollRequest{UserID: "u1", Template: template(1), Finger: "medio_izquierdo", Quality: quality(70)}); err != nil {
		t.Fatal(err)
	}
	_, err = h.svc.Verify(ctx, VerifyRequest{Template: template(3)})
	if !apperr.IsKind(err, apperr.KindNotFound) || !strings.Contains(err.Error(), "Huella no reconocida") {
		t.Fatalf("expected not recognized, got %v", err)
	}
	if len(h.ledger.calls) != 0 || len(h.store.used) != 0 {
		t.Error("no state may change on a failed match")
	}
}

func TestVerifySkipsInactiveOwnersAndBadTemplates(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	ctx := context.Background()

	if _, err := h.svc.Enroll(ctx, EnrollRequest{UserID: "u1", Template: template(1), Finger: "anular_derecho", Quality: quality(70)}); err != nil {
		t.Fatal(err)
	}
	h.store.users["u1"].Active = false
	h.store.biometrics = append(h.store.biometrics, &models.Biometric{ID: "corrupt", UserID: "u2", Finger: models.FingerLeftThumb, Template: "not:hex", Active: true})

	_, err := h.svc.Verify(ctx, VerifyRequest{Template: template(1)})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not recognized, got %v", err)
	}
}

func TestVerifyMatcherUnavailable(t *testing.T) {
	h := newHarness(t, brokenMatcher{})
	ctx := context.Background()

	if _, err := h.svc.Enroll(ctx, EnrollRequest{UserID: "u1", Template: template(1), Finger: "anular_derecho", Quality: quality(70)}); err != nil {
		t.Fatal(err)
	}
	_, err := h.svc.Verify(ctx, VerifyRequest{Template: template(1)})
	if !apperr.IsKind(err, apperr.KindDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
}

func TestVerifyRejectsMalformedTemplate(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	_, err := h.svc.Verify(context.Background(), VerifyRequest{Template: ""})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteAndStats(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	ctx := context.Background()

	a, _ := h.svc.Enroll(ctx, EnrollRequest{UserID: "u1", Template: template(1), Finger: "indice_derecho", Quality: quality(80)})
	_, _ = h.svc.Enroll(ctx, EnrollRequest{UserID: "u1", Template: template(4), Finger: "indice_izquierdo", Quality: quality(80)})

	check, err := h.svc.HasFingerprints(ctx, "u1")
	if err != nil || !check.HasFingerprints || check.Count != 2 {
		t.Fatalf("HasFingerprints = %+v, %v", check, err)
	}

	stats, err := h.svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Summary.TotalFingerprints != 2 || stats.Summary.UsersWithPrints != 1 || stats.Summary.TotalUsers != 2 {
		t.Fatalf("unexpected summary: %+v", stats.Summary)
	}
	if stats.Summary.CoveragePercent != 50 {
		t.Errorf("coverage = %v", stats.Summary.CoveragePercent)
	}

	if err := h.svc.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.Delete(ctx, "missing"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("delete missing: %v", err)
	}
	list, _ := h.svc.ListByUser(ctx, "u1")
	if len(list) != 1 {
		t.Fatalf("expected one active template after delete, got %d", len(list))
	}

	// the same finger can be enrolled again once the old template is inactive
	if _, err := h.svc.Enroll(ctx, EnrollRequest{UserID: "u1", Template: template(7), Finger: "indice_derecho", Quality: quality(60)}); err != nil {
		t.Fatalf("re-enroll after delete: %v", err)
	}
}

func TestVerifyLeavesUsageWhenLedgerRejects(t *testing.T) {
	h := newHarness(t, ExactMatcher{})
	ctx := context.Background()
	if _, err := h.svc.Enroll(ctx, EnrollRequest{UserID: "u1", Template: template(3), Finger: "indice_derecho", Quality: quality(80)}); err != nil {
		t.Fatal(err)
	}

	h.ledger.err = apperr.NotFound("In House no encontrado")
	_, err := h.svc.Verify(ctx, VerifyRequest{Template: template(3), InHouseID: "missing"})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("got %v", err)
	}
	if b := h.store.biometrics[0]; b.UseCount != 0 || b.LastUsedAt != nil {
		t.Fatalf("usage bumped without attendance: count=%d last=%v", b.UseCount, b.LastUsedAt)
	}
}
