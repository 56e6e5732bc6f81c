package biometric

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/datatypes"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

const statsListLimit = 10

// Store is the persistence the biometric service needs. Find* and Get*
// methods return (nil, nil) when nothing matches.
type Store interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
	CountActiveUsers(ctx context.Context) (int64, error)

	CreateBiometric(ctx context.Context, b *models.Biometric) error
	GetBiometric(ctx context.Context, id string) (*models.Biometric, error)
	FindActiveBiometric(ctx context.Context, userID string, finger models.Finger) (*models.Biometric, error)
	// ListActiveBiometrics returns every active template with its owner loaded.
	ListActiveBiometrics(ctx context.Context) ([]models.Biometric, error)
	ListUserBiometrics(ctx context.Context, userID string) ([]models.Biometric, error)
	DeactivateBiometric(ctx context.Context, id string) error
	MarkBiometricUsed(ctx context.Context, id string, at time.Time) error

	CountActiveBiometrics(ctx context.Context) (int64, error)
	CountUsersWithBiometrics(ctx context.Context) (int64, error)
	RecentBiometrics(ctx context.Context, limit int) ([]models.Biometric, error)
	MostUsedBiometrics(ctx context.Context, limit int) ([]models.Biometric, error)
}

// Ledger flips attendance for an identified user.
type Ledger interface {
	ToggleBiometric(ctx context.Context, in attendance.ToggleInput) (*attendance.ToggleResult, error)
}

// Metrics receives enrollment and verification outcomes.
type Metrics interface {
	EnrollmentObserved(outcome string)
	VerificationObserved(outcome string, score int)
}

type nopMetrics struct{}

func (nopMetrics) EnrollmentObserved(string)        {}
func (nopMetrics) VerificationObserved(string, int) {}

type Service struct {
	store    Store
	comparer *Comparer
	cipher   *Cipher
	ledger   Ledger
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, c *Cipher, comparer *Comparer, ledger Ledger, metrics Metrics, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		cipher:   c,
		comparer: comparer,
		ledger:   ledger,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

type EnrollmentSummary struct {
	ID           string        `json:"id"`
	User         *models.User  `json:"usuario"`
	Finger       models.Finger `json:"dedo"`
	Quality      int           `json:"calidad"`
	RegisteredAt time.Time     `json:"fechaRegistro"`
}

// Enroll validates and stores an encrypted template. The summary returned
// never carries template data.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (*EnrollmentSummary, error) {
	summary, err := s.enroll(ctx, req)
	if err != nil {
		s.metrics.EnrollmentObserved(apperrKind(err))
		return nil, err
	}
	s.metrics.EnrollmentObserved("success")
	return summary, nil
}

func (s *Service) enroll(ctx context.Context, req EnrollRequest) (*EnrollmentSummary, error) {
	if problems := req.validate(); len(problems) > 0 {
		return nil, apperr.Validation("Datos de registro inválidos", problems...)
	}

	user, err := s.store.FindUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("Usuario no encontrado")
	}
	if !user.Active {
		return nil, apperr.Validation("El usuario no está activo")
	}

	finger := models.Finger(req.Finger)
	existing, err := s.store.FindActiveBiometric(ctx, user.ID, finger)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, duplicateFinger(finger)
	}

	raw, err := DecodeTemplate(req.Template)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.cipher.Encrypt(raw)
	if err != nil {
		return nil, err
	}

	info := DeviceInfo{}
	if req.DeviceInfo != nil {
		info = *req.DeviceInfo
	}
	if info.Model == "" {
		info.Model = models.DefaultDeviceModel
	}
	b := &models.Biometric{
		UserID:        user.ID,
		Finger:        finger,
		Template:      encrypted,
		Quality:       *req.Quality,
		DeviceModel:   info.Model,
		DeviceSerial:  info.Serial,
		DeviceVersion: info.Version,
		Metadata:      s.metadata(info, len(raw)),
		Active:        true,
	}
	if err := s.store.CreateBiometric(ctx, b); err != nil {
		// the partial unique index catches a concurrent enrollment
		if apperr.IsKind(err, apperr.KindConflict) {
			return nil, duplicateFinger(finger)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "Fingerprint enrolled", "userID", user.ID, "finger", finger, "quality", b.Quality)
	return &EnrollmentSummary{
		ID:           b.ID,
		User:         user,
		Finger:       b.Finger,
		Quality:      b.Quality,
		RegisteredAt: b.CreatedAt,
	}, nil
}

func duplicateFinger(f models.Finger) error {
	return apperr.Conflict(fmt.Sprintf("El usuario ya tiene una huella registrada para %s", f.Label()))
}

func (s *Service) metadata(info DeviceInfo, size int) datatypes.JSONMap {
	resolution := info.Resolution
	if resolution == "" {
		resolution = "500 DPI"
	}
	format := info.Format
	if format == "" {
		format = "ANSI-378"
	}
	return datatypes.JSONMap{
		"resolucion": resolution,
		"formato":    format,
		"tamanio":    size,
		"capturedAt": s.now().UTC().Format(time.RFC3339),
	}
}

type VerifyRequest struct {
	Template  string `json:"template"`
	InHouseID string `json:"inHouseId"`
	UserAgent string `json:"-"`
	IP        string `json:"-"`
}

type VerifiedUser struct {
	ID        string `json:"id"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellidos"`
	FullName  string `json:"nombreCompleto"`
}

type MatchedFinger struct {
	Finger     models.Finger `json:"dedo"`
	Quality    int           `json:"calidad"`
	Confidence int           `json:"confidence"`
}

type VerifyResult struct {
	Action     string             `json:"action"`
	User       VerifiedUser       `json:"usuario"`
	Attendance *models.Attendance `json:"asistencia"`
	Biometric  MatchedFinger      `json:"biometric"`
}

// Verify identifies the owner of a live template among every active
// enrollment and toggles their attendance. No match leaves state untouched.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	probe, err := DecodeTemplate(req.Template)
	if err != nil {
		s.metrics.VerificationObserved("invalid", 0)
		return nil, err
	}

	candidates, err := s.store.ListActiveBiometrics(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.metrics.VerificationObserved("empty", 0)
		return nil, apperr.NotFound("No hay huellas registradas en el sistema")
	}

	var best *models.Biometric
	bestScore := 0
	for i := range candidates {
		b := &candidates[i]
		if b.User == nil || !b.User.Active {
			continue
		}
		res, err := s.comparer.Compare(ctx, b, probe)
		if err != nil {
			if apperr.IsKind(err, apperr.KindCrypto) {
				s.logger.WarnContext(ctx, "Skipping unreadable template", "biometricID", b.ID, logging.ErrAttr(err))
				continue
			}
			s.metrics.VerificationObserved("error", 0)
			return nil, apperr.Device("Servicio de comparación de huellas no disponible").Wrap(err)
		}
		if res.Match && res.Score > bestScore {
			best = b
			bestScore = res.Score
		}
	}

	if best == nil {
		s.metrics.VerificationObserved("no_match", 0)
		return nil, apperr.NotFound("Huella no reconocida. Por favor intente nuevamente.")
	}

	toggle, err := s.ledger.ToggleBiometric(ctx, attendance.ToggleInput{
		UserID:     best.UserID,
		InHouseID:  req.InHouseID,
		Confidence: bestScore,
		UserAgent:  req.UserAgent,
		IP:         req.IP,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkBiometricUsed(ctx, best.ID, s.now()); err != nil {
		return nil, err
	}
	s.metrics.VerificationObserved(toggle.Action, bestScore)

	u := best.User
	return &VerifyResult{
		Action: toggle.Action,
		User: VerifiedUser{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			FullName:  u.FullName(),
		},
		Attendance: toggle.Attendance,
		Biometric: MatchedFinger{
			Finger:     best.Finger,
			Quality:    best.Quality,
			Confidence: bestScore,
		},
	}, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Biometric, error) {
	return s.store.ListUserBiometrics(ctx, userID)
}

type EnrollmentCheck struct {
	HasFingerprints bool `json:"hasFingerprints"`
	Count           int  `json:"count"`
}

func (s *Service) HasFingerprints(ctx context.Context, userID string) (*EnrollmentCheck, error) {
	list, err := s.store.ListUserBiometrics(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &EnrollmentCheck{HasFingerprints: len(list) > 0, Count: len(list)}, nil
}

// Delete deactivates a template and drops it from the decrypted cache.
func (s *Service) Delete(ctx context.Context, id string) error {
	b, err := s.store.GetBiometric(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return apperr.NotFound("Huella no encontrada")
	}
	if err := s.store.DeactivateBiometric(ctx, id); err != nil {
		return err
	}
	s.comparer.Forget(ctx, id)
	s.logger.InfoContext(ctx, "Fingerprint deactivated", "biometricID", id, "userID", b.UserID)
	return nil
}

type StatsSummary struct {
	TotalFingerprints int64   `json:"totalHuellas"`
	UsersWithPrints   int64   `json:"usuariosConHuella"`
	TotalUsers        int64   `json:"totalUsuarios"`
	CoveragePercent   float64 `json:"porcentajeCobertura"`
}

type Stats struct {
	Summary  StatsSummary       `json:"resumen"`
	Recent   []models.Biometric `json:"recientes"`
	MostUsed []models.Biometric `json:"masUsadas"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.store.CountActiveBiometrics(ctx)
	if err != nil {
		return nil, err
	}
	covered, err := s.store.CountUsersWithBiometrics(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.store.CountActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.RecentBiometrics(ctx, statsListLimit)
	if err != nil {
		return nil, err
	}
	used, err := s.store.MostUsedBiometrics(ctx, statsListLimit)
	if err != nil {
		return nil, err
	}

	out := &Stats{
		Summary: StatsSummary{
			TotalFingerprints: total,
			UsersWithPrints:   covered,
			TotalUsers:        users,
		},
		Recent:   recent,
		MostUsed: used,
	}
	if users > 0 {
		out.Summary.CoveragePercent = math.Round(float64(covered)/float64(users)*10000) / 100
	}
	return out, nil
}

func apperrKind(err error) string {
	if e, ok := apperr.As(err); ok {
		return e.Kind.String()
	}
	return "internal"
}
