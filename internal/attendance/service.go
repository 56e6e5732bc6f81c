package attendance

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/events"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	ActionCheckIn  = "ingreso"
	ActionCheckOut = "salida"
)

// Store is the persistence the ledger needs. Find* and Get* methods return
// (nil, nil) when nothing matches.
type Store interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
	FindActiveInHouse(ctx context.Context, id string) (*models.InHouse, error)
	IsInHouseMember(ctx context.Context, inHouseID, userID string) (bool, error)

	// CreateOpenAttendance inserts rec unless the user already has an open
	// record for rec.WorkDate, in which case that record is returned instead.
	CreateOpenAttendance(ctx context.Context, rec *models.Attendance) (*models.Attendance, error)
	FindOpenAttendance(ctx context.Context, userID, workDate string) (*models.Attendance, error)
	GetAttendance(ctx context.Context, id string) (*models.Attendance, error)
	// CloseAttendance persists the checkout fields if rec is still open and
	// reports whether it was.
	CloseAttendance(ctx context.Context, rec *models.Attendance) (bool, error)
	DeleteAttendance(ctx context.Context, id string) (bool, error)

	ListAttendance(ctx context.Context, f Filter) ([]models.Attendance, error)
	CountAttendance(ctx context.Context, from, to string) (int64, error)
	CountAttendanceByUser(ctx context.Context, from, to string) ([]UserCount, error)
	DailyAttendanceSummary(ctx context.Context, from, to string) ([]DaySummary, error)

	// ListStaff returns active non-admin users, scoped to an In House when
	// inHouseID is set.
	ListStaff(ctx context.Context, inHouseID string) ([]models.User, error)
}

type Filter struct {
	UserID string
	From   string
	To     string
	Limit  int
}

type UserCount struct {
	UserID    string  `json:"usuarioId"`
	FirstName string  `json:"nombre"`
	LastName  string  `json:"apellidos"`
	AreaID    *string `json:"areaId"`
	Total     int64   `json:"totalAsistencias"`
	LastDate  string  `json:"ultimaAsistencia"`
}

type DaySummary struct {
	Date        string `json:"fecha"`
	Total       int64  `json:"totalAsistencias"`
	UniqueUsers int64  `json:"usuariosUnicos"`
}

type Service struct {
	store            Store
	events           events.Publisher
	loc              *time.Location
	defaultInHouseID string
	now              func() time.Time
	logger           *slog.Logger
}

func NewService(store Store, pub events.Publisher, loc *time.Location, defaultInHouseID string, logger *slog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:            store,
		events:           pub,
		loc:              loc,
		defaultInHouseID: defaultInHouseID,
		now:              time.Now,
		logger:           logger,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) Today() string {
	return s.clock().Format(DateLayout)
}

type CheckInInput struct {
	UserID    string
	InHouseID string
	UserAgent string
	IP        string
}

// CheckIn opens a password-flow attendance record at a site the user is
// assigned to.
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (*models.Attendance, error) {
	if in.InHouseID == "" {
		return nil, apperr.Validation("Debes seleccionar un In House para marcar ingreso")
	}
	user, err := s.activeUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	inHouse, err := s.store.FindActiveInHouse(ctx, in.InHouseID)
	if err != nil {
		return nil, err
	}
	if inHouse == nil {
		return nil, apperr.NotFound("In House no encontrado")
	}
	member, err := s.store.IsInHouseMember(ctx, inHouse.ID, user.ID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("No estás asignado a este In House")
	}

	rec := s.newRecord(user.ID, &inHouse.ID, models.MethodPassword, in.UserAgent, in.IP)
	if err := s.open(ctx, rec); err != nil {
		return nil, err
	}
	rec.InHouse = inHouse
	s.publish(ctx, events.TypeCheckIn, rec, user)
	return rec, nil
}

// CheckOut closes an open record owned by userID.
func (s *Service) CheckOut(ctx context.Context, userID, attendanceID string) (*models.Attendance, error) {
	rec, err := s.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.NotFound("Asistencia no encontrada")
	}
	if rec.UserID != userID {
		return nil, apperr.Forbidden("No tienes permiso para marcar esta salida")
	}
	if err := s.close(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeCheckOut, rec, rec.User)
	return rec, nil
}

// Active returns the user's open record for today, or nil.
func (s *Service) Active(ctx context.Context, userID string) (*models.Attendance, error) {
	return s.store.FindOpenAttendance(ctx, userID, s.Today())
}

type ToggleInput struct {
	UserID     string
	InHouseID  string
	Confidence int
	UserAgent  string
	IP         string
}

type ToggleResult struct {
	Action     string
	Attendance *models.Attendance
}

// ToggleBiometric flips the user's attendance after a fingerprint match:
// no open record today opens one, an open record is closed. A site given
// by the terminal must be an active In House; otherwise the default site
// is used.
func (s *Service) ToggleBiometric(ctx context.Context, in ToggleInput) (*ToggleResult, error) {
	user, err := s.activeUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	open, err := s.store.FindOpenAttendance(ctx, user.ID, s.Today())
	if err != nil {
		return nil, err
	}
	if open != nil {
		if err := s.close(ctx, open); err != nil {
			return nil, err
		}
		s.publish(ctx, events.TypeCheckOut, open, user)
		return &ToggleResult{Action: ActionCheckOut, Attendance: open}, nil
	}

	var inHouseID *string
	if in.InHouseID != "" {
		site, err := s.store.FindActiveInHouse(ctx, in.InHouseID)
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, apperr.NotFound("In House no encontrado")
		}
		inHouseID = &site.ID
	} else if s.defaultInHouseID != "" {
		id := s.defaultInHouseID
		inHouseID = &id
	}
	rec := s.newRecord(user.ID, inHouseID, models.MethodBiometric, in.UserAgent, in.IP)
	confidence := in.Confidence
	rec.Confidence = &confidence
	if err := s.open(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeCheckIn, rec, user)
	return &ToggleResult{Action: ActionCheckIn, Attendance: rec}, nil
}

func (s *Service) activeUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("Usuario no encontrado")
	}
	if !user.Active {
		return nil, apperr.Forbidden("El usuario no está activo")
	}
	return user, nil
}

func (s *Service) newRecord(userID string, inHouseID *string, method models.CheckInMethod, ua, ip string) *models.Attendance {
	now := s.clock()
	return &models.Attendance{
		UserID:      userID,
		InHouseID:   inHouseID,
		WorkDate:    now.Format(DateLayout),
		CheckInAt:   now,
		CheckInTime: now.Format(TimeLayout),
		Status:      models.AttendanceOpen,
		Method:      method,
		UserAgent:   ua,
		IP:          ip,
	}
}

func (s *Service) open(ctx context.Context, rec *models.Attendance) error {
	existing, err := s.store.CreateOpenAttendance(ctx, rec)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict("Ya tienes un ingreso activo. Debes marcar la salida primero.").
			WithStatus(http.StatusBadRequest).
			WithData(existing)
	}
	return nil
}

func (s *Service) close(ctx context.Context, rec *models.Attendance) error {
	if !rec.IsOpen() {
		return apperr.Validation("Esta asistencia ya tiene salida marcada")
	}
	now := s.clock()
	// checkout is strictly after checkin
	if !now.After(rec.CheckInAt) {
		now = rec.CheckInAt.Add(time.Second)
	}
	out := now.Format(TimeLayout)
	rec.CheckOutAt = &now
	rec.CheckOutTime = &out
	rec.Status = models.AttendanceClosed

	closed, err := s.store.CloseAttendance(ctx, rec)
	if err != nil {
		return err
	}
	if !closed {
		return apperr.Validation("Esta asistencia ya tiene salida marcada")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, typ string, rec *models.Attendance, user *models.User) {
	ev := events.Event{Type: typ, At: s.clock(), Attendance: rec, User: user}
	if err := s.events.Publish(ctx, ev); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "Failed to publish attendance event", "type", typ, "attendanceID", rec.ID, logging.ErrAttr(err))
	}
}

func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.store.DeleteAttendance(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("Asistencia no encontrada")
	}
	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
