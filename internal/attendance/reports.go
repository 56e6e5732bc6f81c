package attendance

import (
	"context"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

const (
	StaffActive   = "activo"
	StaffInactive = "inactivo"

	defaultStatsWindowDays = 30
	recentLimit            = 5
)

type StaffStatus struct {
	ID           string      `json:"id"`
	FirstName    string      `json:"nombre"`
	LastName     string      `json:"apellidos"`
	FullName     string      `json:"nombreCompleto"`
	Email        string      `json:"correo"`
	AreaID       *string     `json:"areaId"`
	Role         models.Role `json:"rol"`
	Status       string      `json:"estado"`
	CheckInTime  string      `json:"horaIngreso,omitempty"`
	AttendanceID string      `json:"asistenciaId,omitempty"`
	TodayCount   int         `json:"totalIngresosHoy"`
}

type RealTimeSummary struct {
	TotalUsers    int     `json:"totalUsuarios"`
	ActiveUsers   int     `json:"usuariosActivos"`
	InactiveUsers int     `json:"usuariosInactivos"`
	Completed     int     `json:"asistenciasCompletadas"`
	TotalCheckIns int     `json:"totalIngresosHoy"`
	ActivePercent float64 `json:"porcentajeActivos"`
}

type RealTimeStatus struct {
	Date     time.Time       `json:"fecha"`
	Summary  RealTimeSummary `json:"resumen"`
	Active   []StaffStatus   `json:"usuariosActivos"`
	Inactive []StaffStatus   `json:"usuariosInactivos"`
}

// RealTime splits staff into who is checked in right now and who is not.
// An empty inHouseID covers every active non-admin user.
func (s *Service) RealTime(ctx context.Context, inHouseID string) (*RealTimeStatus, error) {
	staff, err := s.store.ListStaff(ctx, inHouseID)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	records, err := s.store.ListAttendance(ctx, Filter{From: today, To: today})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	open := make(map[string]models.Attendance)
	completed := 0
	for _, r := range records {
		counts[r.UserID]++
		if r.IsOpen() {
			open[r.UserID] = r
		} else {
			completed++
		}
	}

	out := &RealTimeStatus{
		Date:     s.clock(),
		Active:   []StaffStatus{},
		Inactive: []StaffStatus{},
	}
	for _, u := range staff {
		st := StaffStatus{
			ID:         u.ID,
			FirstName:  u.FirstName,
			LastName:   u.LastName,
			FullName:   u.FullName(),
			Email:      u.Email,
			AreaID:     u.AreaID,
			Role:       u.Role,
			TodayCount: counts[u.ID],
		}
		if rec, ok := open[u.ID]; ok {
			st.Status = StaffActive
			st.CheckInTime = rec.CheckInTime
			st.AttendanceID = rec.ID
			out.Active = append(out.Active, st)
		} else {
			st.Status = StaffInactive
			out.Inactive = append(out.Inactive, st)
		}
	}

	out.Summary = RealTimeSummary{
		TotalUsers:    len(staff),
		ActiveUsers:   len(out.Active),
		InactiveUsers: len(out.Inactive),
		Completed:     completed,
		TotalCheckIns: len(records),
	}
	if len(staff) > 0 {
		out.Summary.ActivePercent = round(float64(len(out.Active))/float64(len(staff))*100, 1)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Attendance, error) {
	if err := validateDates(f.From, f.To); err != nil {
		return nil, err
	}
	return s.store.ListAttendance(ctx, f)
}

func (s *Service) Range(ctx context.Context, from, to, userID string) ([]models.Attendance, error) {
	if from == "" || to == "" {
		return nil, apperr.Validation("Se requieren fechaInicio y fechaFin")
	}
	return s.List(ctx, Filter{UserID: userID, From: from, To: to})
}

type Period struct {
	From string `json:"fechaInicio"`
	To   string `json:"fechaFin"`
}

type StatsTotals struct {
	Total       int64   `json:"totalAsistencias"`
	ActiveUsers int     `json:"usuariosActivos"`
	PerUserAvg  float64 `json:"promedioAsistenciasPorUsuario"`
}

type Stats struct {
	Period  Period              `json:"periodo"`
	Totals  StatsTotals         `json:"estadisticas"`
	PerUser []UserCount         `json:"conteoPorUsuario"`
	Latest  []models.Attendance `json:"ultimasAsistencias"`
}

// Stats aggregates attendance between from and to, defaulting to the last
// 30 days ending today.
func (s *Service) Stats(ctx context.Context, from, to string) (*Stats, error) {
	if err := validateDates(from, to); err != nil {
		return nil, err
	}
	if to == "" {
		to = s.Today()
	}
	if from == "" {
		end, _ := time.ParseInLocation(DateLayout, to, s.loc)
		from = end.AddDate(0, 0, -defaultStatsWindowDays).Format(DateLayout)
	}

	perUser, err := s.store.CountAttendanceByUser(ctx, from, to)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountAttendance(ctx, from, to)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.ListAttendance(ctx, Filter{From: from, To: to, Limit: recentLimit})
	if err != nil {
		return nil, err
	}

	out := &Stats{
		Period:  Period{From: from, To: to},
		Totals:  StatsTotals{Total: total, ActiveUsers: len(perUser)},
		PerUser: perUser,
		Latest:  latest,
	}
	if len(perUser) > 0 {
		out.Totals.PerUserAvg = round(float64(total)/float64(len(perUser)), 2)
	}
	return out, nil
}

type UserHistory struct {
	User    *models.User        `json:"usuario"`
	Records []models.Attendance `json:"asistencias"`
}

// UserHistory lists a user's records. Plain users may only read their own.
func (s *Service) UserHistory(ctx context.Context, viewer *models.User, userID string, limit int) (*UserHistory, error) {
	if viewer.Role == models.RoleUser && viewer.ID != userID {
		return nil, apperr.Forbidden("No tienes permiso para ver las asistencias de otro usuario")
	}
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("Usuario no encontrado")
	}
	records, err := s.store.ListAttendance(ctx, Filter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &UserHistory{User: user, Records: records}, nil
}

type DailySummary struct {
	Days   int          `json:"dias"`
	Period Period       `json:"periodo"`
	Rows   []DaySummary `json:"resumen"`
}

// DailySummary counts records and distinct users per day over the last days.
func (s *Service) DailySummary(ctx context.Context, days int) (*DailySummary, error) {
	if days <= 0 {
		days = defaultStatsWindowDays
	}
	now := s.clock()
	from := now.AddDate(0, 0, -days).Format(DateLayout)
	to := now.Format(DateLayout)

	rows, err := s.store.DailyAttendanceSummary(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &DailySummary{Days: days, Period: Period{From: from, To: to}, Rows: rows}, nil
}

func validateDates(dates ...string) error {
	var problems []string
	for _, d := range dates {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			problems = append(problems, "Fecha inválida: "+d)
		}
	}
	if len(problems) > 0 {
		return apperr.Validation("Parámetros de fecha inválidos", problems...)
	}
	return nil
}
