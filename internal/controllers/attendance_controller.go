package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

type AttendanceService interface {
	CheckIn(ctx context.Context, in attendance.CheckInInput) (*models.Attendance, error)
	CheckOut(ctx context.Context, userID, attendanceID string) (*models.Attendance, error)
	Active(ctx context.Context, userID string) (*models.Attendance, error)
	RealTime(ctx context.Context, inHouseID string) (*attendance.RealTimeStatus, error)
	List(ctx context.Context, f attendance.Filter) ([]models.Attendance, error)
	Range(ctx context.Context, from, to, userID string) ([]models.Attendance, error)
	Stats(ctx context.Context, from, to string) (*attendance.Stats, error)
	UserHistory(ctx context.Context, viewer *models.User, userID string, limit int) (*attendance.UserHistory, error)
	DailySummary(ctx context.Context, days int) (*attendance.DailySummary, error)
	Delete(ctx context.Context, id string) error
}

type AttendanceController struct {
	Service AttendanceService
	Logger  *slog.Logger
}

func queryInt(c *gin.Context, key string, def int) int {
	if n, err := strconv.Atoi(c.Query(key)); err == nil && n > 0 {
		return n
	}
	return def
}

type checkInRequest struct {
	InHouseID string `json:"inHouseId"`
}

func (ac *AttendanceController) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	inHouseID, err := optionalID(req.InHouseID, "inHouseId")
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	user := middleware.CurrentUser(c)
	rec, err := ac.Service.CheckIn(c.Request.Context(), attendance.CheckInInput{
		UserID:    user.ID,
		InHouseID: inHouseID,
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	})
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respondMessage(c, http.StatusCreated, "Ingreso marcado exitosamente", rec)
}

func (ac *AttendanceController) CheckOut(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	rec, err := ac.Service.CheckOut(c.Request.Context(), middleware.CurrentUser(c).ID, id)
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Salida marcada exitosamente", rec)
}

// Active returns the caller's open record for today; data is null when
// there is none.
func (ac *AttendanceController) Active(c *gin.Context) {
	rec, err := ac.Service.Active(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "activa": rec != nil, "data": rec})
}

func (ac *AttendanceController) RealTime(c *gin.Context) {
	inHouseID, err := optionalID(c.Query("inHouseId"), "inHouseId")
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	status, err := ac.Service.RealTime(c.Request.Context(), inHouseID)
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respond(c, http.StatusOK, status)
}

func (ac *AttendanceController) List(c *gin.Context) {
	userID, err := optionalID(c.Query("usuarioId"), "usuarioId")
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	records, err := ac.Service.List(c.Request.Context(), attendance.Filter{
		UserID: userID,
		From:   c.Query("fechaInicio"),
		To:     c.Query("fechaFin"),
		Limit:  queryInt(c, "limit", 100),
	})
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "total": len(records), "data": records})
}

func (ac *AttendanceController) Range(c *gin.Context) {
	userID, err := optionalID(c.Query("usuarioId"), "usuarioId")
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	records, err := ac.Service.Range(c.Request.Context(), c.Query("fechaInicio"), c.Query("fechaFin"), userID)
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "total": len(records), "data": records})
}

func (ac *AttendanceController) Stats(c *gin.Context) {
	stats, err := ac.Service.Stats(c.Request.Context(), c.Query("fechaInicio"), c.Query("fechaFin"))
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (ac *AttendanceController) UserHistory(c *gin.Context) {
	userID, err := pathID(c, "id")
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	history, err := ac.Service.UserHistory(c.Request.Context(), middleware.CurrentUser(c), userID, queryInt(c, "limit", 30))
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respond(c, http.StatusOK, history)
}

func (ac *AttendanceController) DailySummary(c *gin.Context) {
	summary, err := ac.Service.DailySummary(c.Request.Context(), queryInt(c, "dias", 7))
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respond(c, http.StatusOK, summary)
}

func (ac *AttendanceController) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	if err := ac.Service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Asistencia eliminada exitosamente", nil)
}
