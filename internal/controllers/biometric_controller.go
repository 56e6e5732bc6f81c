package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/biometric"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

type BiometricService interface {
	Enroll(ctx context.Context, req biometric.EnrollRequest) (*biometric.EnrollmentSummary, error)
	Verify(ctx context.Context, req biometric.VerifyRequest) (*biometric.VerifyResult, error)
	ListByUser(ctx context.Context, userID string) ([]models.Biometric, error)
	HasFingerprints(ctx context.Context, userID string) (*biometric.EnrollmentCheck, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*biometric.Stats, error)
}

type BiometricController struct {
	Service BiometricService
	Logger  *slog.Logger
}

func (bc *BiometricController) Enroll(c *gin.Context) {
	var req biometric.EnrollRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	userID, err := optionalID(req.UserID, "usuarioId")
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	req.UserID = userID
	summary, err := bc.Service.Enroll(c.Request.Context(), req)
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	respondMessage(c, http.StatusCreated, "Huella registrada exitosamente", summary)
}

// Verify identifies a live template and toggles the owner's attendance.
func (bc *BiometricController) Verify(c *gin.Context) {
	var req biometric.VerifyRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	inHouseID, err := optionalID(req.InHouseID, "inHouseId")
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	req.InHouseID = inHouseID
	req.UserAgent = c.Request.UserAgent()
	req.IP = c.ClientIP()

	res, err := bc.Service.Verify(c.Request.Context(), req)
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	message := "Salida registrada exitosamente"
	if res.Action == attendance.ActionCheckIn {
		message = "Ingreso registrado exitosamente"
	}
	respondMessage(c, http.StatusOK, message, res)
}

// ownerOrStaff lets plain users read only their own enrollments.
func ownerOrStaff(c *gin.Context, userID string) error {
	user := middleware.CurrentUser(c)
	if user != nil && user.Role == models.RoleUser && user.ID != userID {
		return apperr.Forbidden("No tienes permiso para ver las huellas de otro usuario")
	}
	return nil
}

func (bc *BiometricController) ListByUser(c *gin.Context) {
	userID, err := pathID(c, "id")
	if err == nil {
		err = ownerOrStaff(c, userID)
	}
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	prints, err := bc.Service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	respond(c, http.StatusOK, prints)
}

func (bc *BiometricController) Check(c *gin.Context) {
	userID, err := pathID(c, "id")
	if err == nil {
		err = ownerOrStaff(c, userID)
	}
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	check, err := bc.Service.HasFingerprints(c.Request.Context(), userID)
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	respond(c, http.StatusOK, check)
}

func (bc *BiometricController) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	if err := bc.Service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Huella eliminada exitosamente", nil)
}

func (bc *BiometricController) Stats(c *gin.Context) {
	stats, err := bc.Service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, bc.Logger, err)
		return
	}
	respond(c, http.StatusOK, stats)
}
