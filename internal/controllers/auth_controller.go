package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/utils"
)

// AccountStore finds login accounts by email. Missing accounts are (nil, nil).
type AccountStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindInHouseByEmail(ctx context.Context, email string) (*models.InHouse, error)
}

type AuthController struct {
	Store  AccountStore
	Auth   middleware.AuthConfig
	Logger *slog.Logger
}

type loginRequest struct {
	Email    string `json:"correo"`
	Password string `json:"password"`
}

type userProfile struct {
	ID        string      `json:"id"`
	FirstName string      `json:"nombre"`
	LastName  string      `json:"apellidos"`
	FullName  string      `json:"nombreCompleto"`
	Email     string      `json:"correo"`
	Phone     string      `json:"celular"`
	AreaID    *string     `json:"areaId"`
	Role      models.Role `json:"rol"`
	Active    bool        `json:"activo"`
	CreatedAt time.Time   `json:"createdAt"`
}

func profileOf(u *models.User) userProfile {
	return userProfile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Email:     u.Email,
		Phone:     u.Phone,
		AreaID:    u.AreaID,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type inHousePermissions struct {
	Realtime bool `json:"verTiempoReal"`
	History  bool `json:"verHistorial"`
	Export   bool `json:"exportarReportes"`
}

type inHouseProfile struct {
	ID          string             `json:"id"`
	Name        string             `json:"nombre"`
	Manager     string             `json:"encargado"`
	Email       string             `json:"correo"`
	AreaID      string             `json:"areaId"`
	Permissions inHousePermissions `json:"permisos"`
}

func inHouseProfileOf(h *models.InHouse) inHouseProfile {
	return inHouseProfile{
		ID:      h.ID,
		Name:    h.Name,
		Manager: h.Manager,
		Email:   h.Email,
		AreaID:  h.AreaID,
		Permissions: inHousePermissions{
			Realtime: h.CanViewRealtime,
			History:  h.CanViewHistory,
			Export:   h.CanExport,
		},
	}
}

func (r loginRequest) normalized() (string, string, error) {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if email == "" || r.Password == "" {
		return "", "", apperr.Validation("Por favor proporcione correo y contraseña")
	}
	return email, r.Password, nil
}

var errBadCredentials = apperr.Auth("Credenciales inválidas")

func (a *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, a.Logger, err)
		return
	}
	email, password, err := req.normalized()
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}

	user, err := a.Store.FindUserByEmail(c.Request.Context(), email)
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}
	if user == nil {
		respondError(c, a.Logger, errBadCredentials)
		return
	}
	if !user.Active {
		respondError(c, a.Logger, apperr.Auth("Usuario inactivo. Contacte al administrador"))
		return
	}
	if !utils.CheckPassword(user.Password, password) {
		respondError(c, a.Logger, errBadCredentials)
		return
	}

	token, expires, err := a.Auth.IssueToken(user.ID, user.Role, middleware.KindUser)
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}
	a.Logger.InfoContext(c.Request.Context(), "User logged in", "userID", user.ID, "role", user.Role)
	respondMessage(c, http.StatusOK, "Inicio de sesión exitoso", gin.H{
		"token":     token,
		"expiresAt": expires,
		"usuario":   profileOf(user),
	})
}

func (a *AuthController) Profile(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		respondError(c, a.Logger, apperr.NotFound("Usuario no encontrado"))
		return
	}
	respond(c, http.StatusOK, gin.H{"usuario": profileOf(user)})
}

// Verify confirms the bearer token is still valid for an active account.
func (a *AuthController) Verify(c *gin.Context) {
	if inHouse := middleware.CurrentInHouse(c); inHouse != nil {
		respond(c, http.StatusOK, gin.H{"valido": true, "inHouse": inHouseProfileOf(inHouse)})
		return
	}
	user := middleware.CurrentUser(c)
	if user == nil {
		respondError(c, a.Logger, apperr.Auth("Token inválido"))
		return
	}
	respond(c, http.StatusOK, gin.H{"valido": true, "usuario": profileOf(user)})
}

func (a *AuthController) InHouseLogin(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, a.Logger, err)
		return
	}
	email, password, err := req.normalized()
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}

	inHouse, err := a.Store.FindInHouseByEmail(c.Request.Context(), email)
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}
	if inHouse == nil || !inHouse.Active || !utils.CheckPassword(inHouse.Password, password) {
		respondError(c, a.Logger, errBadCredentials)
		return
	}

	token, expires, err := a.Auth.IssueToken(inHouse.ID, "", middleware.KindInHouse)
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Inicio de sesión exitoso", gin.H{
		"token":     token,
		"expiresAt": expires,
		"inHouse":   inHouseProfileOf(inHouse),
	})
}
