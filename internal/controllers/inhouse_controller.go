package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/store"
	"github.com/zaqqye/inhouse_attendance/internal/utils"
)

// RealTimer reports who is checked in at an In House today.
type RealTimer interface {
	RealTime(ctx context.Context, inHouseID string) (*attendance.RealTimeStatus, error)
}

type InHouseController struct {
	DB         *gorm.DB
	Attendance RealTimer
	Logger     *slog.Logger
}

var inHouseSorts = map[string]string{
	"created_at": "created_at",
	"nombre":     "name",
	"activo":     "active",
}

var (
	errInHouseNotFound  = apperr.NotFound("In House no encontrado")
	errOutsideArea      = apperr.Forbidden("Solo puedes gestionar In Houses de tu área")
	errDuplicateInHouse = apperr.Validation("El correo ya está registrado")
)

type permissionsRequest struct {
	Realtime *bool `json:"verTiempoReal"`
	History  *bool `json:"verHistorial"`
	Export   *bool `json:"exportarReportes"`
}

func (p *permissionsRequest) apply(h *models.InHouse) {
	if p == nil {
		return
	}
	if p.Realtime != nil {
		h.CanViewRealtime = *p.Realtime
	}
	if p.History != nil {
		h.CanViewHistory = *p.History
	}
	if p.Export != nil {
		h.CanExport = *p.Export
	}
}

type createInHouseRequest struct {
	Name        string              `json:"nombre"`
	AreaID      string              `json:"areaId"`
	Manager     string              `json:"encargado"`
	Email       string              `json:"correo"`
	Password    string              `json:"password"`
	Permissions *permissionsRequest `json:"permisos"`
}

type updateInHouseRequest struct {
	Name        *string             `json:"nombre"`
	Manager     *string             `json:"encargado"`
	Email       *string             `json:"correo"`
	Password    *string             `json:"password"`
	Permissions *permissionsRequest `json:"permisos"`
	Active      *bool               `json:"activo"`
}

// manages reports whether user may administer In Houses of areaID.
func manages(user *models.User, areaID string) bool {
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}
	return user.Role == models.RoleAreaAdmin && user.AreaID != nil && *user.AreaID == areaID
}

func (ic *InHouseController) CreateInHouse(c *gin.Context) {
	var req createInHouseRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	manager := strings.TrimSpace(req.Manager)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || manager == "" || email == "" || req.Password == "" || req.AreaID == "" {
		respondError(c, ic.Logger, apperr.Validation("Todos los campos son obligatorios"))
		return
	}
	if err := validEmail(email); err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if len(req.Password) < utils.MinPasswordLength {
		respondError(c, ic.Logger, apperr.Validation("La contraseña es demasiado corta"))
		return
	}
	areaID, err := optionalUUID(req.AreaID)
	if err != nil {
		respondError(c, ic.Logger, apperr.Validation("Área inválida"))
		return
	}
	if !manages(middleware.CurrentUser(c), *areaID) {
		respondError(c, ic.Logger, errOutsideArea)
		return
	}

	db := ic.DB.WithContext(c.Request.Context())
	var areas int64
	if err := db.Model(&models.Area{}).Where("id = ?", *areaID).Count(&areas).Error; err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if areas == 0 {
		respondError(c, ic.Logger, apperr.NotFound("Área no encontrada"))
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	inHouse := models.InHouse{
		Name:            name,
		AreaID:          *areaID,
		Manager:         manager,
		Email:           email,
		Password:        hashed,
		Active:          true,
		CanViewRealtime: true,
		CanViewHistory:  true,
	}
	req.Permissions.apply(&inHouse)
	if err := db.Create(&inHouse).Error; err != nil {
		if store.IsUniqueViolation(err) {
			err = errDuplicateInHouse
		}
		respondError(c, ic.Logger, err)
		return
	}
	respondMessage(c, http.StatusCreated, "In House creado exitosamente", inHouseProfileOf(&inHouse))
}

// ListInHouses is scoped by role: plain users see the In Houses they are
// assigned to, area administrators their area, admin and ceo everything.
func (ic *InHouseController) ListInHouses(c *gin.Context) {
	user := middleware.CurrentUser(c)
	p := parseListParams(c, 50, inHouseSorts, "nombre")
	p.SortDir = strings.ToUpper(c.DefaultQuery("sort_dir", "ASC"))
	if p.SortDir != "DESC" {
		p.SortDir = "ASC"
	}

	db := ic.DB.WithContext(c.Request.Context())
	q := db.Model(&models.InHouse{})
	switch user.Role {
	case models.RoleAdmin, models.RoleCEO:
	case models.RoleAreaAdmin:
		if user.AreaID == nil {
			q = q.Where("1 = 0")
		} else {
			q = q.Where("area_id = ?", *user.AreaID)
		}
	default:
		members := db.Model(&models.InHouseMember{}).Select("in_house_id").Where("user_id = ?", user.ID)
		q = q.Where("id IN (?) AND active = ?", members, true)
	}
	if areaID := strings.TrimSpace(c.Query("areaId")); areaID != "" {
		q = q.Where("area_id = ?", areaID)
	}
	active, err := parseActive(c.Query("activo"))
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if active != nil {
		q = q.Where("active = ?", *active)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	listQ := q.Order(p.Order())
	if !p.All {
		listQ = listQ.Offset(p.Offset()).Limit(p.Limit)
	}
	var inHouses []models.InHouse
	if err := listQ.Find(&inHouses).Error; err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	out := make([]inHouseProfile, 0, len(inHouses))
	for i := range inHouses {
		out = append(out, inHouseProfileOf(&inHouses[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out, "meta": p.Meta(total)})
}

func (ic *InHouseController) load(c *gin.Context) (*models.InHouse, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	var inHouse models.InHouse
	err = ic.DB.WithContext(c.Request.Context()).Where("id = ?", id).First(&inHouse).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errInHouseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inHouse, nil
}

type memberRow struct {
	UserID    string `json:"usuarioId"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellidos"`
	Email     string `json:"correo"`
}

func (ic *InHouseController) members(ctx context.Context, inHouseID string) ([]memberRow, error) {
	var rows []memberRow
	err := ic.DB.WithContext(ctx).Table("in_house_members AS m").
		Select("u.id AS user_id, u.first_name, u.last_name, u.email").
		Joins("JOIN users u ON u.id = m.user_id").
		Where("m.in_house_id = ?", inHouseID).
		Order("u.first_name ASC").
		Scan(&rows).Error
	return rows, err
}

func (ic *InHouseController) GetInHouse(c *gin.Context) {
	inHouse, err := ic.load(c)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	members, err := ic.members(c.Request.Context(), inHouse.ID)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"inHouse": inHouseProfileOf(inHouse), "usuariosAsignados": members})
}

func (ic *InHouseController) UpdateInHouse(c *gin.Context) {
	inHouse, err := ic.load(c)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if !manages(middleware.CurrentUser(c), inHouse.AreaID) {
		respondError(c, ic.Logger, errOutsideArea)
		return
	}
	var req updateInHouseRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		inHouse.Name = strings.TrimSpace(*req.Name)
	}
	if req.Manager != nil && strings.TrimSpace(*req.Manager) != "" {
		inHouse.Manager = strings.TrimSpace(*req.Manager)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if err := validEmail(email); err != nil {
			respondError(c, ic.Logger, err)
			return
		}
		inHouse.Email = email
	}
	if req.Password != nil && *req.Password != "" {
		hashed, err := utils.HashPassword(*req.Password)
		if err != nil {
			respondError(c, ic.Logger, err)
			return
		}
		inHouse.Password = hashed
	}
	req.Permissions.apply(inHouse)
	if req.Active != nil {
		inHouse.Active = *req.Active
	}
	if err := ic.DB.WithContext(c.Request.Context()).Save(inHouse).Error; err != nil {
		if store.IsUniqueViolation(err) {
			err = errDuplicateInHouse
		}
		respondError(c, ic.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "In House actualizado exitosamente", inHouseProfileOf(inHouse))
}

type assignRequest struct {
	UserID string `json:"usuarioId" binding:"required"`
}

// AssignUser adds a user of the In House's area to it.
func (ic *InHouseController) AssignUser(c *gin.Context) {
	inHouse, err := ic.load(c)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if !manages(middleware.CurrentUser(c), inHouse.AreaID) {
		respondError(c, ic.Logger, errOutsideArea)
		return
	}
	var req assignRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	db := ic.DB.WithContext(c.Request.Context())
	var user models.User
	if err := db.Where("id = ?", strings.TrimSpace(req.UserID)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = apperr.NotFound("Usuario no encontrado")
		}
		respondError(c, ic.Logger, err)
		return
	}
	switch {
	case user.AreaID == nil:
		err = apperr.Validation("El usuario no tiene un área asignada")
	case inHouse.AreaID == "":
		err = apperr.Validation("El In House no tiene un área asignada")
	case *user.AreaID != inHouse.AreaID:
		err = apperr.Validation("El usuario no pertenece al área del In House")
	}
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}

	rec := models.InHouseMember{InHouseID: inHouse.ID, UserID: user.ID}
	if err := db.Create(&rec).Error; err != nil {
		if store.IsUniqueViolation(err) {
			err = apperr.Validation("El usuario ya está asignado a este In House")
		}
		respondError(c, ic.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Usuario asignado exitosamente", gin.H{"inHouseId": inHouse.ID, "usuarioId": user.ID})
}

func (ic *InHouseController) RemoveUser(c *gin.Context) {
	inHouse, err := ic.load(c)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if !manages(middleware.CurrentUser(c), inHouse.AreaID) {
		respondError(c, ic.Logger, errOutsideArea)
		return
	}
	userID, err := pathID(c, "usuarioId")
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if err := ic.DB.WithContext(c.Request.Context()).
		Where("in_house_id = ? AND user_id = ?", inHouse.ID, userID).
		Delete(&models.InHouseMember{}).Error; err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Usuario removido exitosamente", nil)
}

// canView admits the In House's own account when it has the realtime
// permission, and admin, ceo or the area administrator.
func canView(c *gin.Context, inHouse *models.InHouse) bool {
	if principal := middleware.CurrentInHouse(c); principal != nil {
		return principal.ID == inHouse.ID && principal.CanViewRealtime
	}
	user := middleware.CurrentUser(c)
	if user == nil {
		return false
	}
	if user.Role == models.RoleCEO {
		return true
	}
	return manages(user, inHouse.AreaID)
}

func (ic *InHouseController) RealTime(c *gin.Context) {
	inHouse, err := ic.load(c)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if !canView(c, inHouse) {
		respondError(c, ic.Logger, apperr.Forbidden("No tienes permisos para ver este In House"))
		return
	}
	status, err := ic.Attendance.RealTime(c.Request.Context(), inHouse.ID)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"fecha":             status.Date,
		"inHouse":           gin.H{"nombre": inHouse.Name, "encargado": inHouse.Manager},
		"resumen":           status.Summary,
		"usuariosActivos":   status.Active,
		"usuariosInactivos": status.Inactive,
	})
}

type inHouseStats struct {
	TotalUsers    int    `json:"totalUsuarios"`
	ActiveUsers   int    `json:"usuariosActivosHoy"`
	CheckInsToday int    `json:"totalIngresosHoy"`
	Name          string `json:"nombre"`
	Manager       string `json:"encargado"`
}

func (ic *InHouseController) Stats(c *gin.Context) {
	inHouse, err := ic.load(c)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if !canView(c, inHouse) {
		respondError(c, ic.Logger, apperr.Forbidden("No tienes permisos para ver este In House"))
		return
	}
	status, err := ic.Attendance.RealTime(c.Request.Context(), inHouse.ID)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	respond(c, http.StatusOK, inHouseStats{
		TotalUsers:    status.Summary.TotalUsers,
		ActiveUsers:   status.Summary.ActiveUsers,
		CheckInsToday: status.Summary.TotalCheckIns,
		Name:          inHouse.Name,
		Manager:       inHouse.Manager,
	})
}
