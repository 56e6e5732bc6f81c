package controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/store"
	"github.com/zaqqye/inhouse_attendance/internal/utils"
)

type AreaController struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

var areaSorts = map[string]string{
	"created_at": "created_at",
	"nombre":     "name",
	"codigo":     "code",
	"activo":     "active",
}

var errDuplicateArea = apperr.Validation("El código o nombre de área ya existe")

type createAreaRequest struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
	Code        string `json:"codigo"`
	AdminID     string `json:"administrador"`
}

type updateAreaRequest struct {
	Name        *string `json:"nombre"`
	Description *string `json:"descripcion"`
	Code        *string `json:"codigo"`
	AdminID     *string `json:"administrador"`
	Active      *bool   `json:"activo"`
}

// promoteAdmin checks the area administrator exists and gives them the
// admin_area role unless they are already an admin.
func promoteAdmin(tx *gorm.DB, rawID string) (*string, error) {
	id, err := optionalUUID(rawID)
	if err != nil {
		return nil, apperr.Validation("Administrador inválido")
	}
	if id == nil {
		return nil, nil
	}
	var admin models.User
	if err := tx.Where("id = ?", *id).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Usuario administrador no encontrado")
		}
		return nil, err
	}
	if admin.Role != models.RoleAreaAdmin && admin.Role != models.RoleAdmin {
		if err := tx.Model(&admin).Update("role", models.RoleAreaAdmin).Error; err != nil {
			return nil, err
		}
	}
	return id, nil
}

func (ac *AreaController) CreateArea(c *gin.Context) {
	var req createAreaRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(c, ac.Logger, apperr.Validation("El nombre del área es obligatorio"))
		return
	}
	code := utils.NormalizeCode(req.Code)
	if code == "" {
		generated, err := utils.GenerateCode(6)
		if err != nil {
			respondError(c, ac.Logger, err)
			return
		}
		code = "AREA-" + generated
	}

	area := models.Area{Name: name, Description: strings.TrimSpace(req.Description), Code: code, Active: true}
	err := ac.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		adminID, err := promoteAdmin(tx, req.AdminID)
		if err != nil {
			return err
		}
		area.AdminID = adminID
		return tx.Create(&area).Error
	})
	if store.IsUniqueViolation(err) {
		err = errDuplicateArea
	}
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respondMessage(c, http.StatusCreated, "Área creada exitosamente", area)
}

func (ac *AreaController) ListAreas(c *gin.Context) {
	p := parseListParams(c, 20, areaSorts, "created_at")
	q := ac.DB.WithContext(c.Request.Context()).Model(&models.Area{})
	if text := strings.TrimSpace(c.Query("q")); text != "" {
		like := "%" + text + "%"
		q = q.Where("name ILIKE ? OR code ILIKE ?", like, like)
	}
	active, err := parseActive(c.Query("activo"))
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	if active != nil {
		q = q.Where("active = ?", *active)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	listQ := q.Order(p.Order())
	if !p.All {
		listQ = listQ.Offset(p.Offset()).Limit(p.Limit)
	}
	var areas []models.Area
	if err := listQ.Find(&areas).Error; err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": areas, "meta": p.Meta(total)})
}

func (ac *AreaController) load(c *gin.Context) (*models.Area, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	var area models.Area
	err = ac.DB.WithContext(c.Request.Context()).Where("id = ?", id).First(&area).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Área no encontrada")
	}
	if err != nil {
		return nil, err
	}
	return &area, nil
}

func (ac *AreaController) GetArea(c *gin.Context) {
	area, err := ac.load(c)
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respond(c, http.StatusOK, area)
}

func (ac *AreaController) UpdateArea(c *gin.Context) {
	area, err := ac.load(c)
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	var req updateAreaRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		area.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		area.Description = strings.TrimSpace(*req.Description)
	}
	if req.Code != nil && utils.NormalizeCode(*req.Code) != "" {
		area.Code = utils.NormalizeCode(*req.Code)
	}
	if req.Active != nil {
		area.Active = *req.Active
	}

	err = ac.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if req.AdminID != nil {
			adminID, err := promoteAdmin(tx, *req.AdminID)
			if err != nil {
				return err
			}
			area.AdminID = adminID
		}
		return tx.Save(area).Error
	})
	if store.IsUniqueViolation(err) {
		err = errDuplicateArea
	}
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Área actualizada exitosamente", area)
}

// DeleteArea refuses while In Houses still reference the area.
func (ac *AreaController) DeleteArea(c *gin.Context) {
	area, err := ac.load(c)
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	db := ac.DB.WithContext(c.Request.Context())
	var inHouses int64
	if err := db.Model(&models.InHouse{}).Where("area_id = ?", area.ID).Count(&inHouses).Error; err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	if inHouses > 0 {
		respondError(c, ac.Logger, apperr.Validation(
			fmt.Sprintf("No se puede eliminar el área porque tiene %d In House(s) asociado(s)", inHouses)))
		return
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("area_id = ?", area.ID).Update("area_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(area).Error
	})
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Área eliminada exitosamente", nil)
}

type areaStats struct {
	InHouses int64  `json:"totalEmpresas"`
	Users    int64  `json:"totalUsuarios"`
	Name     string `json:"nombre"`
	Code     string `json:"codigo"`
}

func (ac *AreaController) AreaStats(c *gin.Context) {
	area, err := ac.load(c)
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	db := ac.DB.WithContext(c.Request.Context())
	stats := areaStats{Name: area.Name, Code: area.Code}
	if err := db.Model(&models.InHouse{}).Where("area_id = ? AND active = ?", area.ID, true).Count(&stats.InHouses).Error; err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	if err := db.Model(&models.User{}).Where("area_id = ? AND active = ?", area.ID, true).Count(&stats.Users).Error; err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (ac *AreaController) AreaInHouses(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	var inHouses []models.InHouse
	if err := ac.DB.WithContext(c.Request.Context()).
		Where("area_id = ? AND active = ?", id, true).
		Order("name ASC").
		Find(&inHouses).Error; err != nil {
		respondError(c, ac.Logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"total": len(inHouses), "inHouses": inHouses})
}
