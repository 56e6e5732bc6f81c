package controllers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/store"
	"github.com/zaqqye/inhouse_attendance/internal/utils"
)

type UserController struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

var userSorts = map[string]string{
	"created_at": "created_at",
	"nombre":     "first_name",
	"apellidos":  "last_name",
	"correo":     "email",
	"rol":        "role",
	"activo":     "active",
}

var errDuplicateEmail = apperr.Validation("El correo ya está registrado")

func validEmail(email string) error {
	if err := checkmail.ValidateFormat(email); err != nil {
		return apperr.Validation("Correo electrónico inválido", email)
	}
	return nil
}

func (uc *UserController) areaExists(tx *gorm.DB, areaID string) error {
	var n int64
	if err := tx.Model(&models.Area{}).Where("id = ?", areaID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("Área no encontrada")
	}
	return nil
}

// ListUsers supports q, rol, activo, areaId plus the usual pagination.
func (uc *UserController) ListUsers(c *gin.Context) {
	p := parseListParams(c, 50, userSorts, "created_at")

	q := uc.DB.WithContext(c.Request.Context()).Model(&models.User{})
	if text := strings.TrimSpace(c.Query("q")); text != "" {
		like := "%" + text + "%"
		q = q.Where("first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?", like, like, like)
	}
	if raw := strings.TrimSpace(c.Query("rol")); raw != "" {
		role, ok := models.ParseRole(strings.ToLower(raw))
		if !ok {
			respondError(c, uc.Logger, apperr.Validation("Rol inválido"))
			return
		}
		q = q.Where("role = ?", role)
	}
	active, err := parseActive(c.Query("activo"))
	if err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	if active != nil {
		q = q.Where("active = ?", *active)
	}
	if areaID := strings.TrimSpace(c.Query("areaId")); areaID != "" {
		q = q.Where("area_id = ?", areaID)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	listQ := q.Order(p.Order())
	if !p.All {
		listQ = listQ.Offset(p.Offset()).Limit(p.Limit)
	}
	var users []models.User
	if err := listQ.Find(&users).Error; err != nil {
		respondError(c, uc.Logger, err)
		return
	}

	out := make([]userProfile, 0, len(users))
	for i := range users {
		out = append(out, profileOf(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out, "meta": p.Meta(total)})
}

func (uc *UserController) ListByRole(c *gin.Context) {
	role, ok := models.ParseRole(strings.ToLower(strings.TrimSpace(c.Param("rol"))))
	if !ok {
		respondError(c, uc.Logger, apperr.Validation("Rol inválido"))
		return
	}
	var users []models.User
	if err := uc.DB.WithContext(c.Request.Context()).
		Where("role = ? AND active = ?", role, true).
		Order("first_name ASC").
		Find(&users).Error; err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	out := make([]userProfile, 0, len(users))
	for i := range users {
		out = append(out, profileOf(&users[i]))
	}
	respond(c, http.StatusOK, out)
}

func (uc *UserController) load(c *gin.Context) (*models.User, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	var u models.User
	err = uc.DB.WithContext(c.Request.Context()).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Usuario no encontrado")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (uc *UserController) GetUser(c *gin.Context) {
	u, err := uc.load(c)
	if err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	respond(c, http.StatusOK, profileOf(u))
}

type createUserRequest struct {
	FirstName string         `json:"nombre"`
	LastName  string         `json:"apellidos"`
	Email     string         `json:"correo"`
	Password  string         `json:"password"`
	Phone     FlexibleString `json:"celular"`
	AreaID    string         `json:"areaId"`
	Role      string         `json:"rol"`
	Active    *bool          `json:"activo"`
}

// toUser validates the request and builds the user with a hashed password.
func (r createUserRequest) toUser() (*models.User, error) {
	firstName := strings.TrimSpace(r.FirstName)
	lastName := strings.TrimSpace(r.LastName)
	email := strings.ToLower(strings.TrimSpace(r.Email))
	phone := strings.TrimSpace(r.Phone.String())
	if firstName == "" || lastName == "" || email == "" || r.Password == "" || phone == "" {
		return nil, apperr.Validation("Todos los campos son obligatorios")
	}
	if err := validEmail(email); err != nil {
		return nil, err
	}
	if len(r.Password) < utils.MinPasswordLength {
		return nil, apperr.Validation(fmt.Sprintf("La contraseña debe tener al menos %d caracteres", utils.MinPasswordLength))
	}
	role := models.RoleUser
	if r.Role != "" {
		parsed, ok := models.ParseRole(strings.ToLower(strings.TrimSpace(r.Role)))
		if !ok {
			return nil, apperr.Validation("Rol inválido")
		}
		role = parsed
	}
	areaID, err := optionalUUID(r.AreaID)
	if err != nil {
		return nil, apperr.Validation("Área inválida")
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	hashed, err := utils.HashPassword(r.Password)
	if err != nil {
		return nil, err
	}
	return &models.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Phone:     phone,
		AreaID:    areaID,
		Role:      role,
		Password:  hashed,
		Active:    active,
	}, nil
}

func (uc *UserController) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	user, err := req.toUser()
	if err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	if err := uc.create(uc.DB.WithContext(c.Request.Context()), user); err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	respondMessage(c, http.StatusCreated, "Usuario creado exitosamente", profileOf(user))
}

func (uc *UserController) create(tx *gorm.DB, user *models.User) error {
	if user.AreaID != nil {
		if err := uc.areaExists(tx, *user.AreaID); err != nil {
			return err
		}
	}
	if err := tx.Create(user).Error; err != nil {
		if store.IsUniqueViolation(err) {
			return errDuplicateEmail
		}
		return err
	}
	return nil
}

type updateUserRequest struct {
	FirstName *string         `json:"nombre"`
	LastName  *string         `json:"apellidos"`
	Email     *string         `json:"correo"`
	Password  *string         `json:"password"`
	Phone     *FlexibleString `json:"celular"`
	AreaID    *string         `json:"areaId"`
	Role      *string         `json:"rol"`
	Active    *bool           `json:"activo"`
}

func (uc *UserController) UpdateUser(c *gin.Context) {
	u, err := uc.load(c)
	if err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	var req updateUserRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	db := uc.DB.WithContext(c.Request.Context())

	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if err := validEmail(email); err != nil {
			respondError(c, uc.Logger, err)
			return
		}
		u.Email = email
	}
	if req.Phone != nil {
		u.Phone = req.Phone.String()
	}
	if req.AreaID != nil {
		areaID, err := optionalUUID(*req.AreaID)
		if err != nil {
			respondError(c, uc.Logger, apperr.Validation("Área inválida"))
			return
		}
		if areaID != nil {
			if err := uc.areaExists(db, *areaID); err != nil {
				respondError(c, uc.Logger, err)
				return
			}
		}
		u.AreaID = areaID
	}
	if req.Role != nil {
		role, ok := models.ParseRole(strings.ToLower(strings.TrimSpace(*req.Role)))
		if !ok {
			respondError(c, uc.Logger, apperr.Validation("Rol inválido"))
			return
		}
		u.Role = role
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.Password != nil && strings.TrimSpace(*req.Password) != "" {
		if len(*req.Password) < utils.MinPasswordLength {
			respondError(c, uc.Logger, apperr.Validation(fmt.Sprintf("La contraseña debe tener al menos %d caracteres", utils.MinPasswordLength)))
			return
		}
		hashed, err := utils.HashPassword(*req.Password)
		if err != nil {
			respondError(c, uc.Logger, err)
			return
		}
		u.Password = hashed
	}

	if err := db.Save(u).Error; err != nil {
		if store.IsUniqueViolation(err) {
			respondError(c, uc.Logger, errDuplicateEmail)
			return
		}
		respondError(c, uc.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Usuario actualizado exitosamente", profileOf(u))
}

// DeleteUser removes the user together with memberships, fingerprints and
// attendance history.
func (uc *UserController) DeleteUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	if current := middleware.CurrentUser(c); current != nil && current.ID == id {
		respondError(c, uc.Logger, apperr.Validation("No puedes eliminar tu propia cuenta"))
		return
	}
	err = uc.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Limit(1).Find(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("Usuario no encontrado")
		}
		if err := tx.Model(&models.Area{}).Where("admin_id = ?", id).Update("admin_id", nil).Error; err != nil {
			return err
		}
		for _, model := range []any{&models.InHouseMember{}, &models.Biometric{}, &models.Attendance{}} {
			if err := tx.Where("user_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&models.User{}).Error
	})
	if err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	respondMessage(c, http.StatusOK, "Usuario eliminado exitosamente", nil)
}

type userImportError struct {
	Row   int    `json:"fila"`
	Email string `json:"correo,omitempty"`
	Error string `json:"error"`
}

// ImportUsers bulk-creates users from a CSV upload (form field "file").
// Header columns, case-insensitive: nombre, apellidos, correo, password,
// celular, rol (optional), activo (optional), area_codigo (optional).
func (uc *UserController) ImportUsers(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		respondError(c, uc.Logger, apperr.Validation("No se pudo leer el formulario"))
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, uc.Logger, apperr.Validation("El archivo es obligatorio"))
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		respondError(c, uc.Logger, apperr.Validation("Solo se permiten archivos .csv"))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, uc.Logger, apperr.Validation("No se pudo leer el archivo"))
		return
	}

	rows, err := parseUserCSV(data)
	if err != nil {
		respondError(c, uc.Logger, err)
		return
	}

	db := uc.DB.WithContext(c.Request.Context())
	areaByCode := map[string]string{}
	var created int
	var failures []userImportError
	for _, row := range rows {
		req := row.request
		if code := utils.NormalizeCode(row.areaCode); code != "" {
			areaID, ok := areaByCode[code]
			if !ok {
				var area models.Area
				if err := db.Where("code = ?", code).First(&area).Error; err != nil {
					failures = append(failures, userImportError{Row: row.line, Email: req.Email, Error: fmt.Sprintf("área '%s' no encontrada", code)})
					continue
				}
				areaID = area.ID
				areaByCode[code] = areaID
			}
			req.AreaID = areaID
		}
		user, err := req.toUser()
		if err == nil {
			err = uc.create(db, user)
		}
		if err != nil {
			msg := err.Error()
			if ae, ok := apperr.As(err); ok {
				msg = ae.Message
			}
			failures = append(failures, userImportError{Row: row.line, Email: req.Email, Error: msg})
			continue
		}
		created++
	}

	uc.Logger.InfoContext(c.Request.Context(), "Imported users", "rows", len(rows), "created", created, "failed", len(failures))
	respond(c, http.StatusOK, gin.H{
		"resumen": gin.H{
			"totalFilas": len(rows),
			"creados":    created,
			"fallidos":   len(failures),
		},
		"errores": failures,
	})
}

type csvUserRow struct {
	line     int
	request  createUserRequest
	areaCode string
}

func parseUserCSV(data []byte) ([]csvUserRow, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperr.Validation("El archivo está vacío")
	}
	data = bytes.ReplaceAll(data, []byte{'\r', '\n'}, []byte{'\n'})
	data = bytes.ReplaceAll(data, []byte{'\r'}, []byte{'\n'})

	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	firstLine, _, _ := bytes.Cut(data, []byte{'\n'})
	if bytes.Contains(firstLine, []byte{';'}) && !bytes.Contains(firstLine, []byte{','}) {
		r.Comma = ';'
	}

	header, err := r.Read()
	if err != nil {
		return nil, apperr.Validation("No se pudo leer el encabezado")
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.Trim(strings.TrimSpace(col), "\"'"))] = i
	}
	for _, key := range []string{"nombre", "apellidos", "correo", "password", "celular"} {
		if _, ok := idx[key]; !ok {
			return nil, apperr.Validation(fmt.Sprintf("Falta la columna: %s", key))
		}
	}
	get := func(record []string, key string) string {
		i, ok := idx[key]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []csvUserRow
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("Fila %d mal formada", line))
		}
		req := createUserRequest{
			FirstName: get(record, "nombre"),
			LastName:  get(record, "apellidos"),
			Email:     get(record, "correo"),
			Password:  get(record, "password"),
			Phone:     FlexibleString(get(record, "celular")),
			Role:      get(record, "rol"),
		}
		if raw := get(record, "activo"); raw != "" {
			active, err := parseActive(raw)
			if err != nil {
				return nil, apperr.Validation(fmt.Sprintf("Fila %d: valor de activo inválido", line))
			}
			req.Active = active
		}
		rows = append(rows, csvUserRow{line: line, request: req, areaCode: get(record, "area_codigo")})
	}
	return rows, nil
}
