package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/utils"
)

type fakeAccounts struct {
	users    map[string]*models.User
	inHouses map[string]*models.InHouse
	err      error
}

func (f *fakeAccounts) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[email], nil
}

func (f *fakeAccounts) FindInHouseByEmail(_ context.Context, email string) (*models.InHouse, error) {
	return f.inHouses[email], nil
}

func newAuthController(t *testing.T) (*AuthController, *fakeAccounts) {
	t.Helper()
	hash, err := utils.HashPassword("secreto1")
	if err != nil {
		t.Fatal(err)
	}
	store := &fakeAccounts{
		users: map[string]*models.User{
			"ana@example.com":   {ID: "u-1", FirstName: "Ana", LastName: "Ruiz", Email: "ana@example.com", Password: hash, Role: models.RoleUser, Active: true},
			"pablo@example.com": {ID: "u-2", FirstName: "Pablo", Email: "pablo@example.com", Password: hash, Role: models.RoleUser},
		},
		inHouses: map[string]*models.InHouse{
			"sede@example.com": {ID: "h-1", Name: "Sede Norte", Email: "sede@example.com", Password: hash, Active: true, CanViewRealtime: true},
		},
	}
	return &AuthController{
		Store:  store,
		Auth:   middleware.AuthConfig{JWTSecret: "controller-secret", TokenTTL: time.Hour},
		Logger: quietLogger(),
	}, store
}

func TestLogin(t *testing.T) {
	ac, _ := newAuthController(t)
	r := route(http.MethodPost, "/login", nil, ac.Login)

	tests := []struct {
		name    string
		body    any
		status  int
		message string
	}{
		{"missing password", map[string]string{"correo": "ana@example.com"}, http.StatusBadRequest, "Por favor proporcione correo y contraseña"},
		{"unknown email", map[string]string{"correo": "nadie@example.com", "password": "secreto1"}, http.StatusUnauthorized, "Credenciales inválidas"},
		{"wrong password", map[string]string{"correo": "ana@example.com", "password": "otra"}, http.StatusUnauthorized, "Credenciales inválidas"},
		{"inactive", map[string]string{"correo": "pablo@example.com", "password": "secreto1"}, http.StatusUnauthorized, "Usuario inactivo. Contacte al administrador"},
		{"malformed", "{", http.StatusBadRequest, "Datos de solicitud inválidos"},
		{"ok with mixed case email", map[string]string{"correo": " Ana@Example.com ", "password": "secreto1"}, http.StatusOK, "Inicio de sesión exitoso"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, env := do(t, r, http.MethodPost, "/login", tc.body)
			if status != tc.status || env.Message != tc.message {
				t.Fatalf("got %d %q, want %d %q", status, env.Message, tc.status, tc.message)
			}
		})
	}
}

func TestLoginTokenAuthenticatesUser(t *testing.T) {
	ac, _ := newAuthController(t)
	r := route(http.MethodPost, "/login", nil, ac.Login)

	_, env := do(t, r, http.MethodPost, "/login", map[string]string{"correo": "ana@example.com", "password": "secreto1"})
	var data struct {
		Token   string `json:"token"`
		Usuario struct {
			ID             string `json:"id"`
			NombreCompleto string `json:"nombreCompleto"`
		} `json:"usuario"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Usuario.ID != "u-1" || data.Usuario.NombreCompleto != "Ana Ruiz" {
		t.Fatalf("unexpected profile %+v", data.Usuario)
	}
	claims, err := ac.Auth.Parse(data.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.SubjectID != "u-1" || claims.Kind != middleware.KindUser {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginStoreFailureIsHidden(t *testing.T) {
	ac, store := newAuthController(t)
	store.err = errors.New("connection refused")
	r := route(http.MethodPost, "/login", nil, ac.Login)

	status, env := do(t, r, http.MethodPost, "/login", map[string]string{"correo": "ana@example.com", "password": "secreto1"})
	if status != http.StatusInternalServerError || env.Message != "Error interno del servidor" {
		t.Fatalf("got %d %q", status, env.Message)
	}
}

func TestInHouseLogin(t *testing.T) {
	ac, _ := newAuthController(t)
	r := route(http.MethodPost, "/inhouse/login", nil, ac.InHouseLogin)

	status, env := do(t, r, http.MethodPost, "/inhouse/login", map[string]string{"correo": "sede@example.com", "password": "secreto1"})
	if status != http.StatusOK {
		t.Fatalf("status %d: %s", status, env.Message)
	}
	var data struct {
		Token   string `json:"token"`
		InHouse struct {
			Permisos struct {
				VerTiempoReal bool `json:"verTiempoReal"`
			} `json:"permisos"`
		} `json:"inHouse"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if !data.InHouse.Permisos.VerTiempoReal {
		t.Fatal("expected realtime permission in profile")
	}
	claims, err := ac.Auth.Parse(data.Token)
	if err != nil || claims.Kind != middleware.KindInHouse {
		t.Fatalf("claims %+v err %v", claims, err)
	}

	status, _ = do(t, r, http.MethodPost, "/inhouse/login", map[string]string{"correo": "ana@example.com", "password": "secreto1"})
	if status != http.StatusUnauthorized {
		t.Fatalf("a user account must not open an in house session, got %d", status)
	}
}

func TestVerifyReportsPrincipal(t *testing.T) {
	ac, _ := newAuthController(t)
	r := route(http.MethodGet, "/verificar", &models.User{ID: "u-1", Active: true}, ac.Verify)

	status, env := do(t, r, http.MethodGet, "/verificar", nil)
	if status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	var data struct {
		Valido bool `json:"valido"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || !data.Valido {
		t.Fatalf("data %s err %v", env.Data, err)
	}

	anon := route(http.MethodGet, "/verificar", nil, ac.Verify)
	if status, _ := do(t, anon, http.MethodGet, "/verificar", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without principal, got %d", status)
	}
}
