package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

const (
	KindUser    = "user"
	KindInHouse = "inhouse"

	userKey    = "user"
	inHouseKey = "inhouse"

	issuer = "inhouse_attendance"
)

type Claims struct {
	SubjectID string      `json:"id"`
	Role      models.Role `json:"rol,omitempty"`
	Kind      string      `json:"tipo"`
	jwt.RegisteredClaims
}

// Principals loads the account a token was issued to.
type Principals interface {
	FindActiveUser(ctx context.Context, id string) (*models.User, error)
	FindActiveInHouse(ctx context.Context, id string) (*models.InHouse, error)
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// IssueToken signs a token for a user (kind KindUser) or an In House account.
func (cfg AuthConfig) IssueToken(subjectID string, role models.Role, kind string) (string, time.Time, error) {
	now := time.Now().UTC()
	expires := now.Add(cfg.TokenTTL)
	claims := Claims{
		SubjectID: subjectID,
		Role:      role,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	return token, expires, err
}

func (cfg AuthConfig) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// bearer reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so upgrades may pass the token as ?token= instead.
func bearer(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" && websocket.IsWebSocketUpgrade(c.Request) {
		return strings.TrimSpace(c.Query("token"))
	}
	if auth == "" || !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[len("Bearer "):])
}

// AuthMiddleware accepts user and In House tokens and stores the active
// account on the context.
func AuthMiddleware(store Principals, cfg AuthConfig, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c)
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, "Token no proporcionado")
			return
		}
		claims, err := cfg.Parse(tokenStr)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Token inválido o expirado")
			return
		}

		ctx := c.Request.Context()
		switch claims.Kind {
		case KindInHouse:
			inHouse, err := store.FindActiveInHouse(ctx, claims.SubjectID)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to load In House principal", logging.ErrAttr(err))
				abort(c, http.StatusInternalServerError, "Error interno del servidor")
				return
			}
			if inHouse == nil {
				abort(c, http.StatusUnauthorized, "In House no encontrado o inactivo")
				return
			}
			c.Set(inHouseKey, inHouse)
		default:
			user, err := store.FindActiveUser(ctx, claims.SubjectID)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to load user principal", logging.ErrAttr(err))
				abort(c, http.StatusInternalServerError, "Error interno del servidor")
				return
			}
			if user == nil {
				abort(c, http.StatusUnauthorized, "Usuario no encontrado o inactivo")
				return
			}
			c.Set(userKey, user)
		}
		c.Next()
	}
}

// RequireRoles admits users whose role passes models.Authorize. With no
// roles any authenticated user passes. In House tokens never pass.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			if CurrentInHouse(c) != nil {
				abort(c, http.StatusForbidden, "No tienes permisos para realizar esta acción")
				return
			}
			abort(c, http.StatusUnauthorized, "No autenticado")
			return
		}
		if !models.Authorize(user.Role, roles...) {
			abort(c, http.StatusForbidden, "No tienes permisos para realizar esta acción")
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func CurrentInHouse(c *gin.Context) *models.InHouse {
	v, ok := c.Get(inHouseKey)
	if !ok {
		return nil
	}
	inHouse, _ := v.(*models.InHouse)
	return inHouse
}

// SetUser stores user as the authenticated principal.
func SetUser(c *gin.Context, user *models.User) {
	c.Set(userKey, user)
}

func SetInHouse(c *gin.Context, inHouse *models.InHouse) {
	c.Set(inHouseKey, inHouse)
}
