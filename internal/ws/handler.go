package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; rely on JWT auth.
		return true
	},
}

// Sites lists the In Houses of an area, for area administrators.
type Sites interface {
	InHouseIDsByArea(ctx context.Context, areaID string) ([]string, error)
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func (h *Hub) scopeFor(c *gin.Context, sites Sites) (scope, bool) {
	if inHouse := middleware.CurrentInHouse(c); inHouse != nil {
		if !inHouse.CanViewRealtime {
			fail(c, http.StatusForbidden, "El In House no tiene acceso a la vista en tiempo real")
			return scope{}, false
		}
		return scope{inHouses: map[string]struct{}{inHouse.ID: {}}}, true
	}

	user := middleware.CurrentUser(c)
	if user == nil {
		fail(c, http.StatusUnauthorized, "No autenticado")
		return scope{}, false
	}
	switch user.Role {
	case models.RoleAdmin, models.RoleCEO:
		return scope{allowAll: true, userID: user.ID}, true
	case models.RoleAreaAdmin:
		s := scope{userID: user.ID, inHouses: map[string]struct{}{}}
		if user.AreaID == nil {
			return s, true
		}
		ids, err := sites.InHouseIDsByArea(c.Request.Context(), *user.AreaID)
		if err != nil {
			h.logger.ErrorContext(c.Request.Context(), "Failed to load area sites", logging.ErrAttr(err))
			fail(c, http.StatusInternalServerError, "Error interno del servidor")
			return scope{}, false
		}
		for _, id := range ids {
			s.inHouses[id] = struct{}{}
		}
		return s, true
	default:
		return scope{userID: user.ID}, true
	}
}

// Handler upgrades an authenticated request to an attendance event stream.
func Handler(hub *Hub, sites Sites) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub == nil {
			fail(c, http.StatusServiceUnavailable, "Tiempo real no disponible")
			return
		}
		s, ok := hub.scopeFor(c, sites)
		if !ok {
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newClient(hub, conn, s)
		if !hub.join(client) {
			conn.Close()
			return
		}

		go client.writePump()
		client.readPump()
	}
}
