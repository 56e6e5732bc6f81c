package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/inhouse_attendance/internal/attendance"
	"github.com/zaqqye/inhouse_attendance/internal/biometric"
	"github.com/zaqqye/inhouse_attendance/internal/controllers"
	"github.com/zaqqye/inhouse_attendance/internal/metrics"
	"github.com/zaqqye/inhouse_attendance/internal/middleware"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/store"
	"github.com/zaqqye/inhouse_attendance/internal/ws"
)

type Deps struct {
	DB             *gorm.DB
	Store          *store.Store
	Auth           middleware.AuthConfig
	Attendance     *attendance.Service
	Biometric      *biometric.Service
	Hub            *ws.Hub
	Metrics        *metrics.Service
	TerminalSecret string
	Logger         *slog.Logger
}

func Register(r *gin.Engine, d Deps) {
	authCtrl := &controllers.AuthController{Store: d.Store, Auth: d.Auth, Logger: d.Logger}
	userCtrl := &controllers.UserController{DB: d.DB, Logger: d.Logger}
	areaCtrl := &controllers.AreaController{DB: d.DB, Logger: d.Logger}
	inHouseCtrl := &controllers.InHouseController{DB: d.DB, Attendance: d.Attendance, Logger: d.Logger}
	bioCtrl := &controllers.BiometricController{Service: d.Biometric, Logger: d.Logger}
	attCtrl := &controllers.AttendanceController{Service: d.Attendance, Logger: d.Logger}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	authMW := middleware.AuthMiddleware(d.Store, d.Auth, d.Logger)
	anyUser := middleware.RequireRoles()
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	adminOrCEO := middleware.RequireRoles(models.RoleAdmin, models.RoleCEO)
	areaManagers := middleware.RequireRoles(models.RoleAdmin, models.RoleAreaAdmin)

	api := r.Group("/api")

	// Public
	api.POST("/auth/login", authCtrl.Login)
	api.POST("/inhouses/login", authCtrl.InHouseLogin)
	api.POST("/biometric/verify", middleware.TerminalOTP(d.TerminalSecret, d.Logger), bioCtrl.Verify)

	protected := api.Group("", authMW)

	auth := protected.Group("/auth")
	{
		auth.GET("/perfil", anyUser, authCtrl.Profile)
		auth.GET("/verificar", authCtrl.Verify)
	}

	users := protected.Group("/users", adminOnly)
	{
		users.GET("", userCtrl.ListUsers)
		users.POST("", userCtrl.CreateUser)
		users.POST("/import", userCtrl.ImportUsers)
		users.GET("/rol/:rol", userCtrl.ListByRole)
		users.GET("/:id", userCtrl.GetUser)
		users.PUT("/:id", userCtrl.UpdateUser)
		users.DELETE("/:id", userCtrl.DeleteUser)
	}

	areas := protected.Group("/areas", anyUser)
	{
		areas.POST("", adminOnly, areaCtrl.CreateArea)
		areas.GET("", adminOrCEO, areaCtrl.ListAreas)
		areas.GET("/:id", areaCtrl.GetArea)
		areas.PUT("/:id", adminOnly, areaCtrl.UpdateArea)
		areas.DELETE("/:id", adminOnly, areaCtrl.DeleteArea)
		areas.GET("/:id/estadisticas", areaCtrl.AreaStats)
		areas.GET("/:id/inhouses", areaCtrl.AreaInHouses)
	}

	// In House tokens may read their own site.
	inHouses := protected.Group("/inhouses")
	{
		inHouses.POST("", areaManagers, inHouseCtrl.CreateInHouse)
		inHouses.GET("", anyUser, inHouseCtrl.ListInHouses)
		inHouses.GET("/:id", inHouseCtrl.GetInHouse)
		inHouses.PUT("/:id", areaManagers, inHouseCtrl.UpdateInHouse)
		inHouses.POST("/:id/usuarios", areaManagers, inHouseCtrl.AssignUser)
		inHouses.DELETE("/:id/usuarios/:usuarioId", areaManagers, inHouseCtrl.RemoveUser)
		inHouses.GET("/:id/tiempo-real", inHouseCtrl.RealTime)
		inHouses.GET("/:id/estadisticas", inHouseCtrl.Stats)
	}

	bio := protected.Group("/biometric", anyUser)
	{
		bio.POST("/enroll", areaManagers, bioCtrl.Enroll)
		bio.GET("/stats", adminOrCEO, bioCtrl.Stats)
		bio.GET("/user/:id", bioCtrl.ListByUser)
		bio.GET("/user/:id/check", bioCtrl.Check)
		bio.DELETE("/:id", areaManagers, bioCtrl.Delete)
	}

	att := protected.Group("/attendance", anyUser)
	{
		att.GET("", adminOrCEO, attCtrl.List)
		att.GET("/rango", adminOrCEO, attCtrl.Range)
		att.GET("/estadisticas", adminOrCEO, attCtrl.Stats)
		att.GET("/resumen-dias", adminOrCEO, attCtrl.DailySummary)
		att.GET("/estado-tiempo-real", adminOrCEO, attCtrl.RealTime)
		att.GET("/usuario/:id", attCtrl.UserHistory)
		att.POST("/ingreso", attCtrl.CheckIn)
		att.PUT("/salida/:id", attCtrl.CheckOut)
		att.GET("/activa", attCtrl.Active)
		att.DELETE("/:id", adminOnly, attCtrl.Delete)
	}

	protected.GET("/ws/attendance", ws.Handler(d.Hub, d.Store))
}
