package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"asset-tracker/internal/app"
	"asset-tracker/internal/user"
)

// NewRouter registers every route under the configured subpath. Routes
// needing a session go through the gate; none are registered beside it.
func NewRouter(a *app.App) *gin.Engine {
	if a.Config.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(RequestID(), Logger(a.Logger), Recovery(a.Logger))

	group := r.Group(a.Config.Server.Subpath)
	{
		group.GET("/health", HealthHandler(a))
		if a.Config.Metrics.Enabled {
			group.GET("/metrics", MetricsHandler(a))
		}

		// Anonymous
		group.POST("/auth/register", RegisterHandler(a))
		group.GET("/auth/login", LoginInfoHandler())
		group.POST("/auth/login", LoginHandler(a))

		protected := a.Gate.Protect(group)
		protected.Authenticated(http.MethodPost, "/auth/logout", LogoutHandler(a))
		protected.Authenticated(http.MethodGet, "/auth/me", MeHandler())
		protected.Authenticated(http.MethodPut, "/users/me/password", ChangePasswordHandler(a))

		// Admin: users
		protected.Role(user.RoleAdmin, http.MethodGet, "/users", ListUsersHandler(a))
		protected.Role(user.RoleAdmin, http.MethodGet, "/users/online", OnlineUserCountHandler(a))
		protected.Role(user.RoleAdmin, http.MethodPost, "/users", CreateUserHandler(a))
		protected.Role(user.RoleAdmin, http.MethodGet, "/users/:id", GetUserHandler(a))
		protected.Role(user.RoleAdmin, http.MethodPut, "/users/:id", UpdateUserHandler(a))
		protected.Role(user.RoleAdmin, http.MethodDelete, "/users/:id", DeleteUserHandler(a))

		assets := a.Gate.Protect(group.Group("/assets"))
		assets.Authenticated(http.MethodGet, "", ListAssetsHandler(a))
		assets.Authenticated(http.MethodPost, "", CreateAssetHandler(a))
		assets.Authenticated(http.MethodGet, "/:id", GetAssetHandler(a))
		assets.Authenticated(http.MethodPut, "/:id", UpdateAssetHandler(a))
		assets.Role(user.RoleAdmin, http.MethodDelete, "/:id", DeleteAssetHandler(a))
	}
	return r
}
