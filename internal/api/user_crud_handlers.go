package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"asset-tracker/internal/app"
	"asset-tracker/internal/auth"
	"asset-tracker/internal/user"
)

type UpdateUserRequest struct {
	Password        string    `json:"password"`
	ConfirmPassword string    `json:"confirm_password"`
	Role            user.Role `json:"role"`
}

// GET /users  [admin only]
func ListUsersHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := a.Users.List(c.Request.Context())
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// GET /users/:id  [admin only]
func GetUserHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		u, err := a.Users.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// GET /users/online  [admin only]
func OnlineUserCountHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := a.Auth.ActiveUsers(c.Request.Context())
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"online": count})
	}
}

// POST /users  [admin only]. Accounts created here always get the user role.
func CreateUserHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
		u, err := a.Auth.Register(c.Request.Context(), req.Username, req.Password, req.ConfirmPassword)
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

// PUT /users/:id  [admin only]
func UpdateUserHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
		admin, _ := auth.CurrentUser(c)
		u, err := a.Auth.UpdateAccount(c.Request.Context(), admin, id, auth.AccountUpdate{
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
			Role:            req.Role,
		})
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// DELETE /users/:id  [admin only]
func DeleteUserHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		admin, _ := auth.CurrentUser(c)
		if err := a.Auth.DeleteAccount(c.Request.Context(), admin, id); err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}
