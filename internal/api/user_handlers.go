package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"asset-tracker/internal/app"
	"asset-tracker/internal/auth"
)

type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// POST /auth/register
func RegisterHandler(a *app.App) gin.HandlerFunc {
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

// GET /auth/login is where browsers land when a guard turns them away.
func LoginInfoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Please log in to access this page.",
			"next":    c.Query("next"),
		})
	}
}

// POST /auth/login
func LoginHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
		u, token, err := a.Auth.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		a.Gate.SetSessionCookie(c, token)
		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  u,
		})
	}
}

// POST /auth/logout
func LogoutHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.Auth.EndSession(c.Request.Context(), a.Gate.SessionToken(c)); err != nil {
			respondError(c, a.Logger, err)
			return
		}
		a.Gate.ClearSessionCookie(c)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// GET /auth/me
func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		c.JSON(http.StatusOK, u)
	}
}

// PUT /users/me/password. Every session of the user ends, this one included.
func ChangePasswordHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
		u, _ := auth.CurrentUser(c)
		if err := a.Auth.ChangePassword(c.Request.Context(), u, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
			respondError(c, a.Logger, err)
			return
		}
		a.Gate.ClearSessionCookie(c)
		c.JSON(http.StatusOK, gin.H{"message": "Password changed, please log in again"})
	}
}
