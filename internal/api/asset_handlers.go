package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"asset-tracker/internal/app"
	"asset-tracker/internal/apperr"
	"asset-tracker/internal/auth"
)

type AssetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func recordAssetOp(a *app.App, op string, err error) {
	result := "ok"
	if err != nil {
		result = strings.ToLower(apperr.Kind(err))
	}
	a.Metrics.RecordAssetOp(op, result)
}

// GET /assets, or /assets?owner=me for the caller's own assets.
func ListAssetsHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var (
			assets any
			err    error
		)
		if c.Query("owner") == "me" {
			u, _ := auth.CurrentUser(c)
			assets, err = a.Assets.ListByOwner(ctx, u.ID)
		} else {
			assets, err = a.Assets.ListAll(ctx)
		}
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, assets)
	}
}

// POST /assets. Owner and creator come from the session, never the body.
func CreateAssetHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
		u, _ := auth.CurrentUser(c)
		created, err := a.Assets.Create(c.Request.Context(), req.Name, req.Description, u)
		recordAssetOp(a, "create", err)
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		a.Logger.Info("asset created", "asset_id", created.ID, "name", created.Name, "user_id", u.ID)
		c.JSON(http.StatusCreated, created)
	}
}

// GET /assets/:id
func GetAssetHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		found, err := a.Assets.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, found)
	}
}

// PUT /assets/:id
func UpdateAssetHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req AssetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
		updated, err := a.Assets.Update(c.Request.Context(), id, req.Name, req.Description)
		recordAssetOp(a, "update", err)
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// DELETE /assets/:id  [admin only]
func DeleteAssetHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		err := a.Assets.Delete(c.Request.Context(), id)
		recordAssetOp(a, "delete", err)
		if err != nil {
			respondError(c, a.Logger, err)
			return
		}
		u, _ := auth.CurrentUser(c)
		a.Logger.Info("asset deleted", "asset_id", id, "user_id", u.ID)
		c.JSON(http.StatusOK, gin.H{"message": "Asset deleted successfully."})
	}
}
