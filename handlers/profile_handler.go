package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"planora/models"
)

type ProfileHandler struct {
	app *pocketbase.PocketBase
}

func NewProfileHandler(app *pocketbase.PocketBase) *ProfileHandler {
	return &ProfileHandler{app: app}
}

// Me - the signed-in user's profile
func (h *ProfileHandler) Me(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"id":         e.Auth.Id,
		"email":      e.Auth.GetString("email"),
		"name":       e.Auth.GetString("name"),
		"role":       e.Auth.GetString("role"),
		"interests":  e.Auth.GetStringSlice("interests"),
		"avatar_url": e.Auth.GetString("avatar_url"),
	})
}

type switchRoleRequest struct {
	Role string `json:"role"`
}

// SwitchRole - toggle between attendee and organizer
func (h *ProfileHandler) SwitchRole(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req switchRoleRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid payload", err)
	}
	if !models.ValidRole(req.Role) {
		return apis.NewBadRequestError("Unknown role", nil)
	}

	record, err := h.app.FindRecordById("users", e.Auth.Id)
	if err != nil {
		return apis.NewNotFoundError("User not found", err)
	}

	record.Set("role", req.Role)
	if err := h.app.SaveWithContext(e.Request.Context(), record); err != nil {
		return apis.NewBadRequestError("Failed to switch role", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"role": req.Role})
}

type interestsRequest struct {
	Interests []string `json:"interests"`
}

// UpdateInterests - replace the interest list driving recommendations
func (h *ProfileHandler) UpdateInterests(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req interestsRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid payload", err)
	}
	if len(req.Interests) > 20 {
		return apis.NewBadRequestError("Too many interests", nil)
	}

	record, err := h.app.FindRecordById("users", e.Auth.Id)
	if err != nil {
		return apis.NewNotFoundError("User not found", err)
	}

	record.Set("interests", req.Interests)
	if err := h.app.SaveWithContext(e.Request.Context(), record); err != nil {
		return apis.NewBadRequestError("Failed to update interests", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"interests": req.Interests})
}
