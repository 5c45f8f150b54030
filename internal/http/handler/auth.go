package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/auth"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

type AuthHandler struct {
	DB      *gorm.DB
	JWT     *auth.JWT
	Tenants *tenant.Repo
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	u := auth.User{Email: req.Email, PasswordHash: hash, Active: true}
	if err := h.DB.Create(&u).Error; err != nil {
		writeError(w, http.StatusConflict, "email already used")
		return
	}

	// fresh accounts have no memberships yet
	token, err := h.JWT.Sign(u.ID, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}

	var u auth.User
	if err := h.DB.Where("email = ? AND active", req.Email).First(&u).Error; err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !auth.ComparePassword(u.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	memberships, err := h.Tenants.MembershipsForUser(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	token, err := h.JWT.Sign(u.ID, memberships)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	now := time.Now()
	h.DB.Model(&auth.User{}).Where("id = ?", u.ID).Update("last_login_at", now)

	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}
