package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/africashands/platform/internal/middleware"
	"github.com/africashands/platform/internal/model"
	"github.com/africashands/platform/internal/validation"
)

// ProfileStore はプロフィールハンドラーが使用するプロフィール操作。
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)
}

// UserUpdatedPublisher はプロフィール変更を認証状態へ通知する。
type UserUpdatedPublisher interface {
	PublishUserUpdated(ctx context.Context, sessionID string)
}

// ProfileHandler は自分のプロフィールの参照・編集ハンドラー。
type ProfileHandler struct {
	profiles  ProfileStore
	publisher UserUpdatedPublisher
	validator *validation.Validator
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(profiles ProfileStore, publisher UserUpdatedPublisher) *ProfileHandler {
	return &ProfileHandler{
		profiles:  profiles,
		publisher: publisher,
		validator: validation.New(),
	}
}

// GetMe は自分のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.FindByID(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if p == nil {
		middleware.WriteLocalizedError(w, r, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

type preferencesRequest struct {
	Language      string `json:"language" validate:"oneof=pt en fr"`
	Notifications bool   `json:"notifications"`
	Theme         string `json:"theme" validate:"oneof=light dark"`
}

// updateProfileRequest は自己編集の入力。ロールは含まない。
type updateProfileRequest struct {
	FullName     *string             `json:"full_name" validate:"omitempty,max=120"`
	Country      *string             `json:"country" validate:"omitempty,max=80"`
	Sector       *string             `json:"sector" validate:"omitempty,max=80"`
	Organization *string             `json:"organization" validate:"omitempty,max=120"`
	AvatarURL    *string             `json:"avatar_url" validate:"omitempty,url,max=2048"`
	Preferences  *preferencesRequest `json:"preferences"`
}

// UpdateMe は自分のプロフィールを部分更新する。
// PATCH /api/profile
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	update := model.ProfileUpdate{
		FullName:     req.FullName,
		Country:      req.Country,
		Sector:       req.Sector,
		Organization: req.Organization,
		AvatarURL:    req.AvatarURL,
	}
	if req.Preferences != nil {
		update.Preferences = &model.Preferences{
			Language:      req.Preferences.Language,
			Notifications: req.Preferences.Notifications,
			Theme:         req.Preferences.Theme,
		}
	}

	p, err := h.profiles.Update(r.Context(), actor.UserID, update)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if p == nil {
		middleware.WriteLocalizedError(w, r, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	if sid := middleware.SessionIDFromContext(r.Context()); sid != "" && h.publisher != nil {
		h.publisher.PublishUserUpdated(r.Context(), sid)
	}
	slog.Info("profile updated", slog.String("user_id", actor.UserID))
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}
