package handler

import (
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/service"
)

var userMediaFields = []mediaField{
	{name: "avatar", kind: domain.FieldUserAvatar},
	{name: "profile_image", kind: domain.FieldUserProfileImage},
}

var userMediaKinds = map[string]domain.FieldKind{
	"avatar":        domain.FieldUserAvatar,
	"profile-image": domain.FieldUserProfileImage,
}

// UserHandler serves contributor accounts.
type UserHandler struct {
	users         *service.UserService
	maxUploadSize int64
	logger        zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, maxUploadSize int64, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:         users,
		maxUploadSize: maxUploadSize,
		logger:        logger.With().Str("handler", "user").Logger(),
	}
}

// CreateUserRequest is the JSON body of POST /api/users.
type CreateUserRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	DisplayName  string `json:"display_name"`
	Bio          string `json:"bio"`
	Avatar       string `json:"avatar"`
	ProfileImage string `json:"profile_image"`
}

// Create handles POST /api/users with either a JSON body or a multipart
// form carrying avatar and profile_image files.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req CreateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		h.create(w, r, service.CreateUserInput{
			Username:     req.Username,
			Email:        req.Email,
			Password:     req.Password,
			DisplayName:  req.DisplayName,
			Bio:          req.Bio,
			Avatar:       req.Avatar,
			ProfileImage: req.ProfileImage,
		})
		return
	}

	if !parseMultipart(w, r, h.maxUploadSize, len(userMediaFields)) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads, closeAll, err := formUploads(r.MultipartForm, userMediaFields)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer closeAll()

	h.create(w, r, service.CreateUserInput{
		Username:    r.FormValue("username"),
		Email:       r.FormValue("email"),
		Password:    r.FormValue("password"),
		DisplayName: r.FormValue("display_name"),
		Bio:         r.FormValue("bio"),
		Media:       uploads,
	})
}

func (h *UserHandler) create(w http.ResponseWriter, r *http.Request, input service.CreateUserInput) {
	user, err := h.users.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// List handles GET /api/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.users.List(r.Context(), listOptions(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(result))
}

// Get handles GET /api/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}. Omitted fields are kept.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	var input service.UpdateUserInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.users.Update(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Delete handles DELETE /api/users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachMedia handles POST /api/users/{id}/media/{kind}.
func (h *UserHandler) AttachMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	kind, ok := userMediaKinds[chi.URLParam(r, "kind")]
	if !ok {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidFieldKind.Error())
		return
	}

	upload, closeFile, ok := singleFileUpload(w, r, h.maxUploadSize, kind)
	if !ok {
		return
	}
	defer closeFile()

	user, _, err := h.users.AttachMedia(r.Context(), id, upload)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
