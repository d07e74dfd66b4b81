package handler

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/service"
)

// projectMediaFields lists the multipart file fields accepted on create.
var projectMediaFields = []mediaField{
	{name: "poster", kind: domain.FieldProjectPoster},
	{name: "thumbnail", kind: domain.FieldProjectThumbnail},
	{name: "showcase", kind: domain.FieldProjectShowcasePhoto},
}

// projectMediaKinds maps the {kind} path parameter of the attach route.
var projectMediaKinds = map[string]domain.FieldKind{
	"poster":    domain.FieldProjectPoster,
	"thumbnail": domain.FieldProjectThumbnail,
	"showcase":  domain.FieldProjectShowcasePhoto,
}

// ProjectHandler serves project documents.
type ProjectHandler struct {
	projects      *service.ProjectService
	maxUploadSize int64
	logger        zerolog.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects *service.ProjectService, maxUploadSize int64, logger zerolog.Logger) *ProjectHandler {
	return &ProjectHandler{
		projects:      projects,
		maxUploadSize: maxUploadSize,
		logger:        logger.With().Str("handler", "project").Logger(),
	}
}

// CreateProjectRequest is the JSON body of POST /api/projects.
type CreateProjectRequest struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Poster         string     `json:"poster"`
	Thumbnail      string     `json:"thumbnail"`
	ShowcasePhotos []string   `json:"showcase_photos"`
	ExternalURL    string     `json:"external_url"`
	OwnerID        *uuid.UUID `json:"owner_id"`
}

// Create handles POST /api/projects with either a JSON body or a multipart
// form whose poster, thumbnail and showcase files are uploaded with it.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req CreateProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		h.create(w, r, service.CreateProjectInput{
			Title:          req.Title,
			Description:    req.Description,
			Poster:         req.Poster,
			Thumbnail:      req.Thumbnail,
			ShowcasePhotos: req.ShowcasePhotos,
			ExternalURL:    req.ExternalURL,
			OwnerID:        req.OwnerID,
		})
		return
	}

	if !parseMultipart(w, r, h.maxUploadSize, len(projectMediaFields)) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads, closeAll, err := formUploads(r.MultipartForm, projectMediaFields)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer closeAll()

	input := service.CreateProjectInput{
		Title:          r.FormValue("title"),
		Description:    r.FormValue("description"),
		ExternalURL:    r.FormValue("external_url"),
		Poster:         r.FormValue("poster_url"),
		Thumbnail:      r.FormValue("thumbnail_url"),
		ShowcasePhotos: r.MultipartForm.Value["showcase_url"],
		Media:          uploads,
	}
	if owner := strings.TrimSpace(r.FormValue("owner_id")); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid owner_id")
			return
		}
		input.OwnerID = &id
	}
	h.create(w, r, input)
}

func (h *ProjectHandler) create(w http.ResponseWriter, r *http.Request, input service.CreateProjectInput) {
	project, err := h.projects.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// List handles GET /api/projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.projects.List(r.Context(), listOptions(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(result))
}

// Get handles GET /api/projects/{id}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	project, err := h.projects.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// Update handles PUT /api/projects/{id}. Omitted fields are kept.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	var input service.UpdateProjectInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	project, err := h.projects.Update(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// Delete handles DELETE /api/projects/{id}.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.projects.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachMedia handles POST /api/projects/{id}/media/{kind} with a multipart
// "file" part.
func (h *ProjectHandler) AttachMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	kind, ok := projectMediaKinds[chi.URLParam(r, "kind")]
	if !ok {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidFieldKind.Error())
		return
	}

	upload, closeFile, ok := singleFileUpload(w, r, h.maxUploadSize, kind)
	if !ok {
		return
	}
	defer closeFile()

	project, _, err := h.projects.AttachMedia(r.Context(), id, upload)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// parseMultipart bounds and parses a multipart form carrying up to files
// uploads. It writes the error reply and returns false on failure.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxUploadSize int64, files int) bool {
	if maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(files)*maxUploadSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.ErrBlobTooLarge.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return false
	}
	return true
}

// singleFileUpload reads the "file" part of a multipart form.
func singleFileUpload(w http.ResponseWriter, r *http.Request, maxUploadSize int64, kind domain.FieldKind) (service.MediaUpload, func(), bool) {
	if !parseMultipart(w, r, maxUploadSize, 1) {
		return service.MediaUpload{}, nil, false
	}

	uploads, closeAll, err := formUploads(r.MultipartForm, []mediaField{{name: "file", kind: kind}})
	if err != nil || len(uploads) == 0 {
		closeAll()
		_ = r.MultipartForm.RemoveAll()
		writeError(w, http.StatusBadRequest, "file is required")
		return service.MediaUpload{}, nil, false
	}

	return uploads[0], func() {
		closeAll()
		_ = r.MultipartForm.RemoveAll()
	}, true
}
