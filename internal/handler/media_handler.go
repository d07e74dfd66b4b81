package handler

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/pkg/crypto"
	"github.com/prn-tf/showcase-portal/internal/service"
)

const (
	// multipartOverhead is the body allowance for multipart framing on top
	// of the upload limit.
	multipartOverhead = 1 << 20

	// multipartMemory is the part of a multipart form kept in memory.
	multipartMemory = 8 << 20

	// immutableCacheControl is sent with blob content, which never changes
	// under a given id.
	immutableCacheControl = "public, max-age=31536000, immutable"
)

// MediaHandler serves the blob store over HTTP.
type MediaHandler struct {
	blobs         *service.BlobService
	maxUploadSize int64
	logger        zerolog.Logger
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(blobs *service.BlobService, maxUploadSize int64, logger zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		blobs:         blobs,
		maxUploadSize: maxUploadSize,
		logger:        logger.With().Str("handler", "media").Logger(),
	}
}

// UploadResponse describes a stored blob.
type UploadResponse struct {
	BlobID      string `json:"blobId"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
}

func newUploadResponse(blob *domain.Blob) UploadResponse {
	return UploadResponse{
		BlobID:      blob.ID.String(),
		URL:         blob.URL(),
		Filename:    blob.Filename,
		ContentType: service.ResolveContentType(blob.ContentType, blob.Filename),
		Size:        blob.Size,
		Checksum:    blob.Checksum,
	}
}

// DeleteMediaRequest is the body of DELETE /api/media.
type DeleteMediaRequest struct {
	BlobID string `json:"blobId"`
}

// DeleteMediaResponse reports how many ledger entries the delete removed.
type DeleteMediaResponse struct {
	ReferencesDeleted int64 `json:"referencesDeleted"`
}

// Upload handles POST /api/media. The content is either the "file" part of
// a multipart form or the raw request body named by the X-Filename header
// or the filename query parameter.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		h.uploadMultipart(w, r)
		return
	}

	if r.ContentLength == 0 {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}

	filename := strings.TrimSpace(r.Header.Get("X-Filename"))
	if filename == "" {
		filename = strings.TrimSpace(r.URL.Query().Get("filename"))
	}

	h.store(w, r, service.UploadInput{
		Body:        r.Body,
		Filename:    filename,
		ContentType: mediaType,
	})
}

// uploadMultipart streams the "file" part straight into the store.
func (h *MediaHandler) uploadMultipart(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "file is required")
			return
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				writeError(w, http.StatusRequestEntityTooLarge, domain.ErrBlobTooLarge.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}

		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		h.store(w, r, service.UploadInput{
			Body:        part,
			Filename:    part.FileName(),
			ContentType: partContentType(part),
		})
		_ = part.Close()
		return
	}
}

func (h *MediaHandler) store(w http.ResponseWriter, r *http.Request, input service.UploadInput) {
	blob, err := h.blobs.Upload(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUploadResponse(blob))
}

// Download handles GET and HEAD /media/{id}.
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseBlobID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := h.blobs.Download(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer content.Body.Close()

	etag := crypto.ETag(content.Blob.Checksum)
	header := w.Header()
	header.Set("ETag", etag)
	header.Set("Cache-Control", immutableCacheControl)

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	header.Set("Content-Type", content.ContentType)
	header.Set("Content-Length", strconv.FormatInt(content.Blob.Size, 10))
	header.Set("X-Content-Type-Options", "nosniff")
	disposition := "inline"
	if content.Blob.Filename != "" {
		disposition = mime.FormatMediaType("inline", map[string]string{"filename": content.Blob.Filename})
	}
	header.Set("Content-Disposition", disposition)
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, content.Body); err != nil {
		h.logger.Debug().Err(err).Str("blob_id", id.String()).Msg("download interrupted")
	}
}

// Delete handles DELETE /api/media. The blob is removed together with
// every ledger entry naming it.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteMediaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := domain.ParseBlobID(req.BlobID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	removed, err := h.blobs.Purge(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteMediaResponse{ReferencesDeleted: removed})
}

func partContentType(part *multipart.Part) string {
	mediaType, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

// mediaField maps a multipart file field to the document field it fills.
type mediaField struct {
	name string
	kind domain.FieldKind
}

// formUploads opens every file of form listed in fields, in field order.
// The returned function closes them.
func formUploads(form *multipart.Form, fields []mediaField) ([]service.MediaUpload, func(), error) {
	var (
		uploads []service.MediaUpload
		files   []multipart.File
	)
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	if form == nil {
		return nil, closeAll, nil
	}

	for _, field := range fields {
		for _, fh := range form.File[field.name] {
			f, err := fh.Open()
			if err != nil {
				closeAll()
				return nil, func() {}, err
			}
			files = append(files, f)

			contentType, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
			uploads = append(uploads, service.MediaUpload{
				Kind: field.kind,
				Upload: service.UploadInput{
					Body:        f,
					Filename:    fh.Filename,
					ContentType: contentType,
				},
			})
		}
	}
	return uploads, closeAll, nil
}
