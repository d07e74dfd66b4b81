package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/lock"
	"github.com/prn-tf/showcase-portal/internal/metrics"
	"github.com/prn-tf/showcase-portal/internal/repository/sqlite"
	"github.com/prn-tf/showcase-portal/internal/service"
	"github.com/prn-tf/showcase-portal/internal/storage/filesystem"
)

const (
	testAdminToken = "s3cret-admin-token"
	testMaxUpload  = 64 << 10
)

type testServer struct {
	*httptest.Server
	locker *lock.MemoryLocker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(sqlite.MemoryPath), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	backend, err := filesystem.NewBackend(filesystem.Config{DataDir: t.TempDir()}, logger)
	require.NoError(t, err)

	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Stop)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	repos := sqlite.NewRepositories(db)
	blobs := service.NewBlobService(repos.Blob, repos.Reference, backend, m, logger, service.BlobServiceConfig{MaxUploadSize: testMaxUpload})
	reclaim := service.NewReclaimService(repos.Blob, repos.Reference, backend, locker, m, logger, service.DefaultReclaimConfig())
	projects := service.NewProjectService(repos.Project, repos.Reference, blobs, reclaim, m, logger)
	users := service.NewUserService(repos.User, repos.Reference, blobs, reclaim, m, logger, service.UserServiceConfig{BcryptCost: 4})

	router := NewRouter(RouterConfig{
		MediaHandler:   NewMediaHandler(blobs, testMaxUpload, logger),
		ProjectHandler: NewProjectHandler(projects, testMaxUpload, logger),
		UserHandler:    NewUserHandler(users, testMaxUpload, logger),
		AdminHandler:   NewAdminHandler(reclaim, logger),
		Health:         db,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminToken:     testAdminToken,
		Logger:         logger,
	})

	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, locker: locker}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) doJSON(t *testing.T, method, path string, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return s.do(t, method, path, bytes.NewReader(data), map[string]string{"Content-Type": "application/json"})
}

func (s *testServer) uploadFile(t *testing.T, filename, content string) UploadResponse {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{}, map[string][]string{"file": {filename, content}})
	resp := s.do(t, http.MethodPost, "/api/media", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// multipartBody builds a form. files maps a field name to filename/content pairs.
func multipartBody(t *testing.T, fields map[string]string, files map[string][]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, pairs := range files {
		for i := 0; i+1 < len(pairs); i += 2 {
			fw, err := mw.CreateFormFile(field, pairs[i])
			require.NoError(t, err)
			_, err = io.WriteString(fw, pairs[i+1])
			require.NoError(t, err)
		}
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// =============================================================================
// Media
// =============================================================================

func TestMedia_UploadAndDownload(t *testing.T) {
	srv := newTestServer(t)

	up := srv.uploadFile(t, "cover.webp", "webp-bytes")
	require.Len(t, up.BlobID, domain.BlobIDLength)
	require.Equal(t, "/media/"+up.BlobID, up.URL)
	require.Equal(t, int64(10), up.Size)

	resp := srv.do(t, http.MethodGet, up.URL, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/webp", resp.Header.Get("Content-Type"))
	require.Equal(t, "10", resp.Header.Get("Content-Length"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "inline")
	require.Contains(t, resp.Header.Get("Cache-Control"), "immutable")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "webp-bytes", string(data))

	cached := srv.do(t, http.MethodGet, up.URL, nil, map[string]string{"If-None-Match": resp.Header.Get("ETag")})
	require.Equal(t, http.StatusNotModified, cached.StatusCode)
}

func TestMedia_RawUpload(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/api/media?filename=clip.mp4", strings.NewReader("video"), map[string]string{
		"Content-Type": "application/octet-stream",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	up := decode[UploadResponse](t, resp)
	require.Equal(t, "clip.mp4", up.Filename)
	require.Equal(t, "video/mp4", up.ContentType)
}

func TestMedia_UploadErrors(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing file", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string]string{"title": "x"}, nil)
		resp := srv.do(t, http.MethodPost, "/api/media", body, map[string]string{"Content-Type": contentType})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty body", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/api/media", http.NoBody, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		big := strings.Repeat("x", testMaxUpload+1)
		body, contentType := multipartBody(t, nil, map[string][]string{"file": {"big.png", big}})
		resp := srv.do(t, http.MethodPost, "/api/media", body, map[string]string{"Content-Type": contentType})
		require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestMedia_DownloadErrors(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/media/not-an-id", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/media/65f0a1b2ffffffffffffffff", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMedia_Delete(t *testing.T) {
	srv := newTestServer(t)

	up := srv.uploadFile(t, "a.png", "a")
	resp := srv.doJSON(t, http.MethodPost, "/api/projects", CreateProjectRequest{Title: "P", Poster: up.URL})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = srv.doJSON(t, http.MethodDelete, "/api/media", DeleteMediaRequest{BlobID: up.BlobID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(1), decode[DeleteMediaResponse](t, resp).ReferencesDeleted)

	resp = srv.doJSON(t, http.MethodDelete, "/api/media", DeleteMediaRequest{BlobID: up.BlobID})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.doJSON(t, http.MethodDelete, "/api/media", DeleteMediaRequest{BlobID: "bogus"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, up.URL, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// Projects and users
// =============================================================================

func TestProjects_MultipartLifecycle(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartBody(t,
		map[string]string{"title": "Harbor", "description": "Docks", "external_url": "https://harbor.example.com"},
		map[string][]string{
			"poster":   {"poster.png", "poster"},
			"showcase": {"1.jpg", "one", "2.jpg", "two"},
		},
	)
	resp := srv.do(t, http.MethodPost, "/api/projects", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	project := decode[domain.Project](t, resp)
	require.Equal(t, "Harbor", project.Title)
	require.True(t, domain.IsMediaURL(project.Poster))
	require.Len(t, project.ShowcasePhotos, 2)

	resp = srv.do(t, http.MethodGet, "/api/projects/"+project.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/projects?limit=10", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[ListResponse[domain.Project]](t, resp)
	require.Equal(t, int64(1), list.Total)

	// Replace the poster with an external URL; the uploaded one is reclaimed.
	external := "https://cdn.example.com/poster.png"
	resp = srv.doJSON(t, http.MethodPut, "/api/projects/"+project.ID.String(), map[string]any{"poster": external})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, external, decode[domain.Project](t, resp).Poster)

	resp = srv.do(t, http.MethodGet, project.Poster, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, http.MethodDelete, "/api/projects/"+project.ID.String(), nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, project.ShowcasePhotos[0], nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/projects/"+project.ID.String(), nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProjects_Errors(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.doJSON(t, http.MethodPost, "/api/projects", CreateProjectRequest{Title: ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.doJSON(t, http.MethodPost, "/api/projects", CreateProjectRequest{Title: "X", Poster: "/media/zzz"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/projects/not-a-uuid", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/projects/7f1c1a56-93c4-4f5e-9a37-6a0d7f8a1e11", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProjects_AttachMedia(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.doJSON(t, http.MethodPost, "/api/projects", CreateProjectRequest{Title: "Gallery"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	project := decode[domain.Project](t, resp)

	body, contentType := multipartBody(t, nil, map[string][]string{"file": {"thumb.png", "thumb"}})
	resp = srv.do(t, http.MethodPost, "/api/projects/"+project.ID.String()+"/media/thumbnail", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, domain.IsMediaURL(decode[domain.Project](t, resp).Thumbnail))

	body, contentType = multipartBody(t, nil, map[string][]string{"file": {"x.png", "x"}})
	resp = srv.do(t, http.MethodPost, "/api/projects/"+project.ID.String()+"/media/avatar", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUsers_Lifecycle(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartBody(t,
		map[string]string{"username": "grace", "email": "grace@example.com", "password": "hopper1906"},
		map[string][]string{"avatar": {"grace.png", "face"}},
	)
	resp := srv.do(t, http.MethodPost, "/api/users", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hopper1906")
	require.NotContains(t, string(raw), "password")

	var user domain.User
	require.NoError(t, json.Unmarshal(raw, &user))
	require.True(t, domain.IsMediaURL(user.Avatar))

	resp = srv.doJSON(t, http.MethodPost, "/api/users", CreateUserRequest{Username: "grace", Email: "g2@example.com", Password: "hopper1906"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	bio := "Admiral"
	resp = srv.doJSON(t, http.MethodPut, "/api/users/"+user.ID.String(), service.UpdateUserInput{Bio: &bio})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Admiral", decode[domain.User](t, resp).Bio)

	resp = srv.do(t, http.MethodDelete, "/api/users/"+user.ID.String(), nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, user.Avatar, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// Admin
// =============================================================================

func TestAdmin_Auth(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/api/admin/stats", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/admin/stats", nil, map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/admin/stats", nil, map[string]string{"Authorization": "Bearer " + testAdminToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdmin_Sweep(t *testing.T) {
	srv := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + testAdminToken}

	orphan := srv.uploadFile(t, "orphan.png", "o")
	kept := srv.uploadFile(t, "kept.png", "k")
	resp := srv.doJSON(t, http.MethodPost, "/api/projects", CreateProjectRequest{Title: "Keep", Poster: kept.URL})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/admin/sweep?dry_run=true", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dry := decode[service.SweepResult](t, resp)
	require.True(t, dry.DryRun)
	require.Equal(t, 1, dry.BlobsDeleted)

	resp = srv.do(t, http.MethodPost, "/api/admin/sweep?older_than_minutes=0", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[service.SweepResult](t, resp)
	require.Equal(t, 1, result.BlobsDeleted)
	require.Zero(t, result.Errors)

	resp = srv.do(t, http.MethodGet, orphan.URL, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = srv.do(t, http.MethodGet, kept.URL, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/admin/sweep?older_than_minutes=abc", nil, auth)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_SweepConflict(t *testing.T) {
	srv := newTestServer(t)

	acquired, err := srv.locker.Acquire(context.Background(), lock.Keys.ReclaimSweep(), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	resp := srv.do(t, http.MethodPost, "/api/admin/sweep", nil, map[string]string{"Authorization": "Bearer " + testAdminToken})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdmin_Reclaim(t *testing.T) {
	srv := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + testAdminToken}

	up := srv.uploadFile(t, "a.png", "a")
	resp := srv.do(t, http.MethodPost, "/api/admin/reclaim/"+up.BlobID, nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, decode[ReclaimResponse](t, resp).Deleted)

	resp = srv.do(t, http.MethodPost, "/api/admin/reclaim/"+up.BlobID, nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, decode[ReclaimResponse](t, resp).Deleted)
}

// =============================================================================
// Infrastructure
// =============================================================================

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	srv.uploadFile(t, "a.png", "a")

	// Request metrics are recorded after the reply is written.
	require.Eventually(t, func() bool {
		resp, err := srv.Client().Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body := string(data)
		return strings.Contains(body, "showcase_blob_uploads_total") &&
			strings.Contains(body, `route="/api/media"`)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAPI_Gzip(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 20; i++ {
		resp := srv.doJSON(t, http.MethodPost, "/api/projects", CreateProjectRequest{Title: strings.Repeat("Project ", 10)})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/projects", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	// A transport that leaves compression to the caller.
	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrBlobNotFound, http.StatusNotFound},
		{domain.NewDomainError(domain.ErrInvalidReference, "blob does not exist", "x"), http.StatusBadRequest},
		{domain.NewDomainError(domain.ErrBlobTooLarge, "limit", ""), http.StatusRequestEntityTooLarge},
		{service.ErrSweepInProgress, http.StatusConflict},
		{domain.ErrConcurrentUpdate, http.StatusConflict},
		{domain.NewDomainError(domain.ErrUserNotFound, "project owner does not exist", "x"), http.StatusNotFound},
		{domain.ErrAccessDenied, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, statusFromError(tt.err))
		})
	}
}
