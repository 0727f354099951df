package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"piccsync-backend/internal/config"
	"piccsync-backend/internal/middleware"
	"piccsync-backend/internal/models"
	"piccsync-backend/internal/services"
	"piccsync-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

type apiFixture struct {
	t       *testing.T
	server  *httptest.Server
	db      *testutil.DB
	objects *testutil.Objects
	users   *services.UserService
	adminID string
	ownerID string
	otherID string
}

func newAPIFixture(t *testing.T, limiter middleware.Limiter) *apiFixture {
	t.Helper()
	f := &apiFixture{
		t:       t,
		db:      testutil.NewDB(),
		objects: testutil.NewObjects(),
		adminID: uuid.NewString(),
		ownerID: uuid.NewString(),
		otherID: uuid.NewString(),
	}
	dir := testutil.NewDirectory(
		&models.Account{ID: f.adminID, Email: "admin@example.com", CreatedAt: time.Now()},
		&models.Account{ID: f.ownerID, Email: "owner@example.com", CreatedAt: time.Now()},
		&models.Account{ID: f.otherID, Email: "other@example.com", CreatedAt: time.Now()},
	)

	cfg := config.Default()
	cfg.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	admins := config.AdminSet{f.adminID: {}}
	hub := services.NewWSHub()

	f.users = services.NewUserService(testSecret, dir, f.db.Profiles())
	photos := services.NewPhotoService(f.db.Photos(), f.db.Members(), f.objects, admins, hub)
	groups := services.NewGroupService(f.db.Groups(), f.db.Members(), f.objects, dir, hub)

	f.server = httptest.NewServer(NewRouter(Deps{
		Config:       cfg,
		Admins:       admins,
		UserService:  f.users,
		PhotoService: photos,
		GroupService: groups,
		Hub:          hub,
		Limiter:      limiter,
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) token(userID string) string {
	f.t.Helper()
	tok, err := f.users.GenerateJWT(userID, userID+"@example.com", time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *apiFixture) do(method, path, userID string, body io.Reader, contentType string) *http.Response {
	f.t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(f.t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(userID))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) doJSON(method, path, userID string, body any) *http.Response {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(b)
	}
	return f.do(method, path, userID, r, "application/json")
}

func (f *apiFixture) upload(userID, filename, mimeType string, data []byte, fields map[string]string) *http.Response {
	f.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(f.t, mw.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	require.NoError(f.t, err)
	_, err = part.Write(data)
	require.NoError(f.t, err)
	require.NoError(f.t, mw.Close())
	return f.do(http.MethodPost, "/api/upload", userID, &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[HealthResponse](t, resp)
	assert.Equal(t, "OK", body.Status)
	assert.False(t, body.Timestamp.IsZero())
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t, nil)

	for _, path := range []string{"/nope", "/api/nope"} {
		resp := f.do(http.MethodGet, path, "", nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "Route not found", decode[ErrorResponse](t, resp).Error)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(http.MethodGet, "/api/photos", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "No token provided", decode[ErrorResponse](t, resp).Error)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/photos", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	bad, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)
}

func TestUploadDownloadAndPublish(t *testing.T) {
	f := newAPIFixture(t, nil)
	data := bytes.Repeat([]byte{0xab}, 4096)

	resp := f.upload(f.ownerID, "beach.jpg", "image/jpeg", data, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	up := decode[PhotoView](t, resp)
	assert.Equal(t, models.VisibilityPrivate, up.Visibility)
	assert.Equal(t, int64(len(data)), up.FileSize)
	assert.Equal(t, "image/jpeg", up.MimeType)
	require.NotNil(t, up.URL)

	list := f.do(http.MethodGet, "/api/photos", f.ownerID, nil, "")
	require.Equal(t, http.StatusOK, list.StatusCode)
	assert.Len(t, decode[[]PhotoView](t, list), 1)

	// Strangers cannot see it
	other := f.do(http.MethodGet, "/api/photos/"+up.ID, f.otherID, nil, "")
	assert.Equal(t, http.StatusForbidden, other.StatusCode)

	dl := f.do(http.MethodGet, "/api/photos/"+up.ID+"/download", f.ownerID, nil, "")
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "image/jpeg", dl.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="beach.jpg"`, dl.Header.Get("Content-Disposition"))
	assert.Equal(t, "4096", dl.Header.Get("Content-Length"))
	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	patch := f.doJSON(http.MethodPatch, "/api/photos/"+up.ID, f.ownerID, map[string]string{"visibility": "public"})
	require.Equal(t, http.StatusOK, patch.StatusCode)
	published := decode[PhotoView](t, patch)
	require.NotNil(t, published.PublicLink)
	assert.True(t, strings.HasPrefix(*published.PublicLink, "photo-"))

	pub := f.do(http.MethodGet, "/api/public/photo/"+*published.PublicLink, "", nil, "")
	require.Equal(t, http.StatusOK, pub.StatusCode)
	view := decode[PublicPhotoView](t, pub)
	assert.Equal(t, up.ID, view.ID)
	require.NotNil(t, view.URL)

	priv := f.doJSON(http.MethodPatch, "/api/photos/"+up.ID, f.ownerID, map[string]string{"visibility": "private"})
	require.Equal(t, http.StatusOK, priv.StatusCode)
	gone := f.do(http.MethodGet, "/api/public/photo/"+*published.PublicLink, "", nil, "")
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestUploadRejections(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.upload(f.ownerID, "notes.txt", "text/plain", []byte("hello"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad := f.upload(f.ownerID, "a.png", "image/png", []byte{1}, map[string]string{"visibility": "secret"})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	empty := f.do(http.MethodPost, "/api/upload", f.ownerID, strings.NewReader(""), "application/json")
	assert.Equal(t, http.StatusBadRequest, empty.StatusCode)
	assert.Equal(t, "No file provided", decode[ErrorResponse](t, empty).Error)

	assert.Zero(t, f.objects.Len())
}

func TestDeleteTwice(t *testing.T) {
	f := newAPIFixture(t, nil)

	up := decode[PhotoView](t, f.upload(f.ownerID, "clip.mp4", "application/octet-stream", []byte("video"), nil))
	assert.Equal(t, "video/mp4", up.MimeType)

	first := f.do(http.MethodDelete, "/api/photos/"+up.ID, f.ownerID, nil, "")
	require.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, "Photo deleted successfully", decode[MessageResponse](t, first).Message)

	second := f.do(http.MethodDelete, "/api/photos/"+up.ID, f.ownerID, nil, "")
	assert.Equal(t, http.StatusNotFound, second.StatusCode)
	assert.Zero(t, f.objects.Len())
}

func TestGroupMembershipFlow(t *testing.T) {
	f := newAPIFixture(t, nil)

	created := f.doJSON(http.MethodPost, "/api/groups", f.ownerID, map[string]any{"name": "Trip"})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	group := decode[GroupView](t, created)
	assert.Equal(t, "Trip", group.Name)

	add := f.doJSON(http.MethodPost, "/api/groups/"+group.ID+"/members", f.ownerID,
		map[string]any{"memberEmails": []string{"OTHER@example.com", "nobody@example.com"}})
	require.Equal(t, http.StatusOK, add.StatusCode)
	added := decode[AddMembersResponse](t, add)
	assert.Equal(t, 1, added.Added)
	assert.Equal(t, "Added 1 members", added.Message)

	members := f.do(http.MethodGet, "/api/groups/"+group.ID+"/members", f.otherID, nil, "")
	require.Equal(t, http.StatusOK, members.StatusCode)
	assert.Len(t, decode[[]MemberView](t, members), 2)

	up := f.upload(f.otherID, "g.png", "image/png", []byte("png"), map[string]string{"groupId": group.ID})
	require.Equal(t, http.StatusOK, up.StatusCode)
	groupPhoto := decode[PhotoView](t, up)
	require.NotNil(t, groupPhoto.GroupID)
	assert.Equal(t, group.ID, *groupPhoto.GroupID)

	photos := f.do(http.MethodGet, "/api/groups/"+group.ID+"/photos", f.ownerID, nil, "")
	require.Equal(t, http.StatusOK, photos.StatusCode)
	list := decode[[]PhotoView](t, photos)
	require.Len(t, list, 1)
	assert.Equal(t, services.DisplayName(f.otherID), list[0].UploaderName)

	// Only admins may delete the group
	denied := f.do(http.MethodDelete, "/api/groups/"+group.ID, f.otherID, nil, "")
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)

	outsider := f.do(http.MethodGet, "/api/groups/"+group.ID, f.adminID, nil, "")
	assert.Equal(t, http.StatusForbidden, outsider.StatusCode)

	deleted := f.do(http.MethodDelete, "/api/groups/"+group.ID, f.ownerID, nil, "")
	require.Equal(t, http.StatusOK, deleted.StatusCode)
	assert.Equal(t, 1, f.db.Photos().Count())
}

func TestAdminRoutes(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.upload(f.ownerID, "a.jpg", "image/jpeg", []byte("a"), nil)

	denied := f.do(http.MethodGet, "/api/admin/users", f.ownerID, nil, "")
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)
	assert.Equal(t, "Admin access required", decode[ErrorResponse](t, denied).Error)

	users := f.do(http.MethodGet, "/api/admin/users", f.adminID, nil, "")
	require.Equal(t, http.StatusOK, users.StatusCode)
	list := decode[[]AdminUserView](t, users)
	assert.Len(t, list, 3)
	for _, u := range list {
		assert.Equal(t, "N/A", u.Name)
	}

	photos := f.do(http.MethodGet, "/api/admin/photos", f.adminID, nil, "")
	require.Equal(t, http.StatusOK, photos.StatusCode)
	assert.Len(t, decode[[]PhotoView](t, photos), 1)
}

func TestRateLimitedAPI(t *testing.T) {
	limiter := middleware.NewMemoryLimiter(2, time.Hour)
	defer limiter.Close()
	f := newAPIFixture(t, limiter)

	for i := 0; i < 2; i++ {
		resp := f.do(http.MethodGet, "/api/storage", f.ownerID, nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := f.do(http.MethodGet, "/api/storage", f.ownerID, nil, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Probes stay outside the limiter
	health := f.do(http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestReadyReportsFailingChecks(t *testing.T) {
	h := NewSystemHandler(map[string]Checker{
		"database": func(_ context.Context) error { return nil },
		"storage":  func(_ context.Context) error { return errors.New("bucket unreachable") },
	})

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "DEGRADED", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "unavailable", body.Checks["storage"])
	assert.NotContains(t, rec.Body.String(), "bucket unreachable")
}
