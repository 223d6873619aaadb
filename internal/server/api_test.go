package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vesaa/webexsync/internal/models"
	"github.com/vesaa/webexsync/internal/pull"
	"github.com/vesaa/webexsync/internal/store"
)

var syncedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeLoop struct{ network models.Node }

func (f fakeLoop) State() pull.State    { return pull.StateRunning }
func (f fakeLoop) LastSync() time.Time  { return syncedAt }
func (f fakeLoop) Network() models.Node { return f.network }

type fakeTokens struct{}

func (fakeTokens) ExpiresAt() time.Time { return syncedAt.Add(time.Hour) }

type fixture struct {
	engine     *gin.Engine
	endpointID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	network, err := st.CreateContext(ctx, "Webex Network")
	require.NoError(t, err)
	device, err := st.UpsertDevice(ctx, network.ID, models.DeviceSpec{Name: "Room A", Type: "device"})
	require.NoError(t, err)
	epID, err := st.CreateNode(ctx, models.NodeSpec{
		Name:     "temperature",
		Type:     models.TypeEndpoint,
		Endpoint: &models.Endpoint{CurrentValue: 21.5, Unit: "celsius", DataType: models.DataTypeReal, Type: models.EndpointOther},
	})
	require.NoError(t, err)
	require.NoError(t, st.AddChild(ctx, device.ID, epID, network.ID, models.RelationHasEndpoint))
	for i := range 3 {
		require.NoError(t, st.InsertSample(ctx, epID, 20+float64(i), syncedAt.Add(time.Duration(i)*time.Minute).UnixMilli()))
	}
	require.NoError(t, st.NewStatusRecorder("webexsync", 5*time.Minute).RecordSync(ctx, syncedAt))

	srv, err := New(Options{
		OrganName: "webexsync",
		JWTSecret: "test-secret",
		AdminUser: "admin",
		AdminPass: "s3cret",
	}, st, fakeLoop{network: network}, fakeTokens{})
	require.NoError(t, err)
	return &fixture{engine: srv.Engine(), endpointID: epID}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
		Type  string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.Type)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/status", "/api/devices/tree", "/api/endpoints/x/samples"} {
		w := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		w = f.do(t, http.MethodGet, path, "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/status", f.login(t), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "webexsync", resp["organ"])
	assert.Equal(t, "running", resp["state"])
	assert.Equal(t, float64(300000), resp["pull_interval_ms"])
	assert.Contains(t, resp, "host")
	assert.Contains(t, resp, "token_expires_at")
	network, ok := resp["network"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Webex Network", network["name"])
}

func TestDeviceTree(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/devices/tree", f.login(t), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*models.NodeTree `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Len(t, resp.Data[0].Children, 1)
	device := resp.Data[0].Children[0]
	assert.Equal(t, "Room A", device.Name)
	require.Len(t, device.Children, 1)
	require.NotNil(t, device.Children[0].Endpoint)
	assert.Equal(t, 21.5, device.Children[0].Endpoint.CurrentValue)
}

func TestSamples(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(t, http.MethodGet, "/api/endpoints/"+f.endpointID+"/samples?limit=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []models.Sample `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, float64(22), resp.Data[0].Value)
	assert.Greater(t, resp.Data[0].Timestamp, resp.Data[1].Timestamp)

	w = f.do(t, http.MethodGet, "/api/endpoints/unknown/samples", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/endpoints/"+f.endpointID+"/samples?limit=zero", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsExposition(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStatusPageFallback(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/anything", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "webexsync")
}

func TestAuthenticatorAcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	a, err := NewAuthenticator("k", "ops", string(hash))
	require.NoError(t, err)
	assert.True(t, a.Verify("ops", "hunter2"))
	assert.False(t, a.Verify("ops", string(hash)))
	assert.False(t, a.Verify("root", "hunter2"))

	_, err = NewAuthenticator("", "ops", "x")
	require.Error(t, err)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	a, err := NewAuthenticator("k", "ops", "pw")
	require.NoError(t, err)
	a.now = func() time.Time { return syncedAt }
	token, err := a.Issue("ops")
	require.NoError(t, err)

	_, err = a.parse(token)
	require.NoError(t, err)

	a.now = func() time.Time { return syncedAt.Add(tokenTTL + time.Second) }
	_, err = a.parse(token)
	require.Error(t, err)
}
