package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactlink/internal/config"
	"contactlink/internal/metrics"
	"contactlink/internal/middleware"
	"contactlink/internal/models"
	"contactlink/internal/service"
	"contactlink/internal/store/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type identifyFunc func(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error)

func (f identifyFunc) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error) {
	return f(ctx, req)
}

type testServer struct {
	handler http.Handler
	store   *memstore.Store
}

func newTestServer(t *testing.T, svc identifier, pingErr error) *testServer {
	t.Helper()

	log := testLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	st := memstore.New()
	if svc == nil {
		svc = service.NewReconciliationService(log, st, m)
	}

	return &testServer{
		store: st,
		handler: NewRouter(RouterDeps{
			Logger:   log,
			Identify: NewIdentifyHandler(svc, log),
			Health: NewHealthHandler(map[string]Pinger{
				"database": PingFunc(func(context.Context) error { return pingErr }),
			}),
			Metrics:  m,
			Gatherer: reg,
			CORS: config.CORSConfig{
				AllowedOrigins: "*",
				AllowedMethods: "GET,POST,OPTIONS",
				AllowedHeaders: "Accept,Content-Type,X-Request-Id",
				MaxAge:         300,
			},
		}),
	}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeContact(t *testing.T, rec *httptest.ResponseRecorder) models.ContactResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Contact
}

func TestIdentify_Flow(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := srv.do(http.MethodPost, "/identify", `{"email":"lorraine@hillvalley.edu","phoneNumber":"123456"}`)
	assert.JSONEq(t, `{"contact":{
		"primaryContatctId": 1,
		"emails": ["lorraine@hillvalley.edu"],
		"phoneNumbers": ["123456"],
		"secondaryContactIds": []
	}}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	got := decodeContact(t, srv.do(http.MethodPost, "/api/identify", `{"email":"mcfly@hillvalley.edu","phoneNumber":123456}`))
	assert.Equal(t, models.ContactResponse{
		PrimaryContactID:    1,
		Emails:              []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"},
		PhoneNumbers:        []string{"123456"},
		SecondaryContactIDs: []int64{2},
	}, got)

	got = decodeContact(t, srv.do(http.MethodPost, "/identify", `{"email":"mcfly@hillvalley.edu","phoneNumber":"123456"}`))
	assert.Equal(t, []int64{2}, got.SecondaryContactIDs)
	assert.Len(t, srv.store.All(), 2)
}

func TestIdentify_BadRequests(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "malformed", body: `{"email":`, wantErr: "invalid JSON body"},
		{name: "wrong type", body: `{"email": 12}`, wantErr: "invalid JSON body"},
		{name: "phone object", body: `{"phoneNumber": {"n": 1}}`, wantErr: "invalid JSON body"},
		{name: "empty object", body: `{}`, wantErr: models.ErrNoContactInfo.Error()},
		{name: "nulls", body: `{"email": null, "phoneNumber": null}`, wantErr: models.ErrNoContactInfo.Error()},
		{name: "empty strings", body: `{"email": "", "phoneNumber": ""}`, wantErr: models.ErrNoContactInfo.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(http.MethodPost, "/identify", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body.Error)
		})
	}
	assert.Empty(t, srv.store.All())
}

func TestIdentify_InternalError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "inconsistent state", err: models.ErrInconsistentState},
		{name: "store failure", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, identifyFunc(func(context.Context, models.IdentifyRequest) (*models.IdentifyResponse, error) {
				return nil, tt.err
			}), nil)

			rec := srv.do(http.MethodPost, "/identify", `{"email":"a@example.com"}`)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"internal server error","message":"failed to identify contact"}`, rec.Body.String())
		})
	}
}

func TestRouter_Misc(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := srv.do(http.MethodGet, "/api", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the Contact Identification API", rec.Body.String())

	rec = srv.do(http.MethodGet, "/identify", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = srv.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	srv.do(http.MethodPost, "/identify", `{"email":"a@example.com"}`)

	rec := srv.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `contactlink_identify_total{outcome="created_primary"} 1`)
	assert.Contains(t, rec.Body.String(), `contactlink_http_requests_total{code="200",route="/identify"} 1`)
}

func TestRouter_MetricsCountUnmatched(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	srv.do(http.MethodGet, "/nope", "")
	srv.do(http.MethodGet, "/nope/again", "")
	srv.do(http.MethodGet, "/identify", "")

	rec := srv.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `contactlink_http_requests_total{code="404",route="unmatched"} 2`)
	assert.Contains(t, rec.Body.String(), `contactlink_http_requests_total{code="405",route="unmatched"} 1`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/identify", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestHealth(t *testing.T) {
	rec := newTestServer(t, nil, nil).do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "up", body.Components["database"].Status)

	rec = newTestServer(t, nil, errors.New("db gone")).do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "down", body.Status)
	assert.Equal(t, "down", body.Components["database"].Status)
}

func TestNewHealthHandler_SkipsNil(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"redis": nil})
	assert.Empty(t, h.components)
}
