package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm_backend/internal/handlers"
	"crm_backend/internal/history"
	"crm_backend/internal/middleware"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services"
	"crm_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	token  string
}

func newTestServer(t *testing.T, maxBody int64) *testServer {
	t.Helper()
	tokens, err := utils.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	clientService := services.NewClientService(repositories.NewMemoryClientRepository(), history.NewEngine(nil), nil, nil)
	authService := services.NewAuthService(repositories.NewMemoryUserRepository(), tokens)

	r := gin.New()
	r.Use(middleware.BodyLimitMiddleware(maxBody))
	Setup(r, Dependencies{
		AuthHandler:   handlers.NewAuthHandler(authService),
		ClientHandler: handlers.NewClientHandler(clientService),
		Verifier:      tokens,
	})

	s := &testServer{engine: r}
	w := s.do(t, http.MethodPost, "/api/auth/register", `{"username":"ana","password":"secreto","nombre":"Ana"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/login", `{"username":"ana","password":"secreto"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	s.token = login.Token
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeClient(t *testing.T, w *httptest.ResponseRecorder) models.Client {
	t.Helper()
	var c models.Client
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c), w.Body.String())
	return c
}

func TestPing(t *testing.T) {
	s := newTestServer(t, 1<<20)
	w := s.do(t, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestClientRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, 1<<20)
	s.token = ""

	w := s.do(t, http.MethodGet, "/api/clients", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t, 1<<20)

	w := s.do(t, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"ana"`)
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(t, http.MethodPost, "/api/auth/register", `{"username":"ana","password":"x","nombre":"Otra"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/register", `{"username":"pepe"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", `{"username":"ana","password":"mal"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClientLifecycle(t *testing.T) {
	s := newTestServer(t, 1<<20)

	w := s.do(t, http.MethodPost, "/api/clients", `{"nombre":"Acme","telefono":"555","fecha":"2024-05-10","monto":200,"producto":"Kit"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeClient(t, w)
	assert.True(t, created.Purchased)
	assert.Equal(t, "Ana", created.Salesperson.Name)
	require.Len(t, created.History, 2)
	assert.Equal(t, "Cliente creado por Ana", created.History[0].Message)
	assert.Contains(t, w.Body.String(), `"fecha":"2024-05-10"`)

	w = s.do(t, http.MethodPut, "/api/clients/"+created.ID, `{"telefono":"777","observaciones":"Llamar"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeClient(t, w)
	assert.Equal(t, "777", updated.Phone)
	require.Len(t, updated.History, 4)
	assert.Equal(t, "Teléfono modificado", updated.History[2].Message)
	assert.Equal(t, "Llamar", updated.History[3].Message)

	w = s.do(t, http.MethodPost, "/api/clients/"+created.ID+"/ventas", `{"producto":"Plan","monto":1500}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	afterSale := decodeClient(t, w)
	require.Len(t, afterSale.Sales, 2)
	assert.Equal(t, "💰 $1,500 - Plan", afterSale.History[len(afterSale.History)-1].Message)

	w = s.do(t, http.MethodPost, "/api/clients/"+created.ID+"/mensaje", `{"mensaje":"Enviada propuesta"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Enviada propuesta", decodeClient(t, w).Notes)

	w = s.do(t, http.MethodGet, "/api/clients", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Client
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Len(t, list[0].History, 6)

	w = s.do(t, http.MethodDelete, "/api/clients/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Cliente eliminado"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/clients/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientErrors(t *testing.T) {
	s := newTestServer(t, 1<<20)

	w := s.do(t, http.MethodPost, "/api/clients", `{"nombre":"Acme"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeClient(t, w).ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown client", http.MethodGet, "/api/clients/nope", "", http.StatusNotFound},
		{"update unknown", http.MethodPut, "/api/clients/nope", `{"nombre":"x"}`, http.StatusNotFound},
		{"delete unknown", http.MethodDelete, "/api/clients/nope", "", http.StatusNotFound},
		{"malformed json", http.MethodPost, "/api/clients", `{"nombre":`, http.StatusBadRequest},
		{"bad create date", http.MethodPost, "/api/clients", `{"nombre":"x","fecha":"ayer"}`, http.StatusBadRequest},
		{"missing amount", http.MethodPost, "/api/clients/" + id + "/ventas", `{"producto":"Kit"}`, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/api/clients/" + id + "/ventas", `{"monto":-3}`, http.StatusBadRequest},
		{"sale for unknown", http.MethodPost, "/api/clients/nope/ventas", `{"monto":3}`, http.StatusNotFound},
		{"empty message", http.MethodPost, "/api/clients/" + id + "/mensaje", `{"mensaje":"  "}`, http.StatusBadRequest},
		{"message for unknown", http.MethodPost, "/api/clients/nope/mensaje", `{"mensaje":"hola"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w = s.do(t, http.MethodGet, "/api/clients/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeClient(t, w).History, 1)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	s := newTestServer(t, 512)

	w := s.do(t, http.MethodPost, "/api/clients", `{"nombre":"Acme"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeClient(t, w).ID

	body := `{"mensaje":"foto","imagen":"` + strings.Repeat("A", 1024) + `"}`
	w = s.do(t, http.MethodPost, "/api/clients/"+id+"/mensaje", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), utils.ErrCodePayloadTooLarge)
}
