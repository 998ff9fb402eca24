package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jorgepsendziuk/pinovara/internal/audit"
	"github.com/jorgepsendziuk/pinovara/internal/auth"
	"github.com/jorgepsendziuk/pinovara/internal/rbac"
)

type errorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Message    string `json:"message"`
		Code       string `json:"code"`
		StatusCode int    `json:"statusCode"`
		Details    struct {
			Required  map[string]string `json:"required"`
			UserRoles []string          `json:"userRoles"`
		} `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.StatusCode != rec.Code {
		t.Fatalf("envelope inconsistente: %+v", body)
	}
	return body
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newSessions() (*auth.SessionManager, *fixedClock) {
	clock := &fixedClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return auth.NewSessionManager(strings.Repeat("k", 32), time.Hour).WithClock(clock.Now), clock
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func protectedRouter(sessions SessionVerifier, guards ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(Authenticate(sessions))
	r.With(guards...).Get("/recurso", okHandler)
	return r
}

func bearer(t *testing.T, mgr *auth.SessionManager, grants rbac.Grants) string {
	t.Helper()
	token, _, err := mgr.IssueSession(auth.SessionUser{ID: 5, Email: "t@pinovara.org"}, grants)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return "Bearer " + token
}

func TestAuthenticateRejections(t *testing.T) {
	mgr, clock := newSessions()
	expired := bearer(t, mgr, nil)
	clock.now = clock.now.Add(2 * time.Hour)

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"sem cabeçalho", "", "AUTHENTICATION_REQUIRED"},
		{"esquema errado", "Basic abc", "AUTHENTICATION_REQUIRED"},
		{"expirado", expired, "TOKEN_EXPIRED"},
		{"lixo", "Bearer abc.def.ghi", "TOKEN_INVALID"},
	}
	h := protectedRouter(mgr)
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/recurso", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", tc.name, rec.Code)
		}
		if body := decodeError(t, rec); body.Error.Code != tc.code {
			t.Fatalf("%s: code = %s", tc.name, body.Error.Code)
		}
	}
}

func TestAuthenticateAttachesIdentityAndActor(t *testing.T) {
	mgr, _ := newSessions()
	var (
		got   Identity
		actor audit.Actor
	)
	r := chi.NewRouter()
	r.Use(Authenticate(mgr))
	r.Get("/eu", func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetIdentity(r.Context())
		actor, _ = audit.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/eu", nil)
	req.Header.Set("Authorization", bearer(t, mgr, rbac.Grants{rbac.NewGrant("tecnico", 2, "organizacoes", false)}))
	req.Header.Set("User-Agent", "teste/1.0")
	req.Header.Set("X-Real-IP", "10.1.1.1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || got.UserID != 5 || len(got.Grants) != 1 {
		t.Fatalf("identidade não anexada: %d %+v", rec.Code, got)
	}
	if actor.UserID != 5 || actor.IP != "10.1.1.1" || actor.UserAgent != "teste/1.0" {
		t.Fatalf("autor de auditoria incorreto: %+v", actor)
	}
}

func TestRequireRoleTecnicoScenario(t *testing.T) {
	mgr, _ := newSessions()
	tecnico := bearer(t, mgr, rbac.Grants{rbac.NewGrant("tecnico", 3, "tecnicos", false)})

	denied := protectedRouter(mgr, RequireRole("associados", ""))
	req := httptest.NewRequest(http.MethodGet, "/recurso", nil)
	req.Header.Set("Authorization", tecnico)
	rec := httptest.NewRecorder()
	denied.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Code != "INSUFFICIENT_PERMISSIONS" || body.Error.Details.Required["module"] != "associados" {
		t.Fatalf("detalhes incorretos: %+v", body.Error)
	}
	if len(body.Error.Details.UserRoles) != 1 || body.Error.Details.UserRoles[0] != "tecnico@tecnicos" {
		t.Fatalf("userRoles = %v", body.Error.Details.UserRoles)
	}

	allowed := protectedRouter(mgr, RequireRole("tecnicos", ""))
	req = httptest.NewRequest(http.MethodGet, "/recurso", nil)
	req.Header.Set("Authorization", tecnico)
	rec = httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("tecnico deveria acessar tecnicos, status = %d", rec.Code)
	}
}

func TestRequireAnyModeratorRole(t *testing.T) {
	mgr, _ := newSessions()
	h := protectedRouter(mgr, RequireAnyModeratorRole("organizacoes", []string{"admin", "moderador", "coordenador"}))

	cases := map[string]struct {
		grants rbac.Grants
		want   int
	}{
		"coordenador": {rbac.Grants{rbac.NewGrant("coordenador", 2, "organizacoes", false)}, http.StatusNoContent},
		"global":      {rbac.Grants{rbac.NewGrant(rbac.RoleAdministracao, 1, rbac.ModuloSistema, true)}, http.StatusNoContent},
		"tecnico":     {rbac.Grants{rbac.NewGrant("tecnico", 2, "organizacoes", false)}, http.StatusForbidden},
		"sem papéis":  {nil, http.StatusForbidden},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/recurso", nil)
		req.Header.Set("Authorization", bearer(t, mgr, tc.grants))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", name, rec.Code, tc.want)
		}
	}
}

func TestRequireWriteBlocksGestao(t *testing.T) {
	mgr, _ := newSessions()
	h := protectedRouter(mgr, RequireRole("organizacoes", ""), RequireWrite("organizacoes"))

	req := httptest.NewRequest(http.MethodGet, "/recurso", nil)
	req.Header.Set("Authorization", bearer(t, mgr, rbac.Grants{rbac.NewGrant(rbac.RoleGestao, 1, rbac.ModuloSistema, true)}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("gestao não pode alterar, status = %d", rec.Code)
	}
}

func TestGuardWithoutIdentity(t *testing.T) {
	h := RequireRole("organizacoes", "")(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

type stubChecker struct {
	ativo bool
	err   error
}

func (s stubChecker) UsuarioAtivo(ctx context.Context, userID int64) (bool, error) {
	return s.ativo, s.err
}

func TestRequireActiveUser(t *testing.T) {
	cases := map[string]struct {
		checker stubChecker
		want    int
	}{
		"ativo":   {stubChecker{ativo: true}, http.StatusNoContent},
		"inativo": {stubChecker{ativo: false}, http.StatusUnauthorized},
		"falha":   {stubChecker{err: errors.New("db fora")}, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		h := RequireActiveUser(tc.checker)(http.HandlerFunc(okHandler))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: 5}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d", name, rec.Code)
		}
	}
}
