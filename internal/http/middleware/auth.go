package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jorgepsendziuk/pinovara/internal/audit"
	"github.com/jorgepsendziuk/pinovara/internal/auth"
	"github.com/jorgepsendziuk/pinovara/internal/rbac"
)

type contextKey string

const contextKeyIdentity contextKey = "identity"

// Identity é o usuário autenticado da requisição, com o retrato de papéis do token.
type Identity struct {
	UserID int64
	Email  string
	Grants rbac.Grants
}

// SessionVerifier valida tokens de sessão.
type SessionVerifier interface {
	VerifySession(token string) (*auth.Claims, error)
}

// ActiveChecker consulta o estado atual da conta.
type ActiveChecker interface {
	UsuarioAtivo(ctx context.Context, userID int64) (bool, error)
}

// WithIdentity injeta a identidade no contexto.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// GetIdentity recupera a identidade do contexto.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity).(Identity)
	return id, ok
}

// Authenticate valida o bearer token e injeta a identidade no contexto.
func Authenticate(sessions SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "token de acesso ausente", nil)
				return
			}

			claims, err := sessions.VerifySession(strings.TrimSpace(parts[1]))
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "sessão expirada", nil)
					return
				}
				writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "token inválido", nil)
				return
			}

			id := Identity{UserID: claims.UserID, Email: claims.Email, Grants: claims.Grants()}
			ctx := WithIdentity(r.Context(), id)
			ctx = audit.ContextWithActor(ctx, audit.Actor{
				UserID:    id.UserID,
				IP:        ClientIP(r),
				UserAgent: r.UserAgent(),
			})
			noteUser(ctx, id.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole exige o papel no módulo; papel vazio aceita qualquer papel do módulo.
func RequireRole(module, role string) func(http.Handler) http.Handler {
	return guard(module, role, func(grants rbac.Grants) bool {
		return rbac.Authorize(grants, module, role)
	})
}

// RequireAnyModeratorRole aceita qualquer papel da lista no módulo.
func RequireAnyModeratorRole(module string, allowed []string) func(http.Handler) http.Handler {
	return guard(module, strings.Join(allowed, "|"), func(grants rbac.Grants) bool {
		return rbac.AuthorizeAny(grants, module, allowed)
	})
}

// RequireWrite bloqueia papéis globais somente leitura em rotas que alteram dados.
func RequireWrite(module string) func(http.Handler) http.Handler {
	return guard(module, "escrita", func(grants rbac.Grants) bool {
		return rbac.CanWrite(grants, module)
	})
}

func guard(module, required string, allow func(rbac.Grants) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "autenticação necessária", nil)
				return
			}
			if allow(id.Grants) {
				next.ServeHTTP(w, r)
				return
			}

			userRoles := id.Grants.Describe()
			log.Warn().
				Int64("user_id", id.UserID).
				Str("module", module).
				Str("required", required).
				Strs("user_roles", userRoles).
				Str("path", r.URL.Path).
				Msg("acesso negado")

			writeError(w, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "permissão insuficiente", map[string]any{
				"required":  map[string]string{"module": module, "role": required},
				"userRoles": userRoles,
			})
		})
	}
}

// RequireActiveUser confere no banco se a conta continua ativa.
func RequireActiveUser(checker ActiveChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "autenticação necessária", nil)
				return
			}
			ativo, err := checker.UsuarioAtivo(r.Context(), id.UserID)
			if err != nil {
				log.Error().Err(err).Int64("user_id", id.UserID).Msg("falha ao consultar usuário")
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "erro interno", nil)
				return
			}
			if !ativo {
				log.Warn().Int64("user_id", id.UserID).Str("path", r.URL.Path).Msg("usuário inativo com sessão válida")
				writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "usuário inativo", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
