package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jorgepsendziuk/pinovara/internal/audit"
	httpmiddleware "github.com/jorgepsendziuk/pinovara/internal/http/middleware"
	"github.com/jorgepsendziuk/pinovara/internal/util"
)

// Login autentica por e-mail e senha.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Senha string `json:"senha"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	var verr util.ValidationError
	verr.Add("email", util.RequireString(payload.Email, "email"))
	verr.Add("senha", util.RequireString(payload.Senha, "senha"))
	if err := verr.Err(); err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	result, err := h.auth.Login(r.Context(), payload.Email, payload.Senha)
	if err != nil {
		writeServiceError(w, r, err, "erro ao autenticar")
		return
	}

	uid := result.User.ID
	h.audit.Record(r.Context(), audit.Entry{
		Acao:       audit.AcaoLogin,
		Entidade:   "usuario",
		EntidadeID: strconv.FormatInt(uid, 10),
		UsuarioID:  &uid,
		IP:         httpmiddleware.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})

	WriteJSON(w, http.StatusOK, result)
}

type refreshPayload struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh troca o refresh token por nova sessão.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if strings.TrimSpace(payload.RefreshToken) == "" {
		writeServiceError(w, r, util.Invalid("refreshToken", "refreshToken obrigatório"), "")
		return
	}

	result, err := h.auth.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err, "erro ao renovar sessão")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Logout revoga o refresh token informado.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	_ = decodeJSON(r, &payload)

	if err := h.auth.Logout(r.Context(), payload.RefreshToken); err != nil {
		writeServiceError(w, r, err, "erro ao encerrar sessão")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me retorna o perfil do usuário autenticado com papéis atuais.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := httpmiddleware.GetIdentity(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "autenticação necessária", nil)
		return
	}

	profile, err := h.auth.Me(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível carregar perfil")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user":         profile,
		"sessionRoles": id.Grants.Describe(),
	})
}
