package http

import (
	"net/http"
	"strconv"

	"github.com/jorgepsendziuk/pinovara/internal/audit"
	"github.com/jorgepsendziuk/pinovara/internal/service"
	"github.com/jorgepsendziuk/pinovara/internal/util"
)

const entidadeUsuario = "usuario"

// ListUsers lista usuários com seus papéis.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "não foi possível listar usuários")
		return
	}
	WriteJSON(w, http.StatusOK, users)
}

// GetUser devolve um usuário com seus papéis.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	u, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível carregar usuário")
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// CreateUser cadastra um usuário.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	u, err := h.users.CreateUser(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível criar usuário")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:       audit.AcaoCreate,
		Entidade:   entidadeUsuario,
		EntidadeID: strconv.FormatInt(u.ID, 10),
		DadosNovos: u,
	})
	WriteJSON(w, http.StatusCreated, u)
}

// UpdateUser altera nome, estado ou senha.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	var in service.UpdateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	before, after, err := h.users.UpdateUser(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível atualizar usuário")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:         audit.AcaoUpdate,
		Entidade:     entidadeUsuario,
		EntidadeID:   strconv.FormatInt(id, 10),
		DadosAntigos: before,
		DadosNovos:   after,
	})
	WriteJSON(w, http.StatusOK, after)
}

// AssignRole vincula um papel ao usuário.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	var payload struct {
		RoleID int64 `json:"role_id"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if payload.RoleID <= 0 {
		writeServiceError(w, r, util.Invalid("role_id", "papel obrigatório"), "")
		return
	}

	role, err := h.users.AssignRole(r.Context(), userID, payload.RoleID)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível atribuir papel")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:       audit.AcaoAssignRole,
		Entidade:   entidadeUsuario,
		EntidadeID: strconv.FormatInt(userID, 10),
		DadosNovos: role,
	})
	WriteJSON(w, http.StatusCreated, role)
}

// RevokeRole remove um papel do usuário.
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if err := h.users.RevokeRole(r.Context(), userID, roleID); err != nil {
		writeServiceError(w, r, err, "não foi possível revogar papel")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:         audit.AcaoRevokeRole,
		Entidade:     entidadeUsuario,
		EntidadeID:   strconv.FormatInt(userID, 10),
		DadosAntigos: map[string]int64{"role_id": roleID},
	})
	WriteJSON(w, http.StatusOK, map[string]any{"usuario_id": userID, "role_id": roleID, "revogado": true})
}

// ListModules lista os módulos do sistema.
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	mods, err := h.users.ListModules(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "não foi possível listar módulos")
		return
	}
	WriteJSON(w, http.StatusOK, mods)
}

// ListRoles lista os papéis, opcionalmente filtrando por modulo_id.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	var moduloID *int64
	if raw := r.URL.Query().Get("modulo_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeServiceError(w, r, util.Invalid("modulo_id", "módulo inválido"), "")
			return
		}
		moduloID = &id
	}
	roles, err := h.users.ListRoles(r.Context(), moduloID)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível listar papéis")
		return
	}
	WriteJSON(w, http.StatusOK, roles)
}
