package http

import (
	"net/http"
	"strconv"

	"github.com/jorgepsendziuk/pinovara/internal/audit"
	"github.com/jorgepsendziuk/pinovara/internal/organizacao"
)

const entidadeOrganizacao = "organizacao"

// ListOrganizations lista organizações com filtros e paginação.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.orgs.List(r.Context(), viewer(r), organizacao.Filter{
		Nome:      q.Get("nome"),
		Estado:    q.Get("estado"),
		Municipio: q.Get("municipio"),
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
	})
	if err != nil {
		writeServiceError(w, r, err, "não foi possível listar organizações")
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// GetOrganization devolve uma organização.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	o, err := h.orgs.Get(r.Context(), viewer(r), id)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível carregar organização")
		return
	}
	WriteJSON(w, http.StatusOK, o)
}

// CreateOrganization cadastra uma organização.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var in organizacao.Input
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	o, err := h.orgs.Create(r.Context(), viewer(r), in)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível criar organização")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:       audit.AcaoCreate,
		Entidade:   entidadeOrganizacao,
		EntidadeID: strconv.FormatInt(o.ID, 10),
		DadosNovos: o,
	})
	WriteJSON(w, http.StatusCreated, o)
}

// UpdateOrganization substitui os dados da organização.
func (h *Handler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	var in organizacao.Input
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	before, after, err := h.orgs.Update(r.Context(), viewer(r), id, in)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível atualizar organização")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:         audit.AcaoUpdate,
		Entidade:     entidadeOrganizacao,
		EntidadeID:   strconv.FormatInt(id, 10),
		DadosAntigos: before,
		DadosNovos:   after,
	})
	WriteJSON(w, http.StatusOK, after)
}

// DeleteOrganization remove logicamente a organização.
func (h *Handler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	before, err := h.orgs.Delete(r.Context(), viewer(r), id)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível remover organização")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:         audit.AcaoDelete,
		Entidade:     entidadeOrganizacao,
		EntidadeID:   strconv.FormatInt(id, 10),
		DadosAntigos: before,
	})
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "removido": true})
}
