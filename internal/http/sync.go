package http

import (
	"net/http"
	"strconv"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/audit"
)

// SyncAttachments baixa do ODK os anexos que a organização ainda não possui.
func (h *Handler) SyncAttachments(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	tipo, err := anexo.ParseTipo(r.URL.Query().Get("tipo"))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if err := h.orgs.CheckAccess(r.Context(), viewer(r), orgID); err != nil {
		writeServiceError(w, r, err, "não foi possível carregar organização")
		return
	}

	result, err := h.sync.Reconcile(r.Context(), orgID, tipo)
	if err != nil {
		writeServiceError(w, r, err, "falha na sincronização")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:       audit.AcaoSync,
		Entidade:   entidadeAnexo(tipo),
		EntidadeID: strconv.FormatInt(orgID, 10),
		DadosNovos: result,
	})
	WriteJSON(w, http.StatusOK, result)
}

// AvailableAttachments lista os anexos remotos sem persistir nada.
func (h *Handler) AvailableAttachments(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	tipo, err := anexo.ParseTipo(r.URL.Query().Get("tipo"))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if err := h.orgs.CheckAccess(r.Context(), viewer(r), orgID); err != nil {
		writeServiceError(w, r, err, "não foi possível carregar organização")
		return
	}

	items, err := h.sync.Preview(r.Context(), orgID, tipo)
	if err != nil {
		writeServiceError(w, r, err, "falha ao consultar o ODK")
		return
	}
	pendentes := 0
	for _, it := range items {
		if !it.ExisteLocalmente {
			pendentes++
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"tipo":      tipo,
		"total":     len(items),
		"pendentes": pendentes,
		"itens":     items,
	})
}

// SyncAll reconcilia todas as organizações vinculadas ao ODK.
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	tipo, err := anexo.ParseTipo(r.URL.Query().Get("tipo"))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	result, err := h.sync.ReconcileAll(r.Context(), tipo)
	if err != nil {
		writeServiceError(w, r, err, "falha na sincronização em massa")
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		Acao:       audit.AcaoSync,
		Entidade:   entidadeAnexo(tipo),
		DadosNovos: result,
	})
	WriteJSON(w, http.StatusOK, result)
}
