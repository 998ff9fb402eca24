package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jorgepsendziuk/pinovara/internal/audit"
	"github.com/jorgepsendziuk/pinovara/internal/util"
)

// queryFirst devolve o primeiro parâmetro preenchido entre os nomes aceitos.
func queryFirst(q url.Values, names ...string) (string, string) {
	for _, n := range names {
		if v := strings.TrimSpace(q.Get(n)); v != "" {
			return n, v
		}
	}
	return names[0], ""
}

// parseAuditFilter lê action, entity, userId, startDate e endDate; os nomes em
// português (acao, entidade, usuario_id, inicio, fim) continuam aceitos.
func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	_, acao := queryFirst(q, "action", "acao")
	_, entidade := queryFirst(q, "entity", "entidade")
	f := audit.Filter{
		Acao:     acao,
		Entidade: entidade,
		Page:     queryInt(r, "page"),
		Limit:    queryInt(r, "limit"),
	}

	var verr util.ValidationError
	if name, raw := queryFirst(q, "userId", "usuario_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			verr.Add(name, err)
		} else {
			f.UsuarioID = &id
		}
	}
	var err error
	name, raw := queryFirst(q, "startDate", "inicio")
	if f.Inicio, err = parseWhen(raw, false); err != nil {
		verr.Add(name, err)
	}
	name, raw = queryFirst(q, "endDate", "fim")
	if f.Fim, err = parseWhen(raw, true); err != nil {
		verr.Add(name, err)
	}
	return f, verr.Err()
}

// parseWhen aceita RFC3339 ou data simples; a data final inclui o dia inteiro.
func parseWhen(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// ListAuditLogs lista o log de auditoria com filtros.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseAuditFilter(r)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	page, err := h.auditLogs.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err, "não foi possível listar auditoria")
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// AuditStats resume o log de auditoria.
func (h *Handler) AuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.auditLogs.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "não foi possível calcular estatísticas")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ExportAuditLogs baixa o log filtrado em CSV.
func (h *Handler) ExportAuditLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseAuditFilter(r)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+audit.ExportFilename(h.now()))
	w.WriteHeader(http.StatusOK)
	if err := audit.ExportCSV(r.Context(), h.auditLogs, f, w); err != nil {
		log.Error().Err(err).Msg("exportação de auditoria interrompida")
	}
}
