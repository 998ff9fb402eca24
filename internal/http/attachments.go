package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/audit"
	"github.com/jorgepsendziuk/pinovara/internal/util"
)

const multipartMemory = 8 << 20

func entidadeAnexo(tipo anexo.Tipo) string {
	return "organizacao_" + string(tipo)
}

func (h *Handler) listAttachments(tipo anexo.Tipo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := pathID(r, "id")
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		if err := h.orgs.CheckAccess(r.Context(), viewer(r), orgID); err != nil {
			writeServiceError(w, r, err, "não foi possível carregar organização")
			return
		}
		items, err := h.anexos.List(r.Context(), tipo, orgID)
		if err != nil {
			writeServiceError(w, r, err, "não foi possível listar anexos")
			return
		}
		WriteJSON(w, http.StatusOK, items)
	}
}

func (h *Handler) uploadAttachment(tipo anexo.Tipo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := pathID(r, "id")
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		if err := h.orgs.CheckAccess(r.Context(), viewer(r), orgID); err != nil {
			writeServiceError(w, r, err, "não foi possível carregar organização")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeTooLarge(w)
				return
			}
			writeServiceError(w, r, util.Invalid("arquivo", "envio multipart inválido"), "")
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		file, header, err := r.FormFile("arquivo")
		if err != nil {
			writeServiceError(w, r, util.Invalid("arquivo", "arquivo obrigatório"), "")
			return
		}
		defer file.Close()

		body, err := io.ReadAll(io.LimitReader(file, h.uploadLimit+1))
		if err != nil {
			writeServiceError(w, r, err, "não foi possível ler o arquivo")
			return
		}
		if int64(len(body)) > h.uploadLimit {
			h.writeTooLarge(w)
			return
		}
		if len(body) == 0 {
			writeServiceError(w, r, util.Invalid("arquivo", "arquivo vazio"), "")
			return
		}

		contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(body)
		}
		if tipo == anexo.TipoFoto && !strings.HasPrefix(contentType, "image/") {
			writeServiceError(w, r, util.Invalid("arquivo", "foto deve ser uma imagem"), "")
			return
		}

		created, err := h.anexos.Create(r.Context(), anexo.NewAnexo{
			Tipo:          tipo,
			OrganizacaoID: orgID,
			NomeOriginal:  path.Base(header.Filename),
			ContentType:   contentType,
			Obs:           r.FormValue("obs"),
			Body:          body,
		})
		if err != nil {
			writeServiceError(w, r, err, "não foi possível salvar o anexo")
			return
		}

		h.audit.Record(r.Context(), audit.Entry{
			Acao:       audit.AcaoCreate,
			Entidade:   entidadeAnexo(tipo),
			EntidadeID: strconv.FormatInt(created.ID, 10),
			DadosNovos: created,
		})
		WriteJSON(w, http.StatusCreated, created)
	}
}

func (h *Handler) writeTooLarge(w http.ResponseWriter) {
	WriteError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR",
		fmt.Sprintf("arquivo excede o limite de %d bytes", h.uploadLimit),
		map[string]int64{"limite": h.uploadLimit})
}

func (h *Handler) downloadAttachment(tipo anexo.Tipo, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := pathID(r, "id")
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		id, err := pathID(r, param)
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		if err := h.orgs.CheckAccess(r.Context(), viewer(r), orgID); err != nil {
			writeServiceError(w, r, err, "não foi possível carregar organização")
			return
		}

		a, err := h.anexos.Get(r.Context(), tipo, orgID, id)
		if err != nil {
			writeServiceError(w, r, err, "não foi possível carregar anexo")
			return
		}
		rc, err := h.anexos.Open(r.Context(), a)
		if err != nil {
			writeServiceError(w, r, err, "não foi possível abrir anexo")
			return
		}
		defer rc.Close()

		contentType := "application/octet-stream"
		if a.ContentType != nil && *a.ContentType != "" {
			contentType = *a.ContentType
		}
		name := path.Base(a.Arquivo)
		if a.NomeOriginal != nil && *a.NomeOriginal != "" {
			name = *a.NomeOriginal
		}
		disposition := "attachment"
		if tipo == anexo.TipoFoto {
			disposition = "inline"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, name))
		if a.Tamanho > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(a.Tamanho, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			log.Warn().Err(err).Int64("anexo_id", a.ID).Msg("download interrompido")
		}
	}
}

func (h *Handler) deleteAttachment(tipo anexo.Tipo, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := pathID(r, "id")
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		id, err := pathID(r, param)
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		if err := h.orgs.CheckAccess(r.Context(), viewer(r), orgID); err != nil {
			writeServiceError(w, r, err, "não foi possível carregar organização")
			return
		}

		removed, err := h.anexos.Delete(r.Context(), tipo, orgID, id)
		if err != nil {
			writeServiceError(w, r, err, "não foi possível remover anexo")
			return
		}

		h.audit.Record(r.Context(), audit.Entry{
			Acao:         audit.AcaoDelete,
			Entidade:     entidadeAnexo(tipo),
			EntidadeID:   strconv.FormatInt(id, 10),
			DadosAntigos: removed,
		})
		WriteJSON(w, http.StatusOK, map[string]any{"id": id, "removido": true})
	}
}
