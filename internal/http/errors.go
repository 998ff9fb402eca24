package http

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/auth"
	"github.com/jorgepsendziuk/pinovara/internal/odksync"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
	"github.com/jorgepsendziuk/pinovara/internal/service"
	"github.com/jorgepsendziuk/pinovara/internal/util"
)

// writeServiceError traduz erros de domínio para o envelope HTTP.
// Erros desconhecidos viram INTERNAL_ERROR com a causa apenas no log.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *util.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), verr.Fields)
	case errors.Is(err, anexo.ErrInvalidTipo):
		WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), map[string]string{"tipo": "use foto ou arquivo"})
	case errors.Is(err, service.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error(), nil)
	case errors.Is(err, service.ErrAccountDisabled):
		WriteError(w, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", err.Error(), nil)
	case errors.Is(err, service.ErrRefreshInvalid), errors.Is(err, auth.ErrTokenInvalid):
		WriteError(w, http.StatusUnauthorized, "TOKEN_INVALID", err.Error(), nil)
	case errors.Is(err, auth.ErrTokenExpired):
		WriteError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", err.Error(), nil)
	case errors.Is(err, odksync.ErrInvalidOrganization):
		WriteError(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, odksync.ErrSyncInProgress):
		WriteError(w, http.StatusConflict, "RESOURCE_CONFLICT", err.Error(), nil)
	case errors.Is(err, odksync.ErrRemoteUnavailable):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("banco ODK indisponível")
		WriteError(w, http.StatusServiceUnavailable, "REMOTE_UNAVAILABLE", odksync.ErrRemoteUnavailable.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		WriteError(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, repo.ErrConflict):
		WriteError(w, http.StatusConflict, "RESOURCE_CONFLICT", err.Error(), nil)
	case errors.Is(err, anexo.ErrStorage):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("falha no armazenamento")
		WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", anexo.ErrStorage.Error(), nil)
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg(fallback)
		WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", fallback, nil)
	}
}
