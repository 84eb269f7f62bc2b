package easysave

import (
	"encoding/json"
	"net/http"

	"github.com/easysave/easysave/pkg/errs"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

// respondDomainError maps a domain error kind to its HTTP status and
// writes the caller-visible message. The wrapped cause never reaches the
// response body.
func (a *App) respondDomainError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		a.log.Error().Err(err).Msg("request failed")
		respondError(w, status, "Internal server error.")
		return
	}
	respondError(w, status, err.Error())
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.InvalidIdentifier, errs.InvalidEmail, errs.InvalidUpdateField:
		return http.StatusUnprocessableEntity
	case errs.NonuniqueUsername, errs.DuplicateEmail, errs.DuplicateAccessKey, errs.DuplicateIdentifier:
		return http.StatusConflict
	case errs.AuthenticationFailure:
		return http.StatusUnauthorized
	case errs.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
