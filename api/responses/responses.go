package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/convertflow/pkg/errors"
	"github.com/angelmondragon/convertflow/pkg/logger"
)

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

var statusByCode = map[pkgerrors.Code]int{
	pkgerrors.CodeValidation:    http.StatusBadRequest,
	pkgerrors.CodeNotFound:      http.StatusNotFound,
	pkgerrors.CodeConflict:      http.StatusConflict,
	pkgerrors.CodeStateConflict: http.StatusConflict,
	pkgerrors.CodeInvariant:     http.StatusInternalServerError,
	pkgerrors.CodeInternal:      http.StatusInternalServerError,
	pkgerrors.CodeDependency:    http.StatusServiceUnavailable,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	status, ok := statusByCode[typed.Code()]
	if !ok {
		status = http.StatusInternalServerError
	}

	payload := ErrorEnvelope{
		Error: APIError{
			Code:    string(typed.Code()),
			Message: pkgerrors.MetadataFor(typed.Code()).Description,
			Details: typed.Details(),
		},
	}
	if typed.Code() != pkgerrors.CodeInternal && typed.Message() != "" {
		payload.Error.Message = typed.Message()
	}

	if logg != nil {
		logg.Error(logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "request.error", err)
	}

	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
