package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/vitos/deribit_gateway/internal/app"
	"github.com/vitos/deribit_gateway/internal/domain"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.gateway.Operations())
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	args, err := decodeArgs(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	out := s.gateway.Invoke(r.Context(), name, args)
	status := statusFor(out)
	if status != http.StatusOK {
		s.logger.Info("operation failed",
			zap.String("operation", name),
			zap.Int("status", status),
			zap.String("kind", string(out.Error.Kind)),
			zap.String("reason", out.Error.Reason),
		)
	}
	s.respondJSON(w, status, out)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.gateway.Journal(r.Context(), limit)
	if errors.Is(err, app.ErrJournalDisabled) {
		s.respondError(w, http.StatusNotFound, "journal_disabled", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("Failed to list journal", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "journal_error", "failed to list journal")
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.gateway.Status())
}

// decodeArgs reads a JSON object of operation arguments. Numbers stay
// json.Number so decimals keep every digit. An empty body means no arguments.
func decodeArgs(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return args, nil
}

// statusFor maps an outcome's error tag onto an HTTP status.
func statusFor(out domain.Outcome) int {
	if out.Error == nil {
		return http.StatusOK
	}
	switch out.Error.Kind {
	case domain.KindValidation:
		if out.Error.Reason == domain.ReasonUnknownOperation {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindTransport:
		if out.Error.Reason == domain.ReasonTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{Error: code, Message: message})
}
