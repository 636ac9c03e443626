package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/josinaldojr/compliance-assistant/internal/assistant"
	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

// TenantHeader carries the firm id, set by the authenticating edge.
const TenantHeader = "X-Firm-ID"

const (
	defaultAskTimeout = 45 * time.Second
	maxBodyBytes      = 1 << 20
)

// AssistantService is what the handlers need from the assistant.
type AssistantService interface {
	Ask(ctx context.Context, tenantID string, req assistant.AskRequest) (*assistant.AskResponse, error)
	Sources(ctx context.Context, tenantID string, limit int) ([]rag.Excerpt, error)
	CreateSource(ctx context.Context, tenantID string, in assistant.SourceInput) (*rag.Excerpt, error)
	DeleteSources(ctx context.Context, tenantID, provenance string) (int64, error)
}

type Handler struct {
	svc        AssistantService
	askTimeout time.Duration
	logger     *zap.Logger
}

func NewHandler(svc AssistantService, askTimeout time.Duration, logger *zap.Logger) *Handler {
	if askTimeout <= 0 {
		askTimeout = defaultAskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, askTimeout: askTimeout, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req assistant.AskRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.askTimeout)
	defer cancel()

	resp, err := h.svc.Ask(ctx, tenant, req)
	if err != nil {
		h.fail(w, r, tenant, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, string(assistant.ReasonInvalidRequest))
			return
		}
		limit = n
	}

	sources, err := h.svc.Sources(r.Context(), tenant, limit)
	if err != nil {
		h.fail(w, r, tenant, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var in assistant.SourceInput
	if !decode(w, r, &in) {
		return
	}

	e, err := h.svc.CreateSource(r.Context(), tenant, in)
	if err != nil {
		h.fail(w, r, tenant, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) DeleteSources(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	n, err := h.svc.DeleteSources(r.Context(), tenant, r.URL.Query().Get("provenance"))
	if err != nil {
		h.fail(w, r, tenant, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// fail logs the full error and sends only the reason.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, tenant string, err error) {
	reason := assistant.ReasonOf(err)
	status := statusFor(reason)
	if errors.Is(err, context.DeadlineExceeded) {
		reason, status = assistant.ReasonUnavailable, http.StatusGatewayTimeout
	}

	log := h.logger.Warn
	if status >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log("request failed",
		zap.String("path", r.URL.Path),
		zap.String("tenant_id", tenant),
		zap.String("reason", string(reason)),
		zap.Error(err))

	writeError(w, status, string(reason))
}

func statusFor(reason assistant.Reason) int {
	switch reason {
	case assistant.ReasonInvalidRequest:
		return http.StatusBadRequest
	case assistant.ReasonFirmNotFound:
		return http.StatusNotFound
	case assistant.ReasonNotConfigured:
		return http.StatusServiceUnavailable
	case assistant.ReasonUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	t := strings.TrimSpace(r.Header.Get(TenantHeader))
	if t == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return t, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(assistant.ReasonInvalidRequest))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
