package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
	"github.com/sinhadeepak1115/MilTrack/internal/core/service"
	"github.com/sinhadeepak1115/MilTrack/internal/port"
	"github.com/sinhadeepak1115/MilTrack/internal/report"
)

// HTTPHandler is the presentation glue over the ledger core. It parses
// requests, reads the trusted identity headers supplied by the identity
// collaborator, and maps typed core errors onto HTTP statuses. No
// business logic lives here.
type HTTPHandler struct {
	processor  *service.TransactionProcessor
	reconciler *service.ReconciliationService
	ledger     port.LedgerStore
	audit      port.AuditLog
	catalog    port.Catalog
	log        *slog.Logger
}

func NewHTTPHandler(
	processor *service.TransactionProcessor,
	reconciler *service.ReconciliationService,
	ledger port.LedgerStore,
	audit port.AuditLog,
	catalog port.Catalog,
	log *slog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		processor:  processor,
		reconciler: reconciler,
		ledger:     ledger,
		audit:      audit,
		catalog:    catalog,
		log:        log,
	}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	// Go 1.21's ServeMux has no method patterns; dispatch on r.Method per
	// path to match the "METHOD /path" registrations this was written with.
	mux.HandleFunc("/health", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.HealthCheck,
	}))
	mux.HandleFunc("/api/logs", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.SubmitAction,
		http.MethodGet:  h.ListEntries,
	}))
	mux.HandleFunc("/api/logs/export", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.ExportEntries,
	}))
	mux.HandleFunc("/api/balance", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.GetBalance,
	}))
	mux.HandleFunc("/api/reconcile", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.Reconcile,
	}))
	mux.HandleFunc("/api/base", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.CreateBase,
		http.MethodGet:  h.ListBases,
	}))
	mux.HandleFunc("/api/asset", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.CreateAssetType,
		http.MethodGet:  h.ListAssetTypes,
	}))
}

func byMethod(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fn, ok := handlers[r.Method]; ok {
			fn(w, r)
			return
		}
		allow := make([]string, 0, len(handlers))
		for m := range handlers {
			allow = append(allow, m)
		}
		sort.Strings(allow)
		w.Header().Set("Allow", strings.Join(allow, ", "))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

type submitRequest struct {
	Action       string `json:"action"`
	AssetTypeID  string `json:"assetTypeId"`
	Quantity     int64  `json:"quantity"`
	SourceBaseID string `json:"sourceBaseId"`
	TargetBaseID string `json:"targetBaseId"`
	RefSequence  int64  `json:"refSequence"`
	Notes        string `json:"notes"`
	RequestID    string `json:"requestId"`
}

type entryDTO struct {
	Sequence     int64  `json:"sequence"`
	Kind         string `json:"kind"`
	AssetTypeID  string `json:"assetTypeId"`
	Quantity     int64  `json:"quantity"`
	SourceBaseID string `json:"sourceBaseId,omitempty"`
	TargetBaseID string `json:"targetBaseId,omitempty"`
	UserID       string `json:"userId"`
	Note         string `json:"note,omitempty"`
	RefSequence  int64  `json:"refSequence,omitempty"`
	CommittedAt  string `json:"committedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toEntryDTO(e domain.Entry) entryDTO {
	return entryDTO{
		Sequence:     e.Sequence,
		Kind:         string(e.Kind),
		AssetTypeID:  e.AssetTypeID,
		Quantity:     e.Quantity,
		SourceBaseID: e.SourceBaseID,
		TargetBaseID: e.TargetBaseID,
		UserID:       e.UserID,
		Note:         e.Note,
		RefSequence:  e.RefSequence,
		CommittedAt:  e.CommittedAt.Format(time.RFC3339),
	}
}

func (h *HTTPHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	user, ok := identityFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing identity"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	action := domain.Action{
		Kind:         domain.ActionKind(req.Action),
		AssetTypeID:  req.AssetTypeID,
		Quantity:     req.Quantity,
		SourceBaseID: req.SourceBaseID,
		TargetBaseID: req.TargetBaseID,
		RefSequence:  req.RefSequence,
		Note:         req.Notes,
		RequestID:    req.RequestID,
	}

	entry, err := h.processor.Submit(r.Context(), action, user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]entryDTO{"log": toEntryDTO(entry)})
}

func (h *HTTPHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	entries, err := h.audit.Range(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string][]entryDTO{"logs": dtos})
}

func (h *HTTPHandler) ExportEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	entries, err := h.audit.Range(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.xlsx"`)
	if err := report.WriteEntriesXLSX(w, entries); err != nil {
		h.log.Error("ledger export failed", "err", err)
	}
}

func (h *HTTPHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	baseID := r.URL.Query().Get("baseId")
	assetTypeID := r.URL.Query().Get("assetTypeId")
	if baseID == "" || assetTypeID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "baseId and assetTypeId are required"})
		return
	}

	quantity, version, err := h.ledger.GetBalance(r.Context(), baseID, assetTypeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance": map[string]any{
			"baseId":      baseID,
			"assetTypeId": assetTypeID,
			"quantity":    quantity,
			"version":     version,
		},
	})
}

func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	discrepancies, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	type discrepancyDTO struct {
		BaseID      string `json:"baseId"`
		AssetTypeID string `json:"assetTypeId"`
		Expected    int64  `json:"expectedQuantity"`
		Actual      int64  `json:"actualQuantity"`
	}
	dtos := make([]discrepancyDTO, 0, len(discrepancies))
	for _, d := range discrepancies {
		dtos = append(dtos, discrepancyDTO{d.BaseID, d.AssetTypeID, d.Expected, d.Actual})
	}
	writeJSON(w, http.StatusOK, map[string]any{"discrepancies": dtos})
}

func (h *HTTPHandler) CreateBase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Location == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name and location are required"})
		return
	}

	base, err := h.catalog.CreateBase(r.Context(), req.Name, req.Location)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]domain.Base{"base": base})
}

func (h *HTTPHandler) ListBases(w http.ResponseWriter, r *http.Request) {
	bases, err := h.catalog.ListBases(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Base{"base": bases})
}

func (h *HTTPHandler) CreateAssetType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	assetType, err := h.catalog.CreateAssetType(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]domain.AssetType{"asset": assetType})
}

func (h *HTTPHandler) ListAssetTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.ListAssetTypes(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.AssetType{"assets": types})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identityFromRequest reads the authenticated identity tuple the identity
// collaborator forwards on every request. The core trusts these values.
func identityFromRequest(r *http.Request) (domain.User, bool) {
	user := domain.User{
		ID:         r.Header.Get("X-User-Id"),
		Role:       domain.Role(r.Header.Get("X-User-Role")),
		HomeBaseID: r.Header.Get("X-Base-Id"),
	}
	if user.ID == "" || user.Role == "" {
		return domain.User{}, false
	}
	return user, true
}

func filterFromQuery(r *http.Request) (domain.EntryFilter, error) {
	filter := domain.EntryFilter{BaseID: r.URL.Query().Get("baseId")}
	for _, bound := range []struct {
		name string
		dst  *int64
	}{
		{"fromSeq", &filter.FromSeq},
		{"toSeq", &filter.ToSeq},
	} {
		raw := r.URL.Query().Get(bound.name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return domain.EntryFilter{}, errors.New(bound.name + " must be a non-negative integer")
		}
		*bound.dst = n
	}
	return filter, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrDuplicateRequest):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTransactionTimeout):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCommitFailed):
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
