package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sinhadeepak1115/MilTrack/internal/adapter/lock"
	"github.com/sinhadeepak1115/MilTrack/internal/adapter/storage"
	"github.com/sinhadeepak1115/MilTrack/internal/core/service"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryAdapter) {
	t.Helper()
	store := storage.NewMemoryAdapter()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	processor := service.NewTransactionProcessor(store, store, store, lock.NewMemoryLocker(), log)
	reconciler := service.NewReconciliationService(store, store)

	mux := http.NewServeMux()
	NewHTTPHandler(processor, reconciler, store, store, store, log).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, headers map[string]string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func adminHeaders(baseID string) map[string]string {
	return map[string]string{
		"X-User-Id":   "u-admin",
		"X-User-Role": "ADMIN",
		"X-Base-Id":   baseID,
	}
}

func createFixtures(t *testing.T, srv *httptest.Server) (baseA, baseB, rifle string) {
	t.Helper()
	for _, fixture := range []struct {
		name string
		dst  *string
	}{
		{"Base Alpha", &baseA},
		{"Base Bravo", &baseB},
	} {
		resp, payload := doJSON(t, srv, http.MethodPost, "/api/base", nil,
			map[string]string{"name": fixture.name, "location": "somewhere"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create base: status %d", resp.StatusCode)
		}
		var base struct {
			ID string `json:"ID"`
		}
		if err := json.Unmarshal(payload["base"], &base); err != nil {
			t.Fatalf("decode base: %v", err)
		}
		*fixture.dst = base.ID
	}

	resp, payload := doJSON(t, srv, http.MethodPost, "/api/asset", nil, map[string]string{"name": "rifle"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create asset type: status %d", resp.StatusCode)
	}
	var assetType struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(payload["asset"], &assetType); err != nil {
		t.Fatalf("decode asset type: %v", err)
	}
	return baseA, baseB, assetType.ID
}

func TestSubmitEndpoint_RequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/logs", nil, map[string]any{
		"action": "ACQUIRE", "assetTypeId": "x", "quantity": 1, "targetBaseId": "y",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestSubmitEndpoint_CommitsAndLists(t *testing.T) {
	srv, _ := newTestServer(t)
	baseA, _, rifle := createFixtures(t, srv)

	resp, payload := doJSON(t, srv, http.MethodPost, "/api/logs", adminHeaders(baseA), map[string]any{
		"action":       "ACQUIRE",
		"assetTypeId":  rifle,
		"quantity":     1000,
		"targetBaseId": baseA,
		"notes":        "initial stock",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", resp.StatusCode, payload["error"])
	}
	var entry entryDTO
	if err := json.Unmarshal(payload["log"], &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Sequence != 1 || entry.Kind != "ACQUIRE" || entry.Quantity != 1000 {
		t.Errorf("unexpected entry: %+v", entry)
	}

	resp, payload = doJSON(t, srv, http.MethodGet,
		fmt.Sprintf("/api/balance?baseId=%s&assetTypeId=%s", baseA, rifle), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance: status %d", resp.StatusCode)
	}
	var balance struct {
		Quantity int64 `json:"quantity"`
		Version  int64 `json:"version"`
	}
	if err := json.Unmarshal(payload["balance"], &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Quantity != 1000 || balance.Version != 1 {
		t.Errorf("expected 1000/v1, got %+v", balance)
	}

	resp, payload = doJSON(t, srv, http.MethodGet, "/api/logs", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logs: status %d", resp.StatusCode)
	}
	var logs []entryDTO
	if err := json.Unmarshal(payload["logs"], &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("expected one log entry, got %d", len(logs))
	}
}

func TestSubmitEndpoint_ErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	baseA, baseB, rifle := createFixtures(t, srv)

	// Insufficient balance surfaces as a conflict, not a silent clamp.
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/logs", adminHeaders(baseA), map[string]any{
		"action": "EXPEND", "assetTypeId": rifle, "quantity": 5, "sourceBaseId": baseA,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for insufficient balance, got %d", resp.StatusCode)
	}

	// Cross-base expend by LOGISTICS is forbidden.
	logisticsAtA := map[string]string{"X-User-Id": "u-log", "X-User-Role": "LOGISTICS", "X-Base-Id": baseA}
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/logs", logisticsAtA, map[string]any{
		"action": "EXPEND", "assetTypeId": rifle, "quantity": 1, "sourceBaseId": baseB,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for cross-base action, got %d", resp.StatusCode)
	}

	// Malformed action is a bad request.
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/logs", adminHeaders(baseA), map[string]any{
		"action": "ACQUIRE", "assetTypeId": rifle, "quantity": 0, "targetBaseId": baseA,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for zero quantity, got %d", resp.StatusCode)
	}
}

func TestReconcileEndpoint_Clean(t *testing.T) {
	srv, _ := newTestServer(t)
	baseA, baseB, rifle := createFixtures(t, srv)

	for _, body := range []map[string]any{
		{"action": "ACQUIRE", "assetTypeId": rifle, "quantity": 10, "targetBaseId": baseA},
		{"action": "TRANSFER", "assetTypeId": rifle, "quantity": 4, "sourceBaseId": baseA, "targetBaseId": baseB},
	} {
		resp, payload := doJSON(t, srv, http.MethodPost, "/api/logs", adminHeaders(baseA), body)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submit: status %d (%s)", resp.StatusCode, payload["error"])
		}
	}

	resp, payload := doJSON(t, srv, http.MethodPost, "/api/reconcile", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reconcile: status %d", resp.StatusCode)
	}
	var discrepancies []any
	if err := json.Unmarshal(payload["discrepancies"], &discrepancies); err != nil {
		t.Fatalf("decode discrepancies: %v", err)
	}
	if len(discrepancies) != 0 {
		t.Errorf("expected clean reconciliation, got %v", discrepancies)
	}
}

func TestExportEndpoint_ReturnsWorkbook(t *testing.T) {
	srv, _ := newTestServer(t)
	baseA, _, rifle := createFixtures(t, srv)

	resp, payload := doJSON(t, srv, http.MethodPost, "/api/logs", adminHeaders(baseA), map[string]any{
		"action": "ACQUIRE", "assetTypeId": rifle, "quantity": 7, "targetBaseId": baseA,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: status %d (%s)", resp.StatusCode, payload["error"])
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/logs/export", nil)
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("export request: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("export: status %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("unexpected content type %q", ct)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body) == 0 {
		t.Error("expected non-empty workbook")
	}
}
