package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"bpm": 72})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["bpm"] != 72 {
		t.Errorf("bpm = %d, want 72", resp["bpm"])
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method not allowed", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no such record") }, http.StatusNotFound, "no such record"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "db closed") }, http.StatusInternalServerError, "db closed"},
		{"custom", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusBadRequest, "bad limit") }, http.StatusBadRequest, "bad limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.msg {
				t.Errorf("error = %q, want %q", resp["error"], tt.msg)
			}
		})
	}
}
