package powerbi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"reportexporter/internal/apperrors"
	"reportexporter/internal/export"
)

func testRequest() export.Request {
	return export.Request{
		ReportID:    "R1",
		WorkspaceID: "W1",
		Format:      export.FormatPNG,
		PageNames:   []string{"Overview", "Detail"},
		URLFilter:   "Table/Field eq 'value'",
	}
}

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url, AccessToken: "test-token"})
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody exportToRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"id":"E1"}`)
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if id != "E1" {
		t.Errorf("Expected handle E1, got %q", id)
	}
	if gotPath != "/groups/W1/reports/R1/ExportTo" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Unexpected Authorization header %q", gotAuth)
	}
	if gotBody.Format != "PNG" {
		t.Errorf("Expected format PNG, got %q", gotBody.Format)
	}
	if !reflect.DeepEqual(gotBody.PageNames, []string{"Overview", "Detail"}) {
		t.Errorf("Unexpected page names %v", gotBody.PageNames)
	}
	if gotBody.URLFilter != "Table/Field eq 'value'" {
		t.Errorf("Unexpected url filter %q", gotBody.URLFilter)
	}
}

func TestSubmit_OmitsEmptyOptionals(t *testing.T) {
	t.Parallel()

	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		fmt.Fprint(w, `{"id":"E1"}`)
	}))
	defer srv.Close()

	req := export.Request{ReportID: "R1", WorkspaceID: "W1", Format: export.FormatPDF}
	if _, err := newTestClient(srv.URL).Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, ok := raw["pageNames"]; ok {
		t.Error("Expected pageNames to be omitted when empty")
	}
	if _, ok := raw["urlFilter"]; ok {
		t.Error("Expected urlFilter to be omitted when empty")
	}
}

func TestSubmit_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, "", apperrors.ErrAuth},
		{"forbidden", http.StatusForbidden, "", apperrors.ErrAuth},
		{"too many requests", http.StatusTooManyRequests, `{"error":"TooManyRequests"}`, apperrors.ErrAPI},
		{"server error", http.StatusInternalServerError, "boom", apperrors.ErrAPI},
		{"missing id", http.StatusOK, `{}`, apperrors.ErrAPI},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Submit(context.Background(), testRequest())
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected %v, got %v", tt.sentinel, err)
			}
		})
	}
}

func TestSubmit_TransportFault(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestClient(srv.URL).Submit(context.Background(), testRequest())
	if !errors.Is(err, apperrors.ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{
			"id": "E1",
			"status": "Succeeded",
			"resourceLocation": "https://files.example.com/E1",
			"reportName": "Sales",
			"resourceFileExtension": ".png"
		}`)
	}))
	defer srv.Close()

	st, err := newTestClient(srv.URL).Status(context.Background(), testRequest(), "E1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	if gotPath != "/groups/W1/reports/R1/exports/E1" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if st.State != export.StateSucceeded {
		t.Errorf("Expected Succeeded, got %v", st.State)
	}
	if st.RetryAfter != 0 {
		t.Errorf("Expected no retry-after, got %v", st.RetryAfter)
	}
	if st.ResourceLocation != "https://files.example.com/E1" {
		t.Errorf("Unexpected resource location %q", st.ResourceLocation)
	}
	if st.ReportName != "Sales" || st.FileExtension != ".png" {
		t.Errorf("Unexpected name/extension %q/%q", st.ReportName, st.FileExtension)
	}
}

func TestStatus_FieldMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           string
		wantState      export.State
		wantRetryAfter time.Duration
	}{
		{"running, optionals absent", `{"id":"E1","status":"Running"}`, export.StateRunning, 0},
		{"unknown state normalizes to pending", `{"id":"E1","status":"NotStarted"}`, export.StatePending, 0},
		{"absent status normalizes to pending", `{"id":"E1"}`, export.StatePending, 0},
		{"failed with retry-after seconds", `{"id":"E1","status":"Failed","retryAfter":30}`, export.StateFailed, 30 * time.Second},
		{"failed without retry-after", `{"id":"E1","status":"Failed"}`, export.StateFailed, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			st, err := newTestClient(srv.URL).Status(context.Background(), testRequest(), "E1")
			if err != nil {
				t.Fatalf("Status failed: %v", err)
			}
			if st.State != tt.wantState {
				t.Errorf("State = %v, want %v", st.State, tt.wantState)
			}
			if st.RetryAfter != tt.wantRetryAfter {
				t.Errorf("RetryAfter = %v, want %v", st.RetryAfter, tt.wantRetryAfter)
			}
		})
	}
}

func TestStatus_Idempotent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"E1","status":"Succeeded","resourceLocation":"L","reportName":"Sales","resourceFileExtension":"png"}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	first, err := client.Status(context.Background(), testRequest(), "E1")
	if err != nil {
		t.Fatalf("First status failed: %v", err)
	}
	second, err := client.Status(context.Background(), testRequest(), "E1")
	if err != nil {
		t.Fatalf("Second status failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Repeated status returned different snapshots: %+v vs %+v", first, second)
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	content := make([]byte, 64*1024)
	for i := range content {
		content[i] = byte(i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Artifact fetch missing auth header, got %q", got)
		}
		w.Write(content)
	}))
	defer srv.Close()

	data, err := newTestClient(srv.URL).Download(context.Background(), srv.URL+"/files/E1")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(data) != len(content) {
		t.Fatalf("Expected %d bytes, got %d", len(content), len(data))
	}
	if !reflect.DeepEqual(data, content) {
		t.Error("Downloaded content does not match served content")
	}
}

func TestDownload_TruncatedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Claim more bytes than are sent, then cut the connection.
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Download(context.Background(), srv.URL)
	if !errors.Is(err, apperrors.ErrTransport) {
		t.Errorf("Expected ErrTransport for truncated body, got %v", err)
	}
}

func TestReports(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"value":[{"id":"R1","name":"Sales"},{"id":"R2","name":"Inventory"}]}`)
	}))
	defer srv.Close()

	reports, err := newTestClient(srv.URL).Reports(context.Background(), "W1")
	if err != nil {
		t.Fatalf("Reports failed: %v", err)
	}

	if gotPath != "/groups/W1/reports" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	want := []Report{{ID: "R1", Name: "Sales"}, {ID: "R2", Name: "Inventory"}}
	if !reflect.DeepEqual(reports, want) {
		t.Errorf("Reports = %v, want %v", reports, want)
	}
}

func TestReports_EmptyWorkspace(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	}))
	defer srv.Close()

	reports, err := newTestClient(srv.URL).Reports(context.Background(), "W1")
	if err != nil {
		t.Fatalf("Reports failed: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("Expected no reports, got %v", reports)
	}
}
