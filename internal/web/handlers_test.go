package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GalM111/csv-service/internal/config"
	"github.com/GalM111/csv-service/internal/importer"
	"github.com/GalM111/csv-service/internal/store"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Import: config.ImportConfig{
			MaxFileSize:       1 << 20,
			TempDir:           t.TempDir(),
			ProgressInterval:  50,
			MaxRetainedErrors: 50,
			JobTimeout:        time.Minute,
			KeepAliveInterval: 15 * time.Second,
		},
		Rate: config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *store.MemoryJobStore) {
	t.Helper()
	jobs := store.NewMemoryJobStore()
	svc := importer.NewService(jobs, store.NewMemoryCustomerStore(), importer.ServiceConfig{})
	return NewServer(svc, &fakePinger{}, cfg), jobs
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.WriteString(fw, content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv, _ := newTestServer(t, testConfig(t))

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("database down", func(t *testing.T) {
		cfg := testConfig(t)
		svc := importer.NewService(store.NewMemoryJobStore(), store.NewMemoryCustomerStore(), importer.ServiceConfig{})
		srv := NewServer(svc, &fakePinger{err: errors.New("refused")}, cfg)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestHandleSubmit(t *testing.T) {
	t.Run("accepts csv upload", func(t *testing.T) {
		srv, jobs := newTestServer(t, testConfig(t))

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, uploadRequest(t, "customers.csv", "name,email,phone,company\n"))

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		jobID := resp["jobId"]
		if jobID == "" {
			t.Fatal("response missing jobId")
		}

		job, err := jobs.FindByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("job not persisted: %v", err)
		}
		// The worker is not running in this test, so the job stays pending.
		if job.Status != importer.StatusPending {
			t.Errorf("status = %q, want pending", job.Status)
		}
		if job.Filename != "customers.csv" {
			t.Errorf("filename = %q, want customers.csv", job.Filename)
		}
	})

	t.Run("rejects missing file field", func(t *testing.T) {
		srv, _ := newTestServer(t, testConfig(t))

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("other", "value")
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/imports/", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("rejects non-csv extension", func(t *testing.T) {
		srv, _ := newTestServer(t, testConfig(t))

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, uploadRequest(t, "customers.xlsx", "not a csv"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("rejects oversized upload", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Import.MaxFileSize = 64
		srv, _ := newTestServer(t, cfg)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, uploadRequest(t, "big.csv", strings.Repeat("x", 4096)))

		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})
}

func TestHandleGetJob(t *testing.T) {
	srv, jobs := newTestServer(t, testConfig(t))

	jobs.Create(context.Background(), &importer.Job{
		ID:           "job-1",
		Filename:     "customers.csv",
		Status:       importer.StatusCompleted,
		TotalRows:    10,
		SuccessCount: 9,
		FailedCount:  1,
		Errors: []importer.RowError{
			{Row: 4, Message: "email is invalid", Payload: importer.RowPayload{"email": "x"}},
		},
		CreatedAt: time.Now(),
	})

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/job-1", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var detail struct {
			JobID        string              `json:"jobId"`
			Status       string              `json:"status"`
			SuccessCount int                 `json:"successCount"`
			Errors       []importer.RowError `json:"errors"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if detail.JobID != "job-1" || detail.Status != "completed" || detail.SuccessCount != 9 {
			t.Errorf("detail = %+v", detail)
		}
		if len(detail.Errors) != 1 || detail.Errors[0].Row != 4 {
			t.Errorf("errors = %+v, want one row-4 record", detail.Errors)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/nope", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHandleListJobs(t *testing.T) {
	srv, jobs := newTestServer(t, testConfig(t))

	jobs.Create(context.Background(), &importer.Job{ID: "a", CreatedAt: time.Now().Add(-time.Minute), Status: importer.StatusCompleted})
	jobs.Create(context.Background(), &importer.Job{ID: "b", CreatedAt: time.Now(), Status: importer.StatusPending})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var list []struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list) != 2 || list[0].JobID != "b" || list[1].JobID != "a" {
		t.Errorf("list = %+v, want [b a]", list)
	}
}

func TestHandleJobEventsTerminalJob(t *testing.T) {
	srv, jobs := newTestServer(t, testConfig(t))

	jobs.Create(context.Background(), &importer.Job{
		ID:        "job-1",
		Status:    importer.StatusFailed,
		CreatedAt: time.Now(),
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/job-1/events", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: done") {
		t.Errorf("body missing done event:\n%s", body)
	}
	if !strings.Contains(body, `"status":"failed"`) {
		t.Errorf("body missing failed status:\n%s", body)
	}
}

func TestHandleJobEventsUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/nope/events", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleErrorReport(t *testing.T) {
	srv, jobs := newTestServer(t, testConfig(t))

	jobs.Create(context.Background(), &importer.Job{
		ID:        "job-1",
		Filename:  "customers.csv",
		Status:    importer.StatusCompleted,
		CreatedAt: time.Now(),
		Errors: []importer.RowError{
			{Row: 2, Message: "company is required", Payload: importer.RowPayload{"name": "Ada", "email": "ada@example.com"}},
		},
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/job-1/report", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "customers_errors.csv") {
		t.Errorf("content disposition = %q", cd)
	}

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus one row", len(lines))
	}
	if lines[0] != "rowNumber,name,email,phone,company,error" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2,Ada,ada@example.com,,,company is required" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestSubmitRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate = config.RateLimitConfig{Enabled: true, SubmitPerMinute: 1}
	srv, _ := newTestServer(t, cfg)

	first := httptest.NewRecorder()
	srv.Router().ServeHTTP(first, uploadRequest(t, "a.csv", "name,email,phone,company\n"))
	if first.Code != http.StatusAccepted {
		t.Fatalf("first submit status = %d, want 202", first.Code)
	}

	second := httptest.NewRecorder()
	srv.Router().ServeHTTP(second, uploadRequest(t, "b.csv", "name,email,phone,company\n"))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second submit status = %d, want 429", second.Code)
	}

	// Reads are not rate limited.
	list := httptest.NewRecorder()
	srv.Router().ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/imports/", nil))
	if list.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200", list.Code)
	}
}
