package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GalM111/csv-service/internal/importer"
	"github.com/GalM111/csv-service/internal/logging"
)

// jobDetail is the full job view: the progress snapshot plus the retained
// error records.
type jobDetail struct {
	importer.ProgressSnapshot
	Errors []importer.RowError `json:"errors"`
}

func toDetail(job *importer.Job) jobDetail {
	errs := job.Errors
	if errs == nil {
		errs = []importer.RowError{}
	}
	return jobDetail{ProgressSnapshot: job.Snapshot(), Errors: errs}
}

// handleSubmit accepts a multipart CSV upload, spools it to a temp file, and
// queues an import job. Responds 202 with the job ID; processing happens
// asynchronously.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", s.cfg.Import.MaxFileSize))
			return
		}
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		writeError(w, r, http.StatusBadRequest, "only CSV files are accepted")
		return
	}

	tmp, err := os.CreateTemp(s.cfg.Import.TempDir, "import-*.csv")
	if err != nil {
		logger.Error("temp file creation failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to store upload")
		return
	}

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", s.cfg.Import.MaxFileSize))
			return
		}
		logger.Error("upload spool failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		logger.Error("temp file close failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to store upload")
		return
	}

	jobID, err := s.service.Submit(r.Context(), header.Filename, tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		logger.Error("job submission failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to create import job")
		return
	}

	logger.Info("import queued", "job_id", jobID, "file", header.Filename)
	writeJSON(w, r, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// handleListJobs returns all jobs, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.Jobs(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("job listing failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	out := make([]jobDetail, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toDetail(job))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleGetJob returns one job with its retained error records.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.service.Job(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, importer.ErrJobNotFound) {
			writeError(w, r, http.StatusNotFound, "job not found")
			return
		}
		logging.FromContext(r.Context()).Error("job lookup failed", "job_id", jobID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, r, http.StatusOK, toDetail(job))
}

// handleJobEvents streams job progress via Server-Sent Events. Subscribers of
// an already-finished job receive a single done event. The stream closes
// after the done event, on client disconnect, or never on its own; idle
// periods are bridged with keep-alive comments.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	logger := logging.WithFields(r.Context(), "job_id", jobID)

	obs, err := s.service.Subscribe(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, importer.ErrJobNotFound) {
			writeError(w, r, http.StatusNotFound, "job not found")
			return
		}
		logger.Error("subscribe failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer s.service.Unsubscribe(jobID, obs)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(s.cfg.Import.KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case ev, open := <-obs.Events():
			if !open {
				return
			}

			data, err := json.Marshal(ev.Payload)
			if err != nil {
				logger.Error("event encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()

			if ev.Kind == importer.EventDone {
				return
			}

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleErrorReport renders the job's error records as a downloadable CSV.
func (s *Server) handleErrorReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	data, filename, err := s.service.ErrorReport(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, importer.ErrJobNotFound) {
			writeError(w, r, http.StatusNotFound, "job not found")
			return
		}
		logging.FromContext(r.Context()).Error("report build failed", "job_id", jobID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to build report")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}
