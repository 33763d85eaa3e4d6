package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/chunkgate/internal/config"
	"github.com/dgallion1/chunkgate/internal/parser"
	"github.com/dgallion1/chunkgate/internal/pipeline"
	"github.com/dgallion1/chunkgate/internal/record"
)

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	strategy := r.FormValue("strategy")
	if strategy == "" {
		strategy = config.DefaultStrategy
	}
	if !slices.Contains(config.StrategyNames, strategy) {
		jsonError(w, fmt.Sprintf("unknown strategy %q", strategy), http.StatusBadRequest)
		return
	}
	force, err := formBool(r, "force", false)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	resume, err := formBool(r, "resume", true)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The parser picks its format from the extension, so the spooled copy keeps it.
	path, hash, err := spool(file, filepath.Ext(filename), s.cfg.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		s.log.Error("spool upload failed", "error", err)
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	docID := r.FormValue("doc_id")
	if docID == "" {
		docID = fmt.Sprintf("%016x", hash)
	}
	if s.orchestrator.Active(docID) {
		os.Remove(path)
		jsonError(w, fmt.Sprintf("document %s is already being processed", docID), http.StatusConflict)
		return
	}

	job := pipeline.NewJob(docID, filename, path)
	job.Strategy = strategy
	job.Force = force
	job.Resume = resume

	if err := s.orchestrator.Submit(job); err != nil {
		os.Remove(path)
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"doc_id":   job.DocID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/runs/%s/status", job.ID),
	})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if !s.orchestrator.StopJob(jobID) {
		jsonError(w, "job already finished", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   jobID,
		"stopping": true,
	})
}

var errTooLarge = errors.New("upload too large")

// spool copies an upload to a temp file, hashing it on the way.
func spool(r io.Reader, ext string, limit int64) (string, uint64, error) {
	tmp, err := os.CreateTemp("", "chunkgate-upload-*"+ext)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	h := record.NewHasher()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(r, limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = errTooLarge
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	return tmp.Name(), h.Sum64(), nil
}

func formBool(r *http.Request, key string, fallback bool) (bool, error) {
	v := r.FormValue(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
