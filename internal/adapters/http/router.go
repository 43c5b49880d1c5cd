package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
	"github.com/Whisker2257/casa/internal/observability/metrics"
)

const serviceName = "api"

// defaultMaxUploadBytes bounds multipart uploads. Large papers are fine;
// this guards against unbounded bodies, not legitimate documents.
const defaultMaxUploadBytes = 128 << 20

type Router struct {
	uploader   ports.Uploader
	store      ports.ObjectStore
	files      ports.FileRepository
	chunker    ports.Chunker
	indexer    ports.DocumentIndexer
	qa         ports.QuestionAnswerer
	summarizer ports.Summarizer
	comparator ports.Comparator
	metrics    *metrics.HTTPServerMetrics

	maxUploadBytes int64
}

func NewRouter(
	uploader ports.Uploader,
	store ports.ObjectStore,
	files ports.FileRepository,
	chunker ports.Chunker,
	indexer ports.DocumentIndexer,
	qa ports.QuestionAnswerer,
	summarizer ports.Summarizer,
	comparator ports.Comparator,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		uploader:   uploader,
		store:      store,
		files:      files,
		chunker:    chunker,
		indexer:    indexer,
		qa:         qa,
		summarizer: summarizer,
		comparator: comparator,
		metrics:    m,

		maxUploadBytes: defaultMaxUploadBytes,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.metrics.Handler())

	mux.HandleFunc("POST /v1/projects/{projectID}/files", rt.uploadFile)
	mux.HandleFunc("GET /v1/projects/{projectID}/files", rt.getFiles)
	mux.HandleFunc("GET /v1/projects/{projectID}/files/status", rt.fileStatus)
	mux.HandleFunc("GET /v1/projects/{projectID}/chunk", rt.chunkFile)
	mux.HandleFunc("POST /v1/projects/{projectID}/index", rt.indexPaths)
	mux.HandleFunc("POST /v1/projects/{projectID}/qa", rt.answerQuestion)
	mux.HandleFunc("POST /v1/projects/{projectID}/summarize", rt.summarize)
	mux.HandleFunc("POST /v1/projects/{projectID}/summarize/batch", rt.summarizeBatch)
	mux.HandleFunc("POST /v1/projects/{projectID}/compare", rt.compare)

	var handler http.Handler = mux
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadFile(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	if err := r.ParseMultipartForm(rt.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	path := strings.TrimSpace(r.FormValue("path"))
	if path == "" {
		path = header.Filename
	}

	// Read one byte past the cap so an oversize body is rejected instead
	// of silently truncated.
	data, err := io.ReadAll(io.LimitReader(file, rt.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("read upload body"))
		return
	}
	if int64(len(data)) > rt.maxUploadBytes {
		err := domain.WrapError(domain.ErrSizeLimitExceeded, "upload",
			fmt.Errorf("file exceeds %d bytes", rt.maxUploadBytes))
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}

	stored, err := rt.uploader.Upload(r.Context(), projectID, path, data)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, stored)
}

// getFiles serves either one file's bytes (?path=...) or a listing of the
// project prefix. Chunk-cache artifacts stay hidden unless
// includeInternal=true.
func (rt *Router) getFiles(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	if path := r.URL.Query().Get("path"); path != "" {
		data, err := rt.store.Read(r.Context(), domain.ObjectKey(projectID, path))
		if err != nil {
			writeError(w, mapErrorToHTTPStatus(err), err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
		return
	}

	prefix := domain.ObjectKey(projectID, r.URL.Query().Get("prefix"))
	includeInternal := r.URL.Query().Get("includeInternal") == "true"

	var entries []domain.ObjectEntry
	var err error
	if r.URL.Query().Get("recursive") == "true" {
		entries, err = rt.store.ListRecursive(r.Context(), prefix, includeInternal)
	} else {
		entries, err = rt.store.List(r.Context(), prefix)
	}
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (rt *Router) fileStatus(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, errors.New("query parameter 'path' is required"))
		return
	}

	file, err := rt.files.GetByPath(r.Context(), projectID, path)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (rt *Router) chunkFile(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	q := r.URL.Query()

	path := q.Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, errors.New("query parameter 'path' is required"))
		return
	}

	params := domain.ChunkParams{
		ChunkSize: queryInt(q.Get("size")),
		Overlap:   queryInt(q.Get("overlap")),
	}

	chunks, err := rt.chunker.ChunkFile(r.Context(), projectID, path, params)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (rt *Router) indexPaths(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}

	indexed, err := rt.indexer.IndexPaths(r.Context(), projectID, req.Paths)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	rt.metrics.RecordIndexedChunks(serviceName, indexed)
	writeJSON(w, http.StatusOK, map[string]int{"indexed": indexed})
}

func (rt *Router) answerQuestion(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	var req struct {
		Path     string `json:"path"`
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
		Force    bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}

	start := time.Now()
	if wantsStream(r) {
		stream := newStreamWriter(w, r)
		_, err := rt.qa.Answer(r.Context(), projectID, req.Path, req.Question, req.TopK, req.Force, stream)
		if err != nil {
			rt.metrics.RecordQARequest(serviceName, "error", time.Since(start))
			stream.Error(err)
			return
		}
		rt.metrics.RecordQARequest(serviceName, "ok", time.Since(start))
		stream.Done()
		return
	}

	answer, err := rt.qa.Answer(r.Context(), projectID, req.Path, req.Question, req.TopK, req.Force, nil)
	if err != nil {
		rt.metrics.RecordQARequest(serviceName, "error", time.Since(start))
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	rt.metrics.RecordQARequest(serviceName, "ok", time.Since(start))
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (rt *Router) summarize(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	var req struct {
		Path  string `json:"path"`
		Force bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}

	start := time.Now()
	summary, err := rt.summarizer.Summarize(r.Context(), projectID, req.Path, req.Force)
	if err != nil {
		rt.metrics.RecordSummary(serviceName, "document", "error", time.Since(start))
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	rt.metrics.RecordSummary(serviceName, "document", "ok", time.Since(start))
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (rt *Router) summarizeBatch(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	var req struct {
		Paths []string `json:"paths"`
		Force bool     `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}

	start := time.Now()
	results, err := rt.summarizer.SummarizeMany(r.Context(), projectID, req.Paths, req.Force)
	if err != nil {
		rt.metrics.RecordSummary(serviceName, "batch", "error", time.Since(start))
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	rt.metrics.RecordSummary(serviceName, "batch", "ok", time.Since(start))
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) compare(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	var req struct {
		Paths []string `json:"paths"`
		Focus string   `json:"focus"`
		Force bool     `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}

	mode := "summary"
	if strings.TrimSpace(req.Focus) != "" {
		mode = "focus"
	}

	start := time.Now()
	stream := newStreamWriter(w, r)
	err := rt.comparator.Compare(r.Context(), ports.CompareRequest{
		ProjectID: projectID,
		Paths:     req.Paths,
		Focus:     req.Focus,
		Force:     req.Force,
	}, stream)
	if err != nil {
		rt.metrics.RecordCompare(serviceName, mode, "error", time.Since(start))
		stream.Error(err)
		return
	}
	rt.metrics.RecordCompare(serviceName, mode, "ok", time.Since(start))
	stream.Done()
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// queryInt returns -1 for an absent or malformed value so chunk params
// fall back to their defaults. An explicit 0 passes through; overlap
// keeps it, while chunk size treats any non-positive value as unset.
func queryInt(raw string) int {
	if raw == "" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
