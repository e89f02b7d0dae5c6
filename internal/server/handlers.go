package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/orchestrator"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	// multipartMemory is how much of an upload is buffered in memory before
	// spilling to a temp file.
	multipartMemory = 8 << 20
	// maxJSONBody caps JSON request bodies.
	maxJSONBody = 1 << 20
)

// handleLoadURL handles POST /load/url.
func (s *Server) handleLoadURL(w http.ResponseWriter, r *http.Request) {
	var req loadURLRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	res, err := s.deps.Loader.LoadURL(r.Context(), req.URL)
	s.metrics.observeIngest(ingestion.KindURL, res.Chunks, err)
	if err != nil {
		s.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{Status: "success", Chunks: res.Chunks, Source: res.Source})
}

// handleLoadFile handles POST /load/file. The upload arrives in the
// multipart field "file"; the optional "file_type" field names the type
// when the filename has no usable extension.
func (s *Server) handleLoadFile(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	kind, err := ingestion.ResolveKind(header.Filename, r.FormValue("file_type"))
	if err != nil {
		s.metrics.observeIngest("unknown", 0, err)
		s.writeLoadError(w, r, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	res, err := s.deps.Loader.LoadFileKind(r.Context(), header.Filename, kind, data)
	s.metrics.observeIngest(kind, res.Chunks, err)
	if err != nil {
		s.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{Status: "success", Chunks: res.Chunks, Source: res.Source})
}

// handleQuery handles POST /query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := req.Question
	if strings.TrimSpace(question) == "" {
		question = req.Query
	}
	if strings.TrimSpace(question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}
	if t := req.ScoreThreshold; t != nil && (*t < 0 || *t > 1) {
		writeError(w, http.StatusBadRequest, "score_threshold must be within [0, 1]")
		return
	}

	res, err := s.deps.Answerer.Ask(r.Context(), orchestrator.Query{
		Text:      question,
		TopK:      req.TopK,
		Threshold: req.ScoreThreshold,
	})
	if err != nil {
		if errors.Is(err, rag.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.FromContext(r.Context()).Error("query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to answer query")
		return
	}
	writeJSON(w, http.StatusOK, res.Answer)
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Index.Size(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("status: size lookup failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to read index size")
		return
	}
	info := s.deps.Index.Info()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "OK",
		Collection: s.deps.Index.Name(),
		Chunks:     n,
		Backend:    info.Backend,
		Metric:     info.Metric,
		Structure:  info.Structure,
	})
}

// handleHistory handles GET /history?limit=n.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "query history is disabled")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history: read failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeLoadError maps a load failure to its status. Unsupported types and
// bad input are the caller's fault; too little text is a 422 since the
// request was well-formed.
func (s *Server) writeLoadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ingestion.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingestion.ErrInsufficientText):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, rag.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context()).Error("load failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to load document")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
