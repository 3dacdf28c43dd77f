package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/docurl"
	"github.com/hyperjump/podsearch/internal/federation"
	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/storage"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

type jsonList struct {
	List any `json:"json_list"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, jsonList{List: s.engine.Languages()})
}

func (s *Server) handleSignature(w http.ResponseWriter, r *http.Request) {
	sig, err := s.engine.Signature(chi.URLParam(r, "lang"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sig)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	in := s.config.Instance
	s.respondJSON(w, http.StatusOK, models.InstanceInfo{
		URL:          in.SiteURL,
		SiteName:     in.SiteName,
		SiteTopic:    in.SiteTopic,
		Organization: in.Organization,
	})
}

// handlePeerSearch answers a peer's query from the local pods only.
func (s *Server) handlePeerSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	s.logger.Debug("peer search request", zap.String("query", q), zap.String("remote", r.RemoteAddr))
	resp, err := s.engine.LocalSearch(r.Context(), q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	records := make(map[string]*federation.Record, len(resp.Results))
	for _, res := range resp.Results {
		score := res.Score
		records[res.URL] = &federation.Record{
			URL:         res.URL,
			Title:       res.Title,
			Snippet:     res.Snippet,
			Doctype:     res.Doctype,
			Pod:         res.Pod,
			Score:       &score,
			Contributor: res.Contributor,
			Notes:       res.Notes,
		}
	}
	s.respondJSON(w, http.StatusOK, jsonList{List: records})
}

// handleContent serves the stored text of a local document to peers.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		s.respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !docurl.IsLocal(u) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	doc, err := s.catalog.GetDocumentByURL(r.Context(), u)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc.Body)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	local, _ := strconv.ParseBool(r.URL.Query().Get("local"))
	s.logger.Debug("search request", zap.String("query", q), zap.Bool("local", local))
	search := s.engine.Search
	if local {
		search = s.engine.LocalSearch
	}
	resp, err := search(r.Context(), q)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleIndex accepts one index request or a JSON array of them.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var reqs []*models.IndexRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s.logger.Debug("index batch request", zap.Int("items", len(reqs)))
		s.respondJSON(w, http.StatusOK, s.indexer.IndexBatch(r.Context(), reqs))
		return
	}

	var req models.IndexRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index request", zap.String("url", req.URL), zap.String("theme", req.Theme))
	out := s.indexer.Index(r.Context(), &req)
	if !out.Indexed() {
		status := http.StatusUnprocessableEntity
		if out.Err != nil {
			status = apperrors.HTTPStatusCode(out.Err)
		}
		s.respondJSON(w, status, out)
		return
	}
	s.respondJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		s.respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	s.logger.Debug("delete document request", zap.String("url", u))
	if err := s.indexer.DeleteURL(r.Context(), u); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"url": u, "status": "deleted"})
}

func (s *Server) handlePods(w http.ResponseWriter, r *http.Request) {
	pods, err := s.catalog.ListPods(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.recordPods(pods)
	s.respondJSON(w, http.StatusOK, map[string]any{"pods": pods})
}

type renamePodRequest struct {
	models.PodKey
	NewTheme string `json:"new_theme"`
}

func (s *Server) handleRenamePod(w http.ResponseWriter, r *http.Request) {
	var req renamePodRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NewTheme == "" {
		s.respondError(w, http.StatusBadRequest, "new_theme is required")
		return
	}
	if err := s.indexer.RenamePod(r.Context(), req.PodKey, req.NewTheme); err != nil {
		s.respondErr(w, err)
		return
	}
	renamed := req.PodKey
	renamed.Theme = req.NewTheme
	s.respondJSON(w, http.StatusOK, map[string]string{"pod": renamed.Name(), "status": "renamed"})
}

func (s *Server) handleDeletePod(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := models.PodKey{Theme: q.Get("theme"), Language: q.Get("language"), Contributor: q.Get("contributor")}
	if key.Theme == "" || key.Language == "" || key.Contributor == "" {
		s.respondError(w, http.StatusBadRequest, "theme, language and contributor are required")
		return
	}
	n, err := s.indexer.DeletePod(r.Context(), key)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"pod": key.Name(), "documents": n, "status": "deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.catalog.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	pods, err := s.catalog.ListPods(ctx)
	if err != nil {
		s.logger.Error("status: list pods failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.recordPods(pods)

	resp := map[string]any{
		"documents": docCount,
		"pods":      len(pods),
		"languages": s.engine.Languages(),
		"instance":  s.config.Instance.SiteName,
	}
	if diskBytes, err := storage.InstanceUsage(s.config.Storage.DatabasePath, s.config.Storage.PodsDir); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	if s.federation != nil {
		problems := make(map[string]string)
		for _, lang := range s.engine.Languages() {
			if err := s.federation.Err(lang); err != nil {
				problems[lang] = err.Error()
			}
		}
		resp["federation"] = map[string]any{
			"peers":  s.federation.Configured(),
			"errors": problems,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) recordPods(pods []*models.PodRecord) {
	counts := make(map[string]int)
	for _, p := range pods {
		counts[p.Key.Language]++
	}
	s.metrics.SetPods(counts)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, apperrors.HTTPStatusCode(err), err.Error())
}
