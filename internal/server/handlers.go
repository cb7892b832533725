package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/companion/internal/models"
	"github.com/hyperjump/companion/internal/sourceid"
)

type companionRequest struct {
	Name         string          `json:"name"`
	Instructions string          `json:"instructions"`
	Seed         string          `json:"seed"`
	Sources      []models.Source `json:"sources"`
}

type companionResponse struct {
	Companion *models.Companion     `json:"companion"`
	Results   []models.IngestResult `json:"results,omitempty"`
}

type sourcesRequest struct {
	Sources []models.Source `json:"sources"`
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCompanions(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	companions, err := s.store.ListCompanions(r.Context(), offset, limit)
	if err != nil {
		s.respondErr(w, "list companions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"companions": companions})
}

func (s *Server) handleGetCompanion(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCompanion(r.Context(), chi.URLParam(r, "companionId"))
	if err != nil {
		s.respondErr(w, "get companion", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// handleSaveCompanion creates or updates a profile. When the source list changes, the
// companion's knowledge is rebuilt from the new list.
func (s *Server) handleSaveCompanion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "companionId")
	var req companionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	for i := range req.Sources {
		if err := s.checkSource(id, &req.Sources[i]); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	existing, err := s.store.GetCompanion(ctx, id)
	if err != nil && !errors.Is(err, models.ErrCompanionNotFound) {
		s.respondErr(w, "get companion", err)
		return
	}
	if existing != nil && !s.ownedBy(w, r, existing) {
		return
	}

	c := &models.Companion{
		ID:           id,
		OwnerID:      userFrom(ctx),
		Name:         req.Name,
		Instructions: req.Instructions,
		Seed:         req.Seed,
		Sources:      req.Sources,
	}
	if existing != nil {
		c.CreatedAt = existing.CreatedAt
	}
	if err := s.store.SaveCompanion(ctx, c); err != nil {
		s.respondErr(w, "save companion", err)
		return
	}

	resp := companionResponse{Companion: c}
	if existing == nil || sourcesChanged(existing.Sources, c.Sources) {
		if existing != nil {
			if _, err := s.pipeline.Clear(ctx, id); err != nil {
				s.respondErr(w, "clear knowledge", err)
				return
			}
		}
		resp.Results = s.pipeline.IngestBatch(ctx, id, c.Sources)
	}
	s.logger.Debug("Companion saved", zap.String("companion_id", id), zap.Int("sources", len(c.Sources)))
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteCompanion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := s.ownedCompanion(w, r)
	if !ok {
		return
	}
	deleted, err := s.pipeline.Clear(ctx, c.ID)
	if err != nil {
		s.respondErr(w, "clear knowledge", err)
		return
	}
	if err := s.store.DeleteCompanion(ctx, c.ID); err != nil {
		s.respondErr(w, "delete companion", err)
		return
	}
	if dir, err := s.uploadDir(c.ID); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Removing uploads failed", zap.String("companion_id", c.ID), zap.Error(err))
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "chunks": deleted})
}

// handleIngestSources adds TEXT and LINK sources to a companion and ingests them.
func (s *Server) handleIngestSources(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := s.ownedCompanion(w, r)
	if !ok {
		return
	}
	var req sourcesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Sources) == 0 {
		s.respondError(w, http.StatusBadRequest, "sources are required")
		return
	}
	for i := range req.Sources {
		if err := s.checkSource(c.ID, &req.Sources[i]); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	results := s.pipeline.IngestBatch(ctx, c.ID, req.Sources)
	for i, res := range results {
		if res.OK() {
			c.Sources = addSource(c.Sources, req.Sources[i])
		}
	}
	if err := s.store.SaveCompanion(ctx, c); err != nil {
		s.respondErr(w, "save companion", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleClearKnowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := s.ownedCompanion(w, r)
	if !ok {
		return
	}
	var (
		deleted int
		err     error
		removed []models.Source
	)
	if sourceID := r.URL.Query().Get("source"); sourceID != "" {
		deleted, err = s.pipeline.DeleteSource(ctx, c.ID, sourceID)
		kept := c.Sources[:0:0]
		for _, src := range c.Sources {
			if src.ID == sourceID {
				removed = append(removed, src)
				continue
			}
			kept = append(kept, src)
		}
		c.Sources = kept
	} else {
		deleted, err = s.pipeline.Clear(ctx, c.ID)
		removed, c.Sources = c.Sources, nil
	}
	if err != nil {
		s.respondErr(w, "clear knowledge", err)
		return
	}
	if err := s.store.SaveCompanion(ctx, c); err != nil {
		s.respondErr(w, "save companion", err)
		return
	}
	for _, src := range removed {
		if src.Path != "" && s.isUpload(c.ID, src.Path) {
			_ = os.Remove(src.Path)
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	c, err := s.store.GetCompanion(ctx, chi.URLParam(r, "companionId"))
	if err != nil {
		s.respondErr(w, "get companion", err)
		return
	}
	key := s.key(r, c.ID)
	reply, err := s.coordinator.Respond(ctx, s.generator, key, c, req.Prompt, r.URL.Query().Get("tone"))
	if err != nil {
		s.respondErr(w, "chat", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", s.config.Memory.RecentLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.store.ReadRecent(r.Context(), s.key(r, chi.URLParam(r, "companionId")), limit)
	if err != nil {
		s.respondErr(w, "read history", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Clear(r.Context(), s.key(r, chi.URLParam(r, "companionId")))
	if err != nil {
		s.respondErr(w, "clear history", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) key(r *http.Request, companionID string) models.CompanionKey {
	return models.CompanionKey{
		CompanionID: companionID,
		UserID:      userFrom(r.Context()),
		ModelName:   s.config.Memory.ModelName,
	}
}

// ownedCompanion loads the companion of the route and checks the caller owns it.
func (s *Server) ownedCompanion(w http.ResponseWriter, r *http.Request) (*models.Companion, bool) {
	c, err := s.store.GetCompanion(r.Context(), chi.URLParam(r, "companionId"))
	if err != nil {
		s.respondErr(w, "get companion", err)
		return nil, false
	}
	if !s.ownedBy(w, r, c) {
		return nil, false
	}
	return c, true
}

func (s *Server) ownedBy(w http.ResponseWriter, r *http.Request, c *models.Companion) bool {
	if c.OwnerID != "" && c.OwnerID != userFrom(r.Context()) {
		s.respondError(w, http.StatusForbidden, "companion belongs to another user")
		return false
	}
	return true
}

// checkSource validates a source from a request and assigns its id. File sources must
// point at an upload of the same companion, so the API cannot read arbitrary server files.
func (s *Server) checkSource(companionID string, src *models.Source) error {
	src.Data = nil
	if err := src.Validate(); err != nil {
		return err
	}
	if src.Type != models.SourceText && (src.URL == "" || src.Path != "") {
		if src.Path == "" || !s.isUpload(companionID, src.Path) {
			return errors.New("file sources must be uploaded first")
		}
	}
	src.ID = sourceid.For(*src)
	return nil
}

func (s *Server) isUpload(companionID, path string) bool {
	dir, err := s.uploadDir(companionID)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, filepath.Clean(path))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func sourcesChanged(old, updated []models.Source) bool {
	if len(old) != len(updated) {
		return true
	}
	for i := range old {
		if old[i].ID != updated[i].ID {
			return true
		}
	}
	return false
}

func addSource(sources []models.Source, src models.Source) []models.Source {
	for _, s := range sources {
		if s.ID == src.ID {
			return sources
		}
	}
	return append(sources, src)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInvalidKey), errors.Is(err, models.ErrInvalidSource), errors.Is(err, models.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrCompanionNotFound), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrGenerationFailed), errors.Is(err, models.ErrLoadFailed), errors.Is(err, models.ErrEmbedFailed):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, models.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondErr logs err and answers with its status. Server-side failures get a generic message.
func (s *Server) respondErr(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, status, http.StatusText(status))
		return
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
