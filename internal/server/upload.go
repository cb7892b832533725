package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/companion/internal/indexer"
	"github.com/hyperjump/companion/internal/models"
)

const maxUploadBytes = 32 << 20

// handleUpload stores a document under the companion's upload directory and ingests it,
// replacing the chunks of an earlier upload with the same name.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := s.ownedCompanion(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		s.respondError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if _, ok := models.SourceTypeFromExt(filepath.Ext(name)); !ok {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", filepath.Ext(name)))
		return
	}

	dir, err := s.uploadDir(c.ID)
	if err != nil {
		s.respondErr(w, "upload dir", err)
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.respondErr(w, "create upload dir", err)
		return
	}
	dst := filepath.Join(dir, name)
	if err := writeFile(dst, file); err != nil {
		s.respondErr(w, "save upload", err)
		return
	}

	src, err := indexer.SourceFromFile(dst)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if title := r.FormValue("title"); title != "" {
		src.Title = title
	}
	result := models.IngestResult{SourceID: src.ID, SourceType: src.Type, Title: src.Title}
	n, err := s.pipeline.ReingestFile(ctx, c.ID, dst)
	if err != nil {
		result.Err, result.Error = err, err.Error()
		s.logger.Warn("Upload ingestion failed", zap.String("companion_id", c.ID), zap.String("file", name), zap.Error(err))
	} else {
		result.Chunks = n
		c.Sources = addSource(c.Sources, src)
		if err := s.store.SaveCompanion(ctx, c); err != nil {
			s.respondErr(w, "save companion", err)
			return
		}
	}
	status := http.StatusCreated
	if result.Err != nil {
		status = statusFor(result.Err)
	}
	respondJSON(w, status, result)
}

// writeFile writes r to path through a temporary file so readers never see a partial upload.
func writeFile(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
