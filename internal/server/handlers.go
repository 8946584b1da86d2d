package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/chew-z/vision-dispatch/internal/api"
	"github.com/chew-z/vision-dispatch/internal/logging"
	"github.com/chew-z/vision-dispatch/internal/prompt"
	"github.com/chew-z/vision-dispatch/internal/vision"
	"github.com/gin-gonic/gin"
)

// handleError sends a standardized error response with context-aware cancellation handling
func handleError(c *gin.Context, err error) {
	// Check for context cancellation (client disconnected)
	if errors.Is(err, context.Canceled) {
		c.JSON(499, gin.H{"detail": "request canceled"})
		return
	}
	var se *api.StatusError
	if errors.As(err, &se) {
		c.JSON(se.StatusCode, se)
		return
	}
	c.JSON(http.StatusInternalServerError, api.StatusError{ErrorMessage: err.Error()})
}

// handleIndex renders the upload form
func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Backends": s.backendInfo(),
	})
}

// handleVersion returns the API version
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": Version,
	})
}

// handleBackends lists the configured backends
func (s *Server) handleBackends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"backends": s.backendInfo(),
	})
}

func (s *Server) backendInfo() []api.BackendInfo {
	backends := s.dispatcher.Backends()
	out := make([]api.BackendInfo, 0, len(backends))
	for _, b := range backends {
		out = append(out, api.BackendInfo{Key: b.Key, Model: b.Model, MaxTokens: b.MaxTokens})
	}
	return out
}

// handleUploadAndQuery validates the upload, fans it out and returns one answer per backend
func (s *Server) handleUploadAndQuery(c *gin.Context) {
	logger := logging.FromContext(c.Request.Context(), s.logger)

	query, img, err := s.readUpload(c)
	if err != nil {
		logger.Warn("rejected upload", "error", err)
		handleError(c, err)
		return
	}

	content, err := prompt.Build(query, img)
	if errors.Is(err, prompt.ErrEmptyRequest) {
		handleError(c, api.ErrBadRequest("Provide at least an image or a query."))
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}

	ctx := c.Request.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	resp, err := s.dispatcher.Dispatch(ctx, content)
	if cerr := c.Request.Context().Err(); errors.Is(cerr, context.Canceled) {
		logger.Info("client went away before dispatch finished")
		handleError(c, cerr)
		return
	}
	if err != nil {
		logger.Error("dispatch failed", "error", err)
		handleError(c, api.ErrInternalServer(fmt.Sprintf("An unexpected error occurred: %v", err)))
		return
	}

	for key, answer := range resp {
		logger.Debug("processed response", "backend", key, "answer", truncate(answer, 100))
	}
	c.JSON(http.StatusOK, resp)
}

// multipartMemory is how much of a form is held in memory before spilling to disk
const multipartMemory = 32 << 20

// readUpload parses the multipart form. A missing image and an empty query
// are both allowed here; Build rejects the request when both are absent.
func (s *Server) readUpload(c *gin.Context) (string, *vision.Image, error) {
	if limit := s.config.MaxUploadBytes; limit > 0 {
		if c.Request.ContentLength > limit {
			return "", nil, api.ErrRequestTooLarge(fmt.Sprintf("Upload exceeds %d bytes.", limit))
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, api.ErrRequestTooLarge(fmt.Sprintf("Upload exceeds %d bytes.", tooLarge.Limit))
		}
		return "", nil, api.WrapError(err, http.StatusBadRequest, "Invalid form")
	}

	query := c.PostForm("query")
	if s.config.MaxQueryLength > 0 && utf8.RuneCountInString(query) > s.config.MaxQueryLength {
		return "", nil, api.ErrBadRequest(fmt.Sprintf("Query exceeds %d characters.", s.config.MaxQueryLength))
	}

	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return query, nil, nil
		}
		return "", nil, api.WrapError(err, http.StatusBadRequest, "Invalid image upload")
	}

	f, err := fh.Open()
	if err != nil {
		return "", nil, api.WrapError(err, http.StatusBadRequest, "Invalid image upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, api.WrapError(err, http.StatusBadRequest, "Invalid image upload")
	}

	img, err := vision.ValidateMaxPixels(data, fh.Filename, s.config.MaxImagePixels)
	if err != nil {
		var invalid *vision.InvalidImageError
		switch {
		case errors.Is(err, vision.ErrEmptyImage):
			return "", nil, api.ErrBadRequest("Uploaded image is empty.")
		case errors.As(err, &invalid):
			return "", nil, api.WrapError(invalid.Err, http.StatusBadRequest, "Invalid image format")
		default:
			return "", nil, err
		}
	}

	return query, img, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
