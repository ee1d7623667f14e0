package api

import (
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/cache"
	"github.com/dunamismax/tryonflow/internal/codec"
	"github.com/dunamismax/tryonflow/internal/domain"
	"github.com/dunamismax/tryonflow/internal/id"
	"github.com/dunamismax/tryonflow/internal/preprocess"
	"github.com/dunamismax/tryonflow/internal/raster"
	"github.com/dunamismax/tryonflow/internal/storage"
)

const (
	kindGarment = "garment"
	kindPerson  = "person"

	// Allowance for multipart framing on top of the file itself.
	multipartOverhead = 64 << 10
)

type preprocessResponse struct {
	ArtifactKey string          `json:"artifact_key"`
	Category    domain.Category `json:"category,omitempty"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Cached      bool            `json:"cached"`
}

type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

func (s *Server) handlePreprocessGarment(c *gin.Context) {
	category := domain.NormalizeCategory(c.PostForm("category"))
	s.preprocess(c, kindGarment, category, s.deps.Garments, storage.GarmentKey)
}

func (s *Server) handlePreprocessPerson(c *gin.Context) {
	s.preprocess(c, kindPerson, "", s.deps.Persons, storage.PersonKey)
}

func (s *Server) preprocess(c *gin.Context, kind string, category domain.Category, pipeline Preprocessor, artifactKey func(string) string) {
	ctx := c.Request.Context()
	if pipeline == nil {
		writeError(c, http.StatusServiceUnavailable, kind+" preprocessing is not configured")
		return
	}

	data, format, err := s.readUpload(c)
	if err != nil {
		var ue *uploadError
		if errors.As(err, &ue) {
			writeError(c, ue.status, ue.message)
			return
		}
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	fingerprint := cache.Key(kind, category, data)
	if key, ok := s.cachedArtifact(c, fingerprint); ok {
		s.metrics.preprocessTotal.WithLabelValues(kind, "cached").Inc()
		c.JSON(http.StatusOK, preprocessResponse{
			ArtifactKey: key,
			Category:    category,
			Width:       raster.CanvasWidth,
			Height:      raster.CanvasHeight,
			Cached:      true,
		})
		return
	}

	artifactID := id.New()
	if err := s.deps.Storage.Put(ctx, storage.UploadKey(artifactID, format), data, codec.ContentType(format)); err != nil {
		s.logger.Warn("store upload failed", zap.String("kind", kind), zap.Error(err))
	}

	canvas, err := pipeline.Process(ctx, data)
	if err != nil {
		s.metrics.preprocessTotal.WithLabelValues(kind, "failed").Inc()
		if errors.Is(err, preprocess.ErrDecode) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("preprocess failed", zap.String("kind", kind), zap.Error(err))
		writeError(c, http.StatusBadGateway, err.Error())
		return
	}

	key, err := s.storeCanvas(c, artifactKey(artifactID), canvas)
	if err != nil {
		s.logger.Error("store canvas failed", zap.String("kind", kind), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "failed to store canvas")
		return
	}
	if err := s.deps.Cache.Remember(ctx, fingerprint, key); err != nil {
		s.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}

	s.metrics.preprocessTotal.WithLabelValues(kind, "processed").Inc()
	s.logger.Info("canvas prepared",
		zap.String("kind", kind),
		zap.String("artifact_key", key),
		zap.String("category", string(category)),
		zap.Int("upload_bytes", len(data)),
	)
	c.JSON(http.StatusOK, preprocessResponse{
		ArtifactKey: key,
		Category:    category,
		Width:       canvas.Bounds().Dx(),
		Height:      canvas.Bounds().Dy(),
	})
}

// cachedArtifact returns the canvas recorded for fingerprint when it still
// exists in storage.
func (s *Server) cachedArtifact(c *gin.Context, fingerprint string) (string, bool) {
	ctx := c.Request.Context()
	key, ok, err := s.deps.Cache.Lookup(ctx, fingerprint)
	if err != nil {
		s.logger.Warn("cache lookup failed", zap.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	exists, err := s.deps.Storage.Exists(ctx, key)
	if err != nil || !exists {
		return "", false
	}
	return key, true
}

func (s *Server) storeCanvas(c *gin.Context, key string, canvas image.Image) (string, error) {
	data, err := codec.EncodePNG(canvas)
	if err != nil {
		return "", err
	}
	if err := s.deps.Storage.Put(c.Request.Context(), key, data, codec.ContentType(codec.FormatPNG)); err != nil {
		return "", err
	}
	return key, nil
}

// readUpload returns the bytes of the multipart "file" field and the
// format implied by its content type.
func (s *Server) readUpload(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", &uploadError{http.StatusRequestEntityTooLarge, s.tooLargeMessage()}
		}
		return nil, "", &uploadError{http.StatusBadRequest, "multipart field \"file\" is required"}
	}
	if header.Size > s.maxUpload {
		return nil, "", &uploadError{http.StatusRequestEntityTooLarge, s.tooLargeMessage()}
	}

	f, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, "", &uploadError{http.StatusRequestEntityTooLarge, s.tooLargeMessage()}
	}
	if len(data) == 0 {
		return nil, "", &uploadError{http.StatusBadRequest, "uploaded file is empty"}
	}

	contentType := mediaType(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mediaType(http.DetectContentType(data))
	}
	if !s.allowedTypes[contentType] {
		return nil, "", &uploadError{http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported content type %q", contentType)}
	}
	return data, formatFor(contentType), nil
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("upload exceeds %d MB", s.maxUpload>>20)
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func formatFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return codec.FormatJPEG
	case "image/webp":
		return codec.FormatWebP
	case "image/png":
		return codec.FormatPNG
	default:
		return strings.TrimPrefix(contentType, "image/")
	}
}
