package api

import (
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/codec"
	"github.com/dunamismax/tryonflow/internal/domain"
	"github.com/dunamismax/tryonflow/internal/id"
	"github.com/dunamismax/tryonflow/internal/queue"
	"github.com/dunamismax/tryonflow/internal/storage"
)

type jobResponse struct {
	domain.Job
	ResultURL string `json:"result_url,omitempty"`
}

func (s *Server) handleTryOn(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.TryOnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	garmentKey, err := artifactUnder(req.GarmentKey, storage.PrefixGarments)
	if err != nil {
		writeError(c, http.StatusBadRequest, "garment_key: "+err.Error())
		return
	}
	personKey, err := artifactUnder(req.PersonKey, storage.PrefixPersons)
	if err != nil {
		writeError(c, http.StatusBadRequest, "person_key: "+err.Error())
		return
	}

	for _, key := range []string{garmentKey, personKey} {
		exists, err := s.deps.Storage.Exists(ctx, key)
		if err != nil {
			s.logger.Error("artifact check failed", zap.String("key", key), zap.Error(err))
			writeError(c, http.StatusInternalServerError, "failed to check artifacts")
			return
		}
		if !exists {
			writeError(c, http.StatusNotFound, "artifact not found: "+key)
			return
		}
	}

	now := time.Now().UTC()
	job := domain.Job{
		ID:         id.New(),
		UserID:     strings.TrimSpace(c.GetHeader(s.userHeader)),
		Status:     domain.JobStatusCreated,
		Category:   domain.NormalizeCategory(req.Category),
		GarmentKey: garmentKey,
		PersonKey:  personKey,
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.deps.Jobs.Create(ctx, job); err != nil {
		s.logger.Error("create job failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "failed to create job")
		return
	}

	info, err := s.deps.Queue.EnqueueTryOn(ctx, queue.TryOnPayload{
		JobID:       job.ID,
		GarmentKey:  job.GarmentKey,
		PersonKey:   job.PersonKey,
		Category:    job.Category,
		WebhookURL:  job.WebhookURL,
		RequestedAt: now,
	})
	if err != nil {
		s.logger.Error("enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		if _, uerr := s.deps.Jobs.UpdateOutcome(ctx, job.ID, domain.JobOutcome{
			Status: domain.JobStatusFailed,
			Error:  "enqueue failed",
		}); uerr != nil {
			s.logger.Warn("mark job failed", zap.String("job_id", job.ID), zap.Error(uerr))
		}
		writeError(c, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(info.Queue).Inc()

	if _, err := s.deps.Jobs.UpdateStatus(ctx, job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Warn("update status failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"category":    job.Category,
		"queue":       info.Queue,
		"task_id":     info.ID,
		"enqueued_at": info.NextProcessAt,
		"status_url":  "/v1/jobs/" + job.ID,
	})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, ok, err := s.deps.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Error("fetch job failed", zap.String("job_id", c.Param("id")), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, "job not found")
		return
	}

	resp := jobResponse{Job: job}
	if job.ResultKey != "" {
		resp.ResultURL = "/v1/results/" + strings.TrimPrefix(job.ResultKey, storage.PrefixResults+"/")
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetResult streams results/<name>. ?format=jpeg|webp re-encodes the
// stored PNG.
func (s *Server) handleGetResult(c *gin.Context) {
	key, err := storage.CleanKey(path.Join(storage.PrefixResults, strings.TrimPrefix(c.Param("key"), "/")))
	if err != nil || !strings.HasPrefix(key, storage.PrefixResults+"/") {
		writeError(c, http.StatusBadRequest, "invalid result key")
		return
	}

	data, err := s.deps.Storage.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(c, http.StatusNotFound, "result not found")
			return
		}
		s.logger.Error("load result failed", zap.String("key", key), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "failed to load result")
		return
	}

	format := codec.NormalizeFormat(c.Query("format"))
	if format == codec.FormatPNG {
		c.Data(http.StatusOK, codec.ContentType(codec.FormatPNG), data)
		return
	}

	img, _, err := codec.Decode(data)
	if err != nil {
		s.logger.Error("decode result failed", zap.String("key", key), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "stored result is unreadable")
		return
	}
	quality, _ := strconv.Atoi(c.Query("quality"))
	encoded, err := codec.Encode(img, format, quality)
	if err != nil {
		if errors.Is(err, codec.ErrUnsupportedFormat) || errors.Is(err, codec.ErrWebPUnavailable) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to encode result")
		return
	}
	c.Data(http.StatusOK, codec.ContentType(format), encoded)
}

// artifactUnder cleans key and requires it to sit directly below prefix.
func artifactUnder(key, prefix string) (string, error) {
	cleaned, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(cleaned, prefix+"/") {
		return "", errors.New("must start with " + prefix + "/")
	}
	return cleaned, nil
}
