// Package httpapi exposes the enqueue, job query and stats APIs over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linklift/jobq/internal/queue"
)

// Server is the HTTP ingress. It only speaks to the queues' producer and
// query surfaces; workers run elsewhere in the process.
type Server struct {
	video   *queue.Queue
	queues  map[string]*queue.Queue
	logger  log.Logger
	started time.Time
}

// New builds a server around the video queue and the full queue map used by
// the stats endpoint.
func New(video *queue.Queue, queues map[string]*queue.Queue, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		video:   video,
		queues:  queues,
		logger:  logger,
		started: time.Now(),
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/jobs/video", s.createVideoJob)
	r.GET("/jobs/video/:jobId", s.getVideoJob)
	r.GET("/queues/:name/counts", s.getCounts)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

type videoJobRequest struct {
	VideoLink string `json:"videoLink"`
	IsVideo   *bool  `json:"isVideo"`
	UserID    int64  `json:"userId"`
	Type      string `json:"type"`
}

func (s *Server) createVideoJob(c *gin.Context) {
	var req videoJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.VideoLink == "" || req.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "missing required fields",
			"required": []string{"videoLink", "userId"},
		})
		return
	}
	isVideo := true
	if req.IsVideo != nil {
		isVideo = *req.IsVideo
	}
	jobType := req.Type
	if jobType == "" {
		jobType = "video"
	}

	id, err := s.video.Enqueue(c.Request.Context(), queue.VideoPayload{
		VideoLink: req.VideoLink,
		IsVideo:   isVideo,
		UserID:    req.UserID,
		Type:      jobType,
	})
	if errors.Is(err, queue.ErrInvalidPayload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "enqueue video job", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"jobId":   id,
		"data": gin.H{
			"videoLink": req.VideoLink,
			"userId":    req.UserID,
			"type":      jobType,
		},
	})
}

func (s *Server) getVideoJob(c *gin.Context) {
	id := c.Param("jobId")
	job, err := s.video.GetJob(c.Request.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found", "jobId": id})
		return
	}
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "get video job", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Handlers report no incremental progress, so progress is binary.
	progress := 0
	if job.State == queue.StateCompleted {
		progress = 100
	}
	body := gin.H{
		"jobId":        job.ID,
		"state":        job.State,
		"progress":     progress,
		"attemptsMade": job.AttemptsMade,
		"attemptsMax":  job.Options.MaxAttempts,
		"createdAt":    job.CreatedAt,
	}
	if !job.ProcessedAt.IsZero() {
		body["processedAt"] = job.ProcessedAt
	}
	if !job.FinishedAt.IsZero() {
		body["finishedAt"] = job.FinishedAt
	}
	if job.Result != nil {
		body["result"] = json.RawMessage(job.Result)
	}
	if job.LastError != "" {
		body["error"] = job.LastError
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getCounts(c *gin.Context) {
	name := c.Param("name")
	q, ok := s.queues[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown queue", "queue": name})
		return
	}
	counts, err := q.Counts(c.Request.Context())
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "queue counts", "queue", name, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, counts)
}
