// Package handlers implements the HTTP endpoints of the job API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/api"
	"github.com/mantonx/vcompress/internal/database"
	"github.com/mantonx/vcompress/internal/jobs"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// JobService is the part of the job manager the API uses.
type JobService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*database.Job, error)
	Get(ctx context.Context, id string) (*database.Job, error)
	List(ctx context.Context, opts jobs.ListOptions) ([]*database.Job, error)
	Stats(ctx context.Context) (map[database.JobStatus]int64, error)
	Cancel(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan jobs.Event, func(), error)
}

// JobsHandler handles the job endpoints.
type JobsHandler struct {
	service  JobService
	upgrader websocket.Upgrader
	logger   hclog.Logger
}

// NewJobsHandler creates a handler backed by service.
func NewJobsHandler(service JobService, log hclog.Logger) *JobsHandler {
	return &JobsHandler{
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log,
	}
}

// CreateJob submits a job.
func (h *JobsHandler) CreateJob(c *gin.Context) {
	var req jobs.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondWithValidationError(c, "create job", err)
		return
	}
	req.Source = database.JobSourceAPI

	job, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		api.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// ListJobs returns jobs newest first, filtered by the status query and
// capped by limit.
func (h *JobsHandler) ListJobs(c *gin.Context) {
	limit := defaultListLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			api.RespondWithValidationError(c, "list jobs", errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := h.service.List(c.Request.Context(), jobs.ListOptions{
		Status: database.JobStatus(c.Query("status")),
		Limit:  limit,
	})
	if err != nil {
		api.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  list,
		"count": len(list),
	})
}

// GetJob returns one job.
func (h *JobsHandler) GetJob(c *gin.Context) {
	job, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob requests cancellation and answers 202; the job reaches its
// cancelled status asynchronously.
func (h *JobsHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Cancel(c.Request.Context(), id); err != nil {
		api.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
}

// GetStats counts jobs per status.
func (h *JobsHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		api.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": stats})
}

// StreamJob upgrades to a websocket and sends the job's events as JSON
// until its terminal event, then closes normally.
func (h *JobsHandler) StreamJob(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before upgrading so unknown jobs still get a plain 404.
	events, unsubscribe, err := h.service.Subscribe(c.Request.Context(), id)
	if err != nil {
		api.RespondWithError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go h.readPump(conn, gone)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				h.closeStream(conn, websocket.CloseNormalClosure, "job finished")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", "job_id", id, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// readPump discards client messages and reports when the peer goes away.
func (h *JobsHandler) readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *JobsHandler) closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
