package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"shopcalls/internal/calls"
	"shopcalls/internal/ingest"
	"shopcalls/internal/jobs"
	"shopcalls/internal/reporting"
	"shopcalls/internal/transcription"
	"shopcalls/pkg/logger"
)

type CallIngester interface {
	SyncCallRecords(ctx context.Context, from, to time.Time) (ingest.SyncResult, error)
	BackfillSessionIDs(ctx context.Context, daysBack int) (ingest.BackfillResult, error)
}

type CallTranscriber interface {
	TranscribePending(ctx context.Context, limit int, delay time.Duration) (jobs.BatchResult, error)
	TranscribeCall(ctx context.Context, id string) (transcription.Result, error)
}

type SchedulerStatus interface {
	Status() jobs.Status
}

type BackfillAuditor interface {
	SessionBackfill(ctx context.Context, actor, message string, result any) error
}

type Reporter interface {
	CallsSummary(ctx context.Context, req reporting.SummaryRequest) (reporting.CallsSummary, error)
}

const (
	defaultTranscribeLimit = 10
	maxTranscribeLimit     = 100
	defaultSummaryWindow   = 7 * 24 * time.Hour
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Ingest      CallIngester
	Transcriber CallTranscriber
	Scheduler   SchedulerStatus
	Reports     Reporter
	// Audit is optional.
	Audit BackfillAuditor
	// Health checks the store; nil reports ok.
	Health func(ctx context.Context) error

	// TranscribeDelay is the pause between calls of an on-demand transcribe batch.
	TranscribeDelay time.Duration
	Now             func() time.Time
}

// Register wires the operational routes onto r.
func Register(r gin.IRouter, h Handlers) {
	r.GET("/healthz", h.Healthz)

	rc := r.Group("/api/ringcentral")
	rc.POST("/sync", h.Sync)
	rc.POST("/smart-transcribe", h.SmartTranscribe)
	rc.POST("/backfill-session-ids", h.BackfillSessionIDs)
	rc.POST("/calls/:id/transcribe", h.TranscribeCall)
	rc.GET("/scheduler", h.SchedulerStatus)
	rc.GET("/summary", h.Summary)
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func abortError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h Handlers) Healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type syncRequest struct {
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
}

func (h Handlers) Sync(c *gin.Context) {
	if h.Ingest == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sync not configured"})
		return
	}
	var req syncRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	from, err := parseTime(req.DateFrom)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "dateFrom: " + err.Error()})
		return
	}
	to, err := parseTime(req.DateTo)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "dateTo: " + err.Error()})
		return
	}

	res, err := h.Ingest.SyncCallRecords(detached(c), from, to)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidRequest) {
			abortError(c, http.StatusBadRequest, err)
			return
		}
		logger.FromGin(c).Error("sync failed", "err", err)
		abortError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type smartTranscribeRequest struct {
	Limit int `json:"limit"`
}

func (h Handlers) SmartTranscribe(c *gin.Context) {
	if h.Transcriber == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcription not configured"})
		return
	}
	var req smartTranscribeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	switch {
	case req.Limit == 0:
		req.Limit = defaultTranscribeLimit
	case req.Limit < 0 || req.Limit > maxTranscribeLimit:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	res, err := h.Transcriber.TranscribePending(detached(c), req.Limit, h.TranscribeDelay)
	if err != nil {
		logger.FromGin(c).Error("smart transcribe failed", "err", err)
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type backfillRequest struct {
	DaysBack int `json:"daysBack"`
}

// BackfillSessionIDs may run for minutes; clients should use a long timeout.
func (h Handlers) BackfillSessionIDs(c *gin.Context) {
	if h.Ingest == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sync not configured"})
		return
	}
	var req backfillRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.DaysBack < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "daysBack must be positive"})
		return
	}
	ctx := detached(c)
	res, err := h.Ingest.BackfillSessionIDs(ctx, req.DaysBack)
	if err != nil {
		logger.FromGin(c).Error("session backfill failed", "err", err)
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if h.Audit != nil && res.Updated > 0 {
		actor := c.GetHeader("X-Actor")
		if actor == "" {
			actor = "api"
		}
		if err := h.Audit.SessionBackfill(ctx, actor, res.Message, res); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) TranscribeCall(c *gin.Context) {
	if h.Transcriber == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcription not configured"})
		return
	}
	id := c.Param("id")
	res, err := h.Transcriber.TranscribeCall(detached(c), id)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, resultBody(id, res))
}

func resultBody(id string, res transcription.Result) gin.H {
	switch r := res.(type) {
	case transcription.Success:
		return gin.H{
			"callId":         id,
			"status":         "success",
			"transcriptText": r.TranscriptText,
			"isSalesCall":    r.IsSalesCall,
			"sampleOnly":     r.SampleOnly,
			"source":         r.Source,
		}
	case transcription.Skipped:
		return gin.H{"callId": id, "status": "skipped", "reason": r.Reason}
	case transcription.Failed:
		return gin.H{"callId": id, "status": "failed", "reason": r.Reason, "source": r.Source}
	default:
		return gin.H{"callId": id, "status": "unknown"}
	}
}

func (h Handlers) SchedulerStatus(c *gin.Context) {
	if h.Scheduler == nil {
		c.JSON(http.StatusOK, jobs.Status{})
		return
	}
	c.JSON(http.StatusOK, h.Scheduler.Status())
}

func (h Handlers) Summary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to: " + err.Error()})
		return
	}
	if to.IsZero() {
		to = h.now().UTC()
	}
	from, err := parseTime(c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from: " + err.Error()})
		return
	}
	if from.IsZero() {
		from = to.Add(-defaultSummaryWindow)
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.SummaryRequest{
		Range:  reporting.TimeRange{From: from, To: to},
		ShopID: c.Query("shopId"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			abortError(c, http.StatusBadRequest, err)
			return
		}
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// bindOptionalJSON accepts an empty body as the zero request, including a chunked
// body with no content.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// detached keeps request values (logger, request id) but not the client's
// cancellation, so a batch that has started is allowed to finish.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// parseTime accepts RFC 3339 timestamps or plain dates. Empty input is the zero time.
func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp or YYYY-MM-DD")
	}
	return t.UTC(), nil
}
