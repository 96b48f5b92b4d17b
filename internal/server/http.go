package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/async"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
	"github.com/joseph-ayodele/examlens/internal/export"
	"github.com/joseph-ayodele/examlens/internal/ingest"
	"github.com/joseph-ayodele/examlens/internal/notify"
	"github.com/joseph-ayodele/examlens/internal/repository"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Enqueuer accepts documents for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

// API serves uploads, the current outcome and completion events over HTTP.
type API struct {
	queue     Enqueuer
	store     repository.ResultStore
	exporter  *export.Service
	broker    *notify.Broker[notify.Completion]
	maxUpload int64
	keepAlive time.Duration
	logger    *slog.Logger
}

func NewAPI(
	queue Enqueuer,
	store repository.ResultStore,
	broker *notify.Broker[notify.Completion],
	maxUploadMB int,
	logger *slog.Logger,
) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		queue:     queue,
		store:     store,
		exporter:  export.NewService(store, logger),
		broker:    broker,
		maxUpload: int64(maxUploadMB) << 20,
		keepAlive: 25 * time.Second,
		logger:    logger,
	}
}

// Router builds the gin engine with every route registered.
func (a *API) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(a.logger))

	r.POST("/upload", a.Upload)
	r.GET("/result", a.Result)
	r.GET("/getjson", a.Result)
	r.GET("/result/breakdown", a.Breakdown)
	r.GET("/result/export.xlsx", a.Export)
	r.GET("/events", a.Events)
	r.GET("/healthz", a.Health)
	return r
}

// Upload accepts one multipart file under the "file" field and starts a run.
func (a *API) Upload(c *gin.Context) {
	if a.maxUpload > 0 {
		// multipart framing needs some room beyond the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxUpload+(1<<20))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if a.maxUpload > 0 && fh.Size > a.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	doc, err := ingest.FromUpload(fh.Filename, f, a.maxUpload)
	switch {
	case errors.Is(err, ingest.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	case errors.Is(err, common.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		a.logger.Error("http.upload.read_failed", "req_id", common.RequestIDFromContext(c.Request.Context()), "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	if doc.ContentType != constants.MIMEPDF && doc.ContentType != constants.MIMEText {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported content type " + doc.ContentType})
		return
	}

	job := async.Job{
		RunID:       uuid.New(),
		Document:    doc,
		SubmittedAt: time.Now(),
		RequestID:   common.RequestIDFromContext(c.Request.Context()),
	}
	if err := a.queue.Enqueue(c.Request.Context(), job); err != nil {
		a.logger.Warn("http.upload.rejected", "run_id", job.RunID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "busy, try again later"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"filename": doc.Filename, "run_id": job.RunID.String()})
}

// Result returns the stored document verbatim.
func (a *API) Result(c *gin.Context) {
	out, ok := a.current(c)
	if !ok {
		return
	}
	doc, err := out.Document()
	if err != nil {
		a.internal(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// Breakdown returns question counts per category for charting.
func (a *API) Breakdown(c *gin.Context) {
	out, ok := a.current(c)
	if !ok {
		return
	}
	if out.IsError() {
		c.JSON(http.StatusConflict, out.Error)
		return
	}
	c.JSON(http.StatusOK, out.Result.Breakdown())
}

// Export streams the study guide workbook.
func (a *API) Export(c *gin.Context) {
	b, err := a.exporter.CurrentXLSX(c.Request.Context())
	switch {
	case errors.Is(err, common.ErrNotAvailable):
		c.JSON(http.StatusNotFound, gin.H{"status": "not_available"})
		return
	case errors.Is(err, export.ErrNoResult):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		a.internal(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="study-guide.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, b)
}

// Events streams one "response" event per completed run.
func (a *API) Events(c *gin.Context) {
	sub := a.broker.Subscribe(c.Request.Context())
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(a.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub:
			if !ok {
				return false
			}
			payload, err := eventPayload(ev.Payload)
			if err != nil {
				a.logger.Warn("http.events.encode_failed", "run_id", ev.Payload.RunID, "error", err)
				return true
			}
			c.SSEvent("response", payload)
			return true
		case <-ticker.C:
			c.SSEvent("ping", "")
			return true
		}
	})
}

// eventPayload is the stored document with run_id added.
func eventPayload(comp notify.Completion) (map[string]any, error) {
	m := map[string]any{}
	if err := json.Unmarshal(comp.Document, &m); err != nil {
		return nil, err
	}
	m["run_id"] = comp.RunID
	return m, nil
}

func (a *API) Health(c *gin.Context) {
	if err := a.store.Ping(c.Request.Context()); err != nil {
		a.logger.Warn("http.health.store_down", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) current(c *gin.Context) (entity.Outcome, bool) {
	out, err := a.store.ReadCurrent(c.Request.Context())
	if errors.Is(err, common.ErrNotAvailable) {
		c.JSON(http.StatusNotFound, gin.H{"status": "not_available"})
		return out, false
	}
	if err != nil {
		a.internal(c, err)
		return out, false
	}
	return out, true
}

func (a *API) internal(c *gin.Context, err error) {
	a.logger.Error("http.internal", "path", c.FullPath(), "req_id", common.RequestIDFromContext(c.Request.Context()), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
