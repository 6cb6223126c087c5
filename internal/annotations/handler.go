package annotations

import (
	"context"
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"annotation-backend/internal/engine"
	"annotation-backend/internal/extract"
	"annotation-backend/internal/pipeline"
	"annotation-backend/internal/render"
	"annotation-backend/internal/shared/server/middleware"
	"annotation-backend/internal/shared/server/respond"
)

const (
	downloadName     = "download.xml"
	getAnnotateReply = "Please upload the file by using a POST request."
	defaultListLimit = 20
	maxListLimit     = 100
	multipartMemory  = 8 << 20
)

// Handler wires HTTP handlers to the annotations service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
	// RetryAfter is advertised when the engine is busy.
	RetryAfter time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64, retryAfter time.Duration) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes, RetryAfter: retryAfter}
}

// RegisterRoutes attaches annotation routes to the router group. limit, when
// non-nil, guards the routes that run the engine.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	guarded := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		if limit == nil {
			return []gin.HandlerFunc{fn}
		}
		return []gin.HandlerFunc{limit, fn}
	}
	rg.POST("/annotate", guarded(h.annotate)...)
	rg.GET("/annotate", h.annotateHint)
	rg.POST("/annotations", guarded(h.enqueue)...)
	rg.GET("/annotations", h.list)
	rg.GET("/annotations/:id", h.get)
	rg.GET("/annotations/:id/download", h.download)
}

func (h *Handler) annotateHint(c *gin.Context) {
	c.String(http.StatusOK, getAnnotateReply)
}

func (h *Handler) annotate(c *gin.Context) {
	upload, ok := h.readUpload(c)
	if !ok {
		return
	}

	outcome, err := h.Svc.Annotate(h.requestContext(c), upload)
	if err != nil {
		h.writeError(c, err)
		return
	}

	reused := outcome.Output.Metadata.Reused
	c.Set(middleware.EngineReusedKey, reused)
	c.Header("X-Environment-Reused", strconv.FormatBool(reused))
	if outcome.Run != nil {
		c.Set(middleware.RunIDKey, outcome.Run.ID)
		c.Header("X-Run-Id", outcome.Run.ID)
	}
	respond.Data(c, http.StatusOK, render.ContentType, downloadName, outcome.Output.XML)
}

func (h *Handler) enqueue(c *gin.Context) {
	upload, ok := h.readUpload(c)
	if !ok {
		return
	}

	run, err := h.Svc.Enqueue(h.requestContext(c), upload)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Set(middleware.RunIDKey, run.ID)
	c.Set(middleware.StatusTransitionKey, "->"+StatusQueued)
	c.Header("Location", c.FullPath()+"/"+run.ID)
	respond.Accepted(c, gin.H{
		"runId":  run.ID,
		"status": run.Status,
	})
}

func (h *Handler) get(c *gin.Context) {
	runID := c.Param("id")
	c.Set(middleware.RunIDKey, runID)

	run, err := h.Svc.Get(h.requestContext(c), runID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, run)
}

func (h *Handler) list(c *gin.Context) {
	limit := defaultListLimit
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := h.Svc.List(h.requestContext(c), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	respond.OK(c, gin.H{
		"items":  runs,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) download(c *gin.Context) {
	runID := c.Param("id")
	c.Set(middleware.RunIDKey, runID)

	body, run, err := h.Svc.Download(h.requestContext(c), runID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to read output", nil)
		return
	}
	c.Header("X-Environment-Reused", strconv.FormatBool(run.Reused))
	respond.Data(c, http.StatusOK, render.ContentType, downloadName, data)
}

// readUpload parses the form body. The text field wins over the file part.
func (h *Handler) readUpload(c *gin.Context) (Upload, bool) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	var err error
	if mediaType == "multipart/form-data" {
		err = c.Request.ParseMultipartForm(multipartMemory)
	} else {
		err = c.Request.ParseForm()
	}
	if err != nil {
		h.writeFormError(c, err)
		return Upload{}, false
	}

	upload := Upload{
		Text:      c.Request.PostFormValue("text"),
		Namespace: c.ClientIP(),
	}
	if strings.TrimSpace(upload.Text) != "" || c.Request.MultipartForm == nil {
		return upload, true
	}

	file, header, err := c.Request.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return upload, true
	}
	if err != nil {
		h.writeFormError(c, err)
		return Upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeFormError(c, err)
		return Upload{}, false
	}
	upload.FileName = header.Filename
	upload.ContentType = header.Header.Get("Content-Type")
	upload.Data = data
	return upload, true
}

func (h *Handler) writeFormError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit", gin.H{"limitBytes": tooLarge.Limit})
		return
	}
	respond.Error(c, http.StatusBadRequest, "validation_error", "could not parse form body", nil)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNoInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", "No input provided: send a text field or a file part", nil)
	case errors.Is(err, extract.ErrUnsupported):
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error(), nil)
	case errors.Is(err, engine.ErrLockTimeout):
		c.Header("Retry-After", retryAfterSeconds(h.RetryAfter))
		respond.Error(c, http.StatusServiceUnavailable, "engine_busy", "The annotation engine is busy, try again later", gin.H{"retryable": true})
	case errors.Is(err, engine.ErrConstructionFailed):
		respond.Error(c, http.StatusServiceUnavailable, "engine_unavailable", "The annotation engine could not be started", gin.H{"retryable": true})
	case errors.Is(err, engine.ErrProcessingFailed) && errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusGatewayTimeout, "engine_timeout", "The annotation engine timed out", gin.H{"retryable": true})
	case errors.Is(err, engine.ErrProcessingFailed):
		respond.Error(c, http.StatusUnprocessableEntity, "engine_processing_failed", "The annotation engine could not process the document", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "annotation run not found", nil)
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusConflict, "not_ready", "annotation run has no output yet", nil)
	default:
		var se *storageError
		if errors.As(err, &se) {
			respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to store annotation run", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "annotation failed", nil)
	}
}

func (h *Handler) requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func retryAfterSeconds(d time.Duration) string {
	if d <= 0 {
		d = time.Second
	}
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
