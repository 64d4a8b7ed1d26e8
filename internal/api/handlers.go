package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"tubesum/internal/apperr"
	"tubesum/internal/config"
	"tubesum/internal/logger"
	"tubesum/internal/models"
)

const (
	maxUploadBytes = 100 << 20
	sniffBytes     = 3072

	welcomeText = "Welcome to the backend! Please use /api/summarize to summarize a video."
)

// Summarizer is the request pipeline the handlers drive.
type Summarizer interface {
	Summarize(ctx context.Context, url string) (*models.Summary, error)
	SummarizeUpload(ctx context.Context, src io.Reader, filename string) (*models.Summary, error)
	Ask(ctx context.Context, req models.AskRequest) (*models.Answer, error)
}

// TempDir reports on the scratch directory for /health.
type TempDir interface {
	DirExists() bool
}

// Handler wires HTTP routes to the summarize pipeline.
type Handler struct {
	pipeline      Summarizer
	temp          TempDir
	logger        logger.Logger
	production    bool
	publicBaseURL string
	maxQuestions  int
	now           func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(pipeline Summarizer, temp TempDir, cfg *config.Config, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		pipeline:      pipeline,
		temp:          temp,
		logger:        log,
		production:    cfg.IsProduction(),
		publicBaseURL: strings.TrimRight(cfg.BasicConfig.PublicBaseURL, "/"),
		maxQuestions:  cfg.BasicConfig.MaxQuestions,
		now:           time.Now,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.welcome)
	router.GET("/health", h.health)
	api := router.Group("/api")
	api.Use(requestID())
	api.GET("/config", h.clientConfig)
	api.POST("/summarize", h.summarize)
	api.POST("/summarize/upload", h.summarizeUpload)
	api.POST("/ask", h.ask)
}

func (h *Handler) welcome(c *gin.Context) {
	c.String(http.StatusOK, welcomeText)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"timestamp":     h.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		"tempDirectory": h.temp.DirExists(),
	})
}

// clientConfig tells the browser form where the API lives and how many
// follow-up questions it should allow. The cap is advisory; /api/ask does not
// track callers.
func (h *Handler) clientConfig(c *gin.Context) {
	base := h.publicBaseURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	c.JSON(http.StatusOK, gin.H{
		"apiBaseUrl":   base,
		"maxQuestions": h.maxQuestions,
	})
}

func (h *Handler) summarize(c *gin.Context) {
	var req models.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}
	summary, err := h.pipeline.Summarize(c.Request.Context(), req.URL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) summarizeUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+(1<<20))
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "type": apperr.KindValidation})
			return
		}
		h.fail(c, apperr.Wrap(apperr.KindValidation, err, "file is required"))
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "type": apperr.KindValidation})
		return
	}
	f, err := file.Open()
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.KindValidation, err, "open file failed"))
		return
	}
	defer f.Close()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.fail(c, apperr.Wrap(apperr.KindValidation, err, "read file failed"))
		return
	}
	head = head[:n]
	if n > 0 && !isMediaType(mimetype.Detect(head)) {
		h.fail(c, apperr.New(apperr.KindValidation, "unsupported file type"))
		return
	}

	src := io.MultiReader(bytes.NewReader(head), f)
	summary, err := h.pipeline.SummarizeUpload(c.Request.Context(), src, filepath.Base(file.Filename))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ask(c *gin.Context) {
	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}
	answer, err := h.pipeline.Ask(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// fail writes the error body. Stacks are only exposed outside production.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	if kind == apperr.KindInternal && h.production {
		msg = "internal server error"
	}
	body := gin.H{"error": msg, "type": kind}
	if !h.production {
		if stack := apperr.Stack(err); stack != "" {
			body["details"] = stack
		}
	}
	h.logger.Warn(c.Request.Context(), "%s %s: %s", c.Request.Method, c.FullPath(), err)
	c.JSON(apperr.HTTPStatus(kind), body)
}

func isMediaType(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		mt := m.String()
		if strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/") || mt == "application/ogg" {
			return true
		}
	}
	return false
}
