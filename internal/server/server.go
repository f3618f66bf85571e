package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
	"github.com/pagelens/pagelens/internal/pipeline"
)

// Server exposes the pipeline service over HTTP.
type Server struct {
	svc    *pipeline.Service
	cfg    *config.Config
	log    *logger.Logger
	engine *gin.Engine
}

func New(svc *pipeline.Service, cfg *config.Config, log *logger.Logger) *Server {
	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		log:    log.With("component", "server"),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	{
		api.POST("/documents", s.submitDocument)
		api.POST("/documents/:id/runs", s.startRun)
		api.DELETE("/documents/:id/runs", s.cancelRun)
		api.GET("/documents/:id/progress", s.progress)
		api.GET("/documents/:id/pages/:page", s.getPage)
		api.GET("/documents/:id/export", s.export)
		api.POST("/documents/:id/invalidate", s.invalidate)
	}
}

// Run starts the HTTP listener and blocks until it exits.
func (s *Server) Run() error {
	s.log.Info("listening", "addr", s.cfg.ListenAddr)
	return s.engine.Run(s.cfg.ListenAddr)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) submitDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadMB<<20)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing form file 'file'"})
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF files are accepted"})
		return
	}

	// Spool the upload to a temp path so identity derivation and PDF
	// optimization can stream from disk.
	tmp := filepath.Join(os.TempDir(), "pagelens-upload-"+uuid.NewString()+".pdf")
	if err := c.SaveUploadedFile(fileHeader, tmp); err != nil {
		s.log.Error("failed to spool upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	defer os.Remove(tmp)

	result, err := s.svc.SubmitDocument(c.Request.Context(), tmp, fileHeader.Filename)
	if err != nil {
		s.log.Error("submission failed", "filename", fileHeader.Filename, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (s *Server) startRun(c *gin.Context) {
	var req models.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	run, err := s.svc.StartRun(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"documentId":  run.DocumentID,
		"executionId": run.ExecutionID,
		"pages":       len(run.Pages),
	})
}

func (s *Server) cancelRun(c *gin.Context) {
	id := c.Param("id")
	if !s.svc.CancelRun(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active run for document"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"documentId": id, "cancelling": true})
}

func (s *Server) progress(c *gin.Context) {
	p, err := s.svc.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getPage(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be an integer"})
		return
	}
	result, err := s.svc.GetPage(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) export(c *gin.Context) {
	id := c.Param("id")
	switch c.DefaultQuery("format", "json") {
	case "markdown":
		doc, err := s.svc.ExportMarkdown(c.Request.Context(), id)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+id+`.md"`)
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(doc))
	case "json":
		artifacts, err := s.svc.ExportAll(c.Request.Context(), id)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documentId": id, "pages": artifacts})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or markdown"})
	}
}

func (s *Server) invalidate(c *gin.Context) {
	var req models.InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	removed, err := s.svc.Invalidate(c.Request.Context(), c.Param("id"), req.Pages)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.InvalidateResult{DocumentID: c.Param("id"), Removed: removed})
}

// renderError maps the service's sentinel errors onto HTTP statuses.
func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrInvalidPages):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
