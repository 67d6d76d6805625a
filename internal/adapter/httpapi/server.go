package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"smartindex/internal/domain"
)

// Searcher answers queries and reports index state.
type Searcher interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]domain.SearchResult, error)
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// Indexer adds a single file to the index.
type Indexer interface {
	AddDocument(ctx context.Context, path string) (domain.FileOutcome, error)
}

type Config struct {
	Addr             string
	UploadDir        string
	DefaultK         int
	DefaultThreshold float64
	RequestTimeout   time.Duration
	MaxUploadBytes   int64
	AllowOrigins     []string
	// Accepts, when set, rejects uploads by name before they are written.
	Accepts func(name string) bool
}

// Server is a thin HTTP surface over the search and index use cases.
type Server struct {
	cfg      Config
	searcher Searcher
	indexer  Indexer
	logger   logrus.FieldLogger
	engine   *gin.Engine
}

func NewServer(cfg Config, searcher Searcher, indexer Indexer, logger logrus.FieldLogger) *Server {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		cfg:      cfg,
		searcher: searcher,
		indexer:  indexer,
		logger:   logger,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes

	config := cors.DefaultConfig()
	if len(s.cfg.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.cfg.AllowOrigins
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(config))

	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/stats", s.stats)
		api.POST("/search", s.search)
		if s.indexer != nil {
			api.POST("/documents", s.upload)
		}
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.cfg.Addr).Info("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Microsecond),
		}).Debug("request")
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	stats, err := s.searcher.Stats(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Ready: stats.Ready})
}

func (s *Server) stats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	stats, err := s.searcher.Stats(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	k := s.cfg.DefaultK
	if req.K != nil {
		k = *req.K
	}
	threshold := s.cfg.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	results, err := s.searcher.Search(ctx, req.Query, k, threshold)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SearchResponse{
		Query:   req.Query,
		Results: results,
		Took:    time.Since(start).Milliseconds(),
	})
}

func (s *Server) upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "multipart field \"file\" is required"})
		return
	}
	if file.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes)})
		return
	}

	name := filepath.Base(strings.ReplaceAll(file.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid file name"})
		return
	}
	if s.cfg.Accepts != nil && !s.cfg.Accepts(name) {
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Error: fmt.Sprintf("%s: %s", domain.ErrUnsupported, filepath.Ext(name))})
		return
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		s.fail(c, err)
		return
	}
	dst := filepath.Join(s.cfg.UploadDir, uuid.NewString()[:8]+"-"+name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	outcome, err := s.indexer.AddDocument(ctx, dst)
	if err != nil || outcome.Status != domain.StatusIndexed {
		os.Remove(dst)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	if outcome.Status == domain.StatusSkipped {
		c.JSON(http.StatusUnsupportedMediaType, UploadResponse{Outcome: outcome})
		return
	}
	c.JSON(http.StatusCreated, UploadResponse{Outcome: outcome})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	entry := s.logger.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var extErr *domain.ExtractionError
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIndexNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &extErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
