package cli

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"smartindex/internal/adapter/httpapi"
	"smartindex/internal/domain"
)

var (
	serveAddr     string
	serveBuild    bool
	serveReadOnly bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Long: `Start an HTTP server exposing search, statistics and document upload.

Endpoints:
  GET  /api/health      liveness and index readiness
  GET  /api/stats       document count and embedding model
  POST /api/search      {"query": "...", "k": 5, "threshold": 0.5}
  POST /api/documents   multipart upload (field "file"), indexed immediately

Examples:
  smartindex serve
  smartindex serve --addr 127.0.0.1:9000 --build`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveBuild, "build", false, "build the index before serving")
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "disable document uploads")
}

// committingIndexer records the embedder fingerprint after each upload so
// the persisted index stays consistent with the running model.
type committingIndexer struct {
	sess *session
}

func (c committingIndexer) AddDocument(ctx context.Context, path string) (domain.FileOutcome, error) {
	outcome, err := c.sess.indexer.AddDocument(ctx, path)
	if err != nil || outcome.Status != domain.StatusIndexed {
		return outcome, err
	}
	return outcome, c.sess.commit()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	root := GetRootDir()

	sess, err := openSession(ctx, root, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	if serveBuild {
		if err := sess.prepareBuild(ctx); err != nil {
			return err
		}
		report, err := sess.indexer.BuildIndex(ctx, root)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		if err := sess.commit(); err != nil {
			return err
		}
		printReport(report)
	} else if err := sess.checkReadable(); err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	var indexer httpapi.Indexer
	if !serveReadOnly {
		indexer = committingIndexer{sess: sess}
	}

	srv := httpapi.NewServer(httpapi.Config{
		Addr:             addr,
		UploadDir:        cfg.ResolveUploadDir(root),
		DefaultK:         cfg.Retrieve.TopK,
		DefaultThreshold: cfg.Retrieve.Threshold,
		RequestTimeout:   cfg.Server.RequestTimeout,
		MaxUploadBytes:   int64(cfg.Server.MaxUploadMB) << 20,
		AllowOrigins:     cfg.Server.AllowOrigins,
		Accepts:          sess.registry.Supports,
	}, sess.retriever, indexer, logger)

	fmt.Printf("Serving %s on %s\n", root, addr)
	return srv.Run(ctx)
}
