package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"smartindex/config"
	"smartindex/internal/domain"
)

var (
	indexFresh    bool
	indexClusters int
	indexQuiet    bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build the search index for a directory",
	Long: `Walk a directory, extract text from every supported document, embed it
and store the vectors. With the bolt backend the index is stored in
.smartindex/index.db within the target directory.

Files that cannot be read are reported and skipped; they never abort the
build.

Examples:
  smartindex index                    # Index current directory
  smartindex index ~/Documents        # Index specific directory
  smartindex index --fresh            # Drop the existing index first
  smartindex index --clusters 8       # Group documents into 8 topics`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexFresh, "fresh", false, "clear the existing index before building")
	indexCmd.Flags().IntVar(&indexClusters, "clusters", -1, "number of topic groups (default from config, 0 disables)")
	indexCmd.Flags().BoolVar(&indexQuiet, "quiet", false, "disable the progress bar")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()
	if indexClusters >= 0 {
		cfg.Index.Clusters = indexClusters
	}

	ctx := cmd.Context()
	sess, err := openSession(ctx, path, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.prepareBuild(ctx); err != nil {
		return err
	}
	if indexFresh {
		fmt.Println("Clearing existing index...")
		if err := sess.indexer.ClearIndex(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	fmt.Printf("Scanning %s...\n", path)
	if !indexQuiet {
		sess.indexer.OnProgress = newProgressReporter()
	}

	report, err := sess.indexer.BuildIndex(ctx, path)
	if err != nil {
		if report != nil {
			printReport(report)
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	if err := sess.commit(); err != nil {
		return err
	}

	printReport(report)
	fmt.Printf("\nEmbedding model: %s (%d dimensions)\n", sess.embedder.ModelName(), sess.embedder.Dimension())
	switch cfg.Store.Backend {
	case "milvus":
		fmt.Printf("Index stored in milvus collection: %s\n", cfg.Store.Milvus.Collection)
	case "memory":
		fmt.Println("Index kept in memory only; it is discarded when this command exits.")
	default:
		fmt.Printf("Index stored at: %s\n", config.IndexDBPath(path))
	}
	return nil
}

// newProgressReporter returns an OnProgress callback that draws a progress
// bar with an ETA once the total file count is known.
func newProgressReporter() func(processed, total int, path string) {
	var (
		bar         *progressbar.ProgressBar
		mu          sync.Mutex
		startTime   time.Time
		initialized bool
	)

	return func(processed, total int, _ string) {
		mu.Lock()
		defer mu.Unlock()

		if !initialized {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
			initialized = true
		}

		_ = bar.Set(processed)

		if processed > 0 {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

func printReport(report *domain.BuildReport) {
	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Files indexed:  %d\n", report.Indexed)
	fmt.Printf("  Files skipped:  %d (unsupported)\n", report.Skipped)
	fmt.Printf("  Files failed:   %d\n", report.Failed)
	if report.Removed > 0 {
		fmt.Printf("  Files removed:  %d (no longer indexable)\n", report.Removed)
	}
	fmt.Printf("  Duration:       %s\n", formatDuration(report.Duration))

	if len(report.Clusters) > 0 {
		sizes := make(map[int]int)
		for _, c := range report.Clusters {
			sizes[c]++
		}
		ids := make([]int, 0, len(sizes))
		for c := range sizes {
			ids = append(ids, c)
		}
		sort.Ints(ids)
		fmt.Printf("  Topic groups:   %d\n", len(ids))
		for _, c := range ids {
			fmt.Printf("    #%d: %d files\n", c, sizes[c])
		}
	}

	if failures := report.Failures(); len(failures) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, f := range failures {
			fmt.Printf("  - %s: %s\n", f.Path, f.Reason)
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
