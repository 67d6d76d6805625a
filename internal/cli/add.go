package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"smartindex/internal/domain"
)

var addCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Add or refresh individual files in the index",
	Long: `Extract, embed and store the given files without rebuilding the whole
index. A file that is already indexed is replaced.

Examples:
  smartindex add notes/meeting.docx
  smartindex add scans/*.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove <file>...",
	Short: "Remove files from the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, err := openSession(ctx, GetRootDir(), GetConfig())
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.prepareBuild(ctx); err != nil {
		return err
	}

	var indexed, failed int
	for _, arg := range args {
		outcome, err := sess.indexer.AddDocument(ctx, arg)
		switch {
		case err != nil:
			failed++
			fmt.Printf("  failed   %s: %v\n", arg, err)
		case outcome.Status == domain.StatusSkipped:
			fmt.Printf("  skipped  %s: %s\n", outcome.Path, outcome.Reason)
		default:
			indexed++
			fmt.Printf("  indexed  %s\n", outcome.Path)
		}
	}

	if indexed > 0 {
		if err := sess.commit(); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, err := openSession(ctx, GetRootDir(), GetConfig())
	if err != nil {
		return err
	}
	defer sess.Close()

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		found, err := sess.indexer.RemoveDocument(ctx, abs)
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", abs, err)
		}
		n, err := sess.indexer.RemoveTree(ctx, abs)
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", abs, err)
		}
		switch {
		case n > 0:
			fmt.Printf("  removed  %s (%d files)\n", abs, n)
		case found:
			fmt.Printf("  removed  %s\n", abs)
		default:
			fmt.Printf("  not indexed  %s\n", abs)
		}
	}
	return nil
}
