package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"smartindex/internal/adapter/fs"
	"smartindex/internal/domain"
)

var watchBuild bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index in sync with the directory",
	Long: `Watch the corpus root for changes. Created and modified files are
re-indexed, deleted and renamed files are removed from the index. A
directory moved into the root is indexed as a whole, and one moved out
takes its files with it.
Stop with Ctrl+C.

Examples:
  smartindex watch
  smartindex watch --build     # Build the index once before watching`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchBuild, "build", false, "build the index before watching")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root := GetRootDir()

	sess, err := openSession(ctx, root, GetConfig())
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.prepareBuild(ctx); err != nil {
		return err
	}
	if watchBuild {
		report, err := sess.indexer.BuildIndex(ctx, root)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		if err := sess.commit(); err != nil {
			return err
		}
		printReport(report)
	}

	watcher, err := fs.NewWatcher(root, sess.walker)
	if err != nil {
		return err
	}
	defer watcher.Close()

	changes, errs, err := watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	fmt.Printf("Watching %s for changes (Ctrl+C to stop)...\n", root)
	return syncChanges(ctx, sess, changes, errs)
}

// syncChanges applies watcher events to the index until the streams close.
func syncChanges(ctx context.Context, sess *session, changes <-chan fs.Change, errs <-chan error) error {
	for changes != nil || errs != nil {
		select {
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			applyChange(ctx, sess, change)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.WithError(err).Warn("watch error")
		}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func applyChange(ctx context.Context, sess *session, change fs.Change) {
	log := logger.WithFields(logrus.Fields{"path": change.Path, "change": change.Kind.String()})

	switch change.Kind {
	case fs.ChangeRemoved:
		if _, err := sess.indexer.RemoveDocument(ctx, change.Path); err != nil {
			log.WithError(err).Warn("failed to remove document")
		}
	case fs.ChangeDirRemoved:
		if _, err := sess.indexer.RemoveTree(ctx, change.Path); err != nil {
			log.WithError(err).Warn("failed to remove directory")
		}
	case fs.ChangeUpserted:
		outcome, err := sess.indexer.AddDocument(ctx, change.Path)
		if err != nil {
			log.WithError(err).Warn("failed to index document")
			return
		}
		if outcome.Status == domain.StatusIndexed {
			if err := sess.commit(); err != nil {
				log.WithError(err).Warn("failed to record schema")
			}
		}
	}
}
