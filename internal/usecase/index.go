package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"smartindex/internal/adapter/cluster"
	"smartindex/internal/domain"
	"smartindex/internal/port"
)

const (
	defaultWorkers   = 4
	defaultBatchSize = 32
)

// IndexOptions tunes a build.
type IndexOptions struct {
	Workers     int
	BatchSize   int
	Clusters    int
	ClusterSeed uint64
}

// IndexUseCase builds and maintains the vector index for a corpus.
type IndexUseCase struct {
	walker    port.FileWalker
	extractor port.Extractor
	embedder  port.Embedder
	store     port.VectorStore
	opts      IndexOptions
	logger    logrus.FieldLogger

	// OnProgress, when set, is called once per walked file after its
	// outcome is known.
	OnProgress func(processed, total int, path string)
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(
	walker port.FileWalker,
	extractor port.Extractor,
	embedder port.Embedder,
	store port.VectorStore,
	opts IndexOptions,
	logger logrus.FieldLogger,
) *IndexUseCase {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &IndexUseCase{
		walker:    walker,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		opts:      opts,
		logger:    logger,
	}
}

// pending is a file that made it through extraction and waits for a vector.
type pending struct {
	slot int
	doc  domain.Document
	vec  []float32
}

// BuildIndex indexes every supported file under root. Per-file problems are
// recorded in the report; only a bad root, a cancelled context or a store
// failure return an error.
func (u *IndexUseCase) BuildIndex(ctx context.Context, root string) (*domain.BuildReport, error) {
	start := time.Now()
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("index root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("index root %s is not a directory", absRoot)
	}

	report := &domain.BuildReport{RunID: uuid.NewString(), Root: absRoot}
	log := u.logger.WithFields(logrus.Fields{"run_id": report.RunID, "root": absRoot})
	log.Info("index build started")

	var files []port.FileInfo
	var walkFailures []domain.FileOutcome
	for fi, err := range u.walker.Walk(absRoot) {
		if err != nil {
			walkFailures = append(walkFailures, domain.FileOutcome{Path: fi.Path, Status: domain.StatusFailed, Reason: err.Error()})
			continue
		}
		files = append(files, fi)
	}

	total := len(files) + len(walkFailures)
	processed := 0
	progress := func(path string) {
		processed++
		if u.OnProgress != nil {
			u.OnProgress(processed, total, path)
		}
	}
	for _, o := range walkFailures {
		log.WithFields(logrus.Fields{"path": o.Path, "error": o.Reason}).Warn("walk error")
		report.Record(o)
		progress(o.Path)
	}

	outcomes := make([]domain.FileOutcome, len(files))
	docs := u.extractAll(ctx, files, outcomes)

	var ready []pending
	for i, f := range files {
		o := outcomes[i]
		switch {
		case o.Status == "":
			continue
		case o.Status != domain.StatusIndexed:
			log.WithFields(logrus.Fields{"path": f.Path, "status": o.Status}).Debug(o.Reason)
			report.Record(o)
			progress(f.Path)
		default:
			ready = append(ready, pending{slot: i, doc: docs[i]})
		}
	}
	if err := ctx.Err(); err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	ready = u.embedAll(ctx, ready, outcomes)
	if err := ctx.Err(); err != nil {
		report.Duration = time.Since(start)
		return report, err
	}
	for _, p := range pendingFailures(ready, outcomes) {
		report.Record(outcomes[p])
		progress(files[p].Path)
	}
	ready = withVectors(ready)

	if u.opts.Clusters > 0 && len(ready) > 0 {
		ids := make([]string, len(ready))
		vecs := make([][]float32, len(ready))
		for i, p := range ready {
			ids[i] = p.doc.Path
			vecs[i] = p.vec
		}
		groups, err := cluster.Groups(ids, vecs, u.opts.Clusters, u.opts.ClusterSeed)
		if err != nil {
			log.WithError(err).Warn("grouping skipped")
		} else {
			report.Clusters = groups
		}
	}

	for begin := 0; begin < len(ready); begin += u.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		end := min(begin+u.opts.BatchSize, len(ready))
		batch := ready[begin:end]

		items := make([]port.VectorItem, len(batch))
		for i, p := range batch {
			items[i] = toVectorItem(p.doc, p.vec)
			if g, ok := report.Clusters[p.doc.Path]; ok {
				items[i].Metadata[domain.MetaCluster] = strconv.Itoa(g)
			}
		}
		if err := u.store.Upsert(ctx, items); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("write index: %w", err)
		}
		for _, p := range batch {
			report.Record(domain.FileOutcome{Path: p.doc.Path, Status: domain.StatusIndexed})
			progress(p.doc.Path)
		}
	}

	removed, err := u.pruneStale(ctx, absRoot, report)
	if err != nil {
		report.Duration = time.Since(start)
		return report, err
	}
	report.Removed = removed

	if err := u.store.MarkReady(ctx); err != nil {
		return report, fmt.Errorf("mark index ready: %w", err)
	}

	report.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"indexed":  report.Indexed,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"removed":  report.Removed,
		"duration": report.Duration.Round(time.Millisecond),
	}).Info("index build finished")
	return report, nil
}

// pruneStale deletes entries under root that this run did not index: files
// that were deleted, or that are now skipped or failing. Entries outside
// root belong to other corpora or were added by hand and are left alone.
func (u *IndexUseCase) pruneStale(ctx context.Context, root string, report *domain.BuildReport) (int, error) {
	stored, err := u.store.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list index: %w", err)
	}

	indexed := make(map[string]struct{}, report.Indexed)
	for _, o := range report.Outcomes {
		if o.Status == domain.StatusIndexed {
			indexed[o.Path] = struct{}{}
		}
	}

	var stale []string
	for _, id := range stored {
		if !underRoot(root, id) {
			continue
		}
		if _, ok := indexed[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := u.store.Delete(ctx, stale); err != nil {
		return 0, fmt.Errorf("remove stale entries: %w", err)
	}
	u.logger.WithFields(logrus.Fields{"root": root, "removed": len(stale)}).Info("stale entries removed")
	return len(stale), nil
}

func underRoot(root, path string) bool {
	return path == root || strings.HasPrefix(path, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}

// extractAll runs extraction in parallel. outcomes[i] is set to indexed for
// success (the final status is decided later), skipped or failed; it stays
// empty for files never started because ctx was done.
func (u *IndexUseCase) extractAll(ctx context.Context, files []port.FileInfo, outcomes []domain.FileOutcome) []domain.Document {
	docs := make([]domain.Document, len(files))

	var g errgroup.Group
	g.SetLimit(u.opts.Workers)
	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			doc, err := u.extractor.Extract(ctx, f.Path)
			outcomes[i] = classify(f.Path, doc, err)
			if err == nil {
				docs[i] = doc
			}
			return nil
		})
	}
	g.Wait()
	return docs
}

func classify(path string, doc domain.Document, err error) domain.FileOutcome {
	switch {
	case err == nil:
		return domain.FileOutcome{Path: path, Status: domain.StatusIndexed}
	case errors.Is(err, domain.ErrUnsupported):
		return domain.FileOutcome{Path: path, Status: domain.StatusSkipped, Reason: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.FileOutcome{}
	default:
		return domain.FileOutcome{Path: path, Status: domain.StatusFailed, Reason: err.Error()}
	}
}

// embedAll fills in vectors batch by batch. A failing batch is retried one
// document at a time so a single bad input fails alone; documents that still
// fail get a failed outcome.
func (u *IndexUseCase) embedAll(ctx context.Context, ready []pending, outcomes []domain.FileOutcome) []pending {
	for begin := 0; begin < len(ready); begin += u.opts.BatchSize {
		if ctx.Err() != nil {
			return ready
		}
		end := min(begin+u.opts.BatchSize, len(ready))
		batch := ready[begin:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.doc.Text
		}
		vecs, err := embedMany(ctx, u.embedder, texts)
		if err == nil {
			for i := range batch {
				batch[i].vec = vecs[i]
			}
			continue
		}

		u.logger.WithError(err).WithField("batch", len(batch)).Warn("batch embedding failed, retrying per document")
		for i := range batch {
			if ctx.Err() != nil {
				return ready
			}
			vec, err := embedOne(ctx, u.embedder, batch[i].doc.Text)
			if err != nil {
				outcomes[batch[i].slot] = domain.FileOutcome{
					Path:   batch[i].doc.Path,
					Status: domain.StatusFailed,
					Reason: err.Error(),
				}
				continue
			}
			batch[i].vec = vec
		}
	}
	return ready
}

func pendingFailures(ready []pending, outcomes []domain.FileOutcome) []int {
	var slots []int
	for _, p := range ready {
		if outcomes[p.slot].Status == domain.StatusFailed {
			slots = append(slots, p.slot)
		}
	}
	return slots
}

func withVectors(ready []pending) []pending {
	out := ready[:0]
	for _, p := range ready {
		if p.vec != nil {
			out = append(out, p)
		}
	}
	return out
}

func toVectorItem(doc domain.Document, vec []float32) port.VectorItem {
	meta := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	if _, ok := meta[domain.MetaSource]; !ok {
		meta[domain.MetaSource] = doc.Path
	}
	return port.VectorItem{
		ID:       doc.Path,
		Vector:   vec,
		Content:  doc.Text,
		Metadata: meta,
	}
}

// AddDocument extracts, embeds and inserts a single file, replacing any
// previous entry for the same path. Unsupported files come back as skipped
// with a nil error.
func (u *IndexUseCase) AddDocument(ctx context.Context, path string) (domain.FileOutcome, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return domain.FileOutcome{Path: path, Status: domain.StatusFailed, Reason: err.Error()}, err
	}
	log := u.logger.WithField("path", absPath)

	doc, err := u.extractor.Extract(ctx, absPath)
	outcome := classify(absPath, doc, err)
	switch outcome.Status {
	case "":
		return domain.FileOutcome{Path: absPath, Status: domain.StatusFailed, Reason: err.Error()}, err
	case domain.StatusSkipped:
		log.Debug(outcome.Reason)
		return outcome, nil
	case domain.StatusFailed:
		log.WithError(err).Warn("extraction failed")
		return outcome, err
	}

	vec, err := embedOne(ctx, u.embedder, doc.Text)
	if err != nil {
		log.WithError(err).Warn("embedding failed")
		return domain.FileOutcome{Path: absPath, Status: domain.StatusFailed, Reason: err.Error()}, err
	}

	if err := u.store.Upsert(ctx, []port.VectorItem{toVectorItem(doc, vec)}); err != nil {
		return domain.FileOutcome{Path: absPath, Status: domain.StatusFailed, Reason: err.Error()}, fmt.Errorf("write index: %w", err)
	}
	if err := u.store.MarkReady(ctx); err != nil {
		return domain.FileOutcome{Path: absPath, Status: domain.StatusFailed, Reason: err.Error()}, fmt.Errorf("mark index ready: %w", err)
	}

	log.Info("document indexed")
	return domain.FileOutcome{Path: absPath, Status: domain.StatusIndexed}, nil
}

// RemoveDocument drops the entry for path and reports whether there was one.
func (u *IndexUseCase) RemoveDocument(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	if _, err := u.store.Get(ctx, absPath); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("look up %s: %w", absPath, err)
	}
	if err := u.store.Delete(ctx, []string{absPath}); err != nil {
		return false, fmt.Errorf("remove %s: %w", absPath, err)
	}
	u.logger.WithField("path", absPath).Info("document removed")
	return true, nil
}

// RemoveTree drops every entry stored under dir and returns how many went.
func (u *IndexUseCase) RemoveTree(ctx context.Context, dir string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	stored, err := u.store.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list index: %w", err)
	}
	var gone []string
	for _, id := range stored {
		if id != absDir && underRoot(absDir, id) {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}
	if err := u.store.Delete(ctx, gone); err != nil {
		return 0, fmt.Errorf("remove %s: %w", absDir, err)
	}
	u.logger.WithFields(logrus.Fields{"dir": absDir, "removed": len(gone)}).Info("directory removed")
	return len(gone), nil
}

// ClearIndex empties the index and resets its readiness.
func (u *IndexUseCase) ClearIndex(ctx context.Context) error {
	if err := u.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	u.logger.Info("index cleared")
	return nil
}
