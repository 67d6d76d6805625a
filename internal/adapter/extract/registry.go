package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"smartindex/internal/domain"
	"smartindex/internal/port"
)

// FormatExtractor turns one file format into plain text.
type FormatExtractor interface {
	Format() string
	ExtractText(ctx context.Context, path string) (string, error)
}

// metadataProvider is implemented by extractors that attach extra metadata.
type metadataProvider interface {
	Metadata(path string) map[string]string
}

// Registry dispatches on the lower-cased file extension.
type Registry struct {
	byExt  map[string]FormatExtractor
	logger logrus.FieldLogger
}

func NewRegistry(logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		byExt:  make(map[string]FormatExtractor),
		logger: logger,
	}
}

// NewDefaultRegistry registers every built-in format. Images go through ocr;
// a nil ocr leaves image formats unregistered.
func NewDefaultRegistry(ocr OCR, logger logrus.FieldLogger) *Registry {
	r := NewRegistry(logger)

	text := &TextExtractor{}
	for _, ext := range TextExtensions {
		r.Register(ext, text)
	}
	r.Register(".docx", &DocxExtractor{})
	xlsx := &SpreadsheetExtractor{}
	r.Register(".xlsx", xlsx)
	r.Register(".xlsm", xlsx)
	r.Register(".pdf", &PDFExtractor{logger: r.logger})

	if ocr != nil {
		img := NewImageExtractor(ocr)
		for _, ext := range ImageExtensions {
			r.Register(ext, img)
		}
	}
	return r
}

// Register binds ext (with or without the leading dot) to fe, replacing any
// previous binding.
func (r *Registry) Register(ext string, fe FormatExtractor) {
	r.byExt[normalizeExt(ext)] = fe
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extract reads path with the extractor registered for its extension.
// Unknown extensions yield domain.ErrUnsupported; every other failure is a
// *domain.ExtractionError.
func (r *Registry) Extract(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}

	ext := normalizeExt(filepath.Ext(path))
	fe, ok := r.byExt[ext]
	if !ok {
		if ext == "" {
			ext = "(none)"
		}
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrUnsupported, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, &domain.ExtractionError{Path: path, Err: err}
	}
	if info.IsDir() {
		return domain.Document{}, &domain.ExtractionError{Path: path, Err: fmt.Errorf("is a directory")}
	}

	text, err := fe.ExtractText(ctx, path)
	if err != nil {
		return domain.Document{}, &domain.ExtractionError{Path: path, Err: err}
	}

	meta := map[string]string{
		domain.MetaSource:  path,
		domain.MetaFormat:  fe.Format(),
		domain.MetaModTime: info.ModTime().UTC().Format(time.RFC3339),
	}
	if mp, ok := fe.(metadataProvider); ok {
		for k, v := range mp.Metadata(path) {
			meta[k] = v
		}
	}

	r.logger.WithFields(logrus.Fields{
		"path":   path,
		"format": fe.Format(),
		"chars":  len(text),
	}).Debug("extracted document")

	return domain.Document{
		Path:     path,
		Text:     text,
		Metadata: meta,
		ModTime:  info.ModTime(),
	}, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

var _ port.Extractor = (*Registry)(nil)
