package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
)

// PDFExtractor pulls plain text page by page. Pages that cannot be decoded
// are logged and contribute an empty line.
type PDFExtractor struct {
	logger logrus.FieldLogger
}

func (e *PDFExtractor) Format() string { return "pdf" }

func (e *PDFExtractor) ExtractText(ctx context.Context, path string) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	logger := e.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	pages := reader.NumPage()
	out := make([]string, 0, pages)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			logger.WithFields(logrus.Fields{"path": path, "page": i}).Warn("skipping empty pdf page")
			out = append(out, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		pageText, err := p.GetPlainText(fonts)
		if err != nil {
			logger.WithFields(logrus.Fields{"path": path, "page": i}).WithError(err).Warn("skipping undecodable pdf page")
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(pageText))
	}
	return strings.Join(out, "\n"), nil
}
