package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"smartindex/internal/domain"
)

// ImageExtensions are routed through OCR.
var ImageExtensions = []string{".png", ".jpg", ".jpeg"}

// ErrOCRUnavailable is returned when no OCR engine can be reached.
var ErrOCRUnavailable = errors.New("ocr engine unavailable")

// OCR recognises text in an image file.
type OCR interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

type ImageExtractor struct {
	ocr OCR
}

func NewImageExtractor(ocr OCR) *ImageExtractor {
	return &ImageExtractor{ocr: ocr}
}

func (e *ImageExtractor) Format() string { return "image" }

func (e *ImageExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	if err := checkImage(path); err != nil {
		return "", err
	}
	text, err := e.ocr.Recognize(ctx, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *ImageExtractor) Metadata(path string) map[string]string {
	return map[string]string{domain.MetaImagePath: path}
}

func checkImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("invalid image: %w", err)
	}
	return nil
}
