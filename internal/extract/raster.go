package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoPageImage is returned when a page carries no raster to recognize.
var ErrNoPageImage = errors.New("page has no embedded image")

// PageCount returns the number of pages pdfcpu reads from the file.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count for %s: %w", path, err)
	}
	return n, nil
}

// PageImage returns the largest image placed on page pageNr as PNG (or
// JPEG) bytes. Scanned PDFs carry one full-page image per page, which is
// the raster fed to recognition.
func PageImage(path string, pageNr int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer f.Close()

	pages, err := api.ExtractImagesRaw(f, []string{strconv.Itoa(pageNr)}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to extract images from page %d: %w", pageNr, err)
	}

	var best *model.Image
	for _, images := range pages {
		for objNr := range images {
			img := images[objNr]
			if img.Reader == nil || img.Thumb {
				continue
			}
			if best == nil || img.Width*img.Height > best.Width*best.Height {
				best = &img
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("page %d: %w", pageNr, ErrNoPageImage)
	}

	data, err := io.ReadAll(best.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read image of page %d: %w", pageNr, err)
	}
	return NormalizeImage(data, "."+best.FileType)
}
