package extract

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Margins are the header and footer bands, in points (1 pt = 1/72 inch),
// whose text is dropped.
type Margins struct {
	Top    float64
	Bottom float64
}

// PageMarker precedes the text of every page.
func PageMarker(n int) string {
	return fmt.Sprintf("\n--- Page %d ---\n", n)
}

// PDF returns the text of every page in order, each page prefixed by its
// marker.
func PDF(path string, m Margins) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat pdf: %w", err)
	}
	return readPDF(f, info.Size(), m)
}

type readSeekerAt interface {
	io.ReadSeeker
	io.ReaderAt
}

func readPDF(f readSeekerAt, size int64, m Margins) (string, error) {
	r, err := pdf.NewReader(f, size)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}
	heights := pageHeights(f)

	var b strings.Builder
	for n := 1; n <= r.NumPage(); n++ {
		b.WriteString(PageMarker(n))

		p := r.Page(n)
		if p.V.IsNull() {
			continue
		}
		lines, err := pageLines(p)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", n, err)
		}

		height := mediaBoxHeight(p)
		if n-1 < len(heights) {
			height = heights[n-1]
		}
		b.WriteString(bandText(lines, height, m.Top, m.Bottom))
	}
	return b.String(), nil
}

// pageHeights returns the page heights pdfcpu resolves, honouring inherited
// boxes. Files pdfcpu refuses to validate give nil.
func pageHeights(rs io.ReadSeeker) []float64 {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil
	}
	ctx, err := api.ReadValidateAndOptimize(rs, model.NewDefaultConfiguration())
	if err != nil {
		return nil
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil
	}
	heights := make([]float64, len(dims))
	for i, d := range dims {
		heights[i] = d.Height
	}
	return heights
}

// mediaBoxHeight walks up the page tree for the nearest MediaBox.
func mediaBoxHeight(p pdf.Page) float64 {
	for v := p.V; v.Kind() == pdf.Dict; v = v.Key("Parent") {
		if box := v.Key("MediaBox"); box.Kind() == pdf.Array && box.Len() == 4 {
			return math.Abs(box.Index(3).Float64() - box.Index(1).Float64())
		}
	}
	return 0
}
