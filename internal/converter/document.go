package converter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
)

const (
	bodyFont = "body"

	// missingGlyph replaces runes the body font cannot draw.
	missingGlyph = '?'
)

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

var (
	bodyFace     *sfnt.Font
	bodyFaceErr  error
	bodyFaceOnce sync.Once
)

// loadBodyFace parses the embedded Go Regular font once. It covers Latin,
// Greek and Cyrillic.
func loadBodyFace() (*sfnt.Font, error) {
	bodyFaceOnce.Do(func() {
		bodyFace, bodyFaceErr = sfnt.Parse(goregular.TTF)
	})
	return bodyFace, bodyFaceErr
}

// TextToDocument renders text onto fixed-size pages, one text line per
// baseline with no wrapping. A new page starts when the next baseline would
// fall below the bottom margin. The font is embedded as a subset with a
// ToUnicode map, so the text can be extracted again.
func (c *Converter) TextToDocument(text string) ([]byte, error) {
	face, err := loadBodyFace()
	if err != nil {
		return nil, fmt.Errorf("failed to parse body font: %w", err)
	}

	lines := lineBreak.Split(text, -1)
	pages := c.paginate(lines)

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{
		PageSize: gopdf.Rect{W: c.layout.PageWidth, H: c.layout.PageHeight},
	})
	pdf.SetInfo(gopdf.PdfInfo{Creator: "Utility-App", Producer: "Utility-App"})

	if err := pdf.AddTTFFontData(bodyFont, goregular.TTF); err != nil {
		return nil, fmt.Errorf("failed to embed body font: %w", err)
	}
	if err := pdf.SetFont(bodyFont, "", c.layout.FontSize); err != nil {
		return nil, fmt.Errorf("failed to select body font: %w", err)
	}

	var glyphs sfnt.Buffer
	for _, page := range pages {
		pdf.AddPage()
		for _, l := range page {
			// gopdf measures y from the top edge
			pdf.SetXY(c.layout.Margin, c.layout.PageHeight-l.y)
			if err := pdf.Text(drawable(face, &glyphs, l.text)); err != nil {
				return nil, fmt.Errorf("failed to draw line: %w", err)
			}
		}
	}

	var raw bytes.Buffer
	if err := pdf.Write(&raw); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(raw.Bytes()), conf); err != nil {
		return nil, fmt.Errorf("rendered document does not validate: %w", err)
	}

	c.logger.WithFields("lines", len(lines), "pages", len(pages), "size", raw.Len()).Debug("Rendered text document")
	return raw.Bytes(), nil
}

// drawable replaces runes without a glyph in face by missingGlyph.
func drawable(face *sfnt.Font, buf *sfnt.Buffer, s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' {
			return r
		}
		if idx, err := face.GlyphIndex(buf, r); err != nil || idx == 0 {
			return missingGlyph
		}
		return r
	}, s)
}

// placedLine is a line of text and the baseline it is drawn on, measured
// from the bottom edge.
type placedLine struct {
	text string
	y    float64
}

func (c *Converter) paginate(lines []string) [][]placedLine {
	top := c.layout.PageHeight - c.layout.Margin
	y := top

	pages := [][]placedLine{nil}
	for _, line := range lines {
		if y < c.layout.Margin {
			pages = append(pages, nil)
			y = top
		}
		last := len(pages) - 1
		pages[last] = append(pages[last], placedLine{text: line, y: y})
		y -= c.layout.LineStep()
	}
	return pages
}
