package converter

// Layout describes the fixed page geometry used when rendering text.
// All values are in PDF points.
type Layout struct {
	PageWidth  float64
	PageHeight float64
	Margin     float64
	FontSize   float64
	LineGap    float64
}

// DefaultLayout is an A4 page with a 50pt margin and 12pt text.
func DefaultLayout() Layout {
	return Layout{
		PageWidth:  595.28,
		PageHeight: 841.89,
		Margin:     50,
		FontSize:   12,
		LineGap:    2,
	}
}

// LineStep is the vertical distance between baselines.
func (l Layout) LineStep() float64 {
	return l.FontSize + l.LineGap
}

// LinesPerPage returns how many lines fit between the top and bottom margins.
func (l Layout) LinesPerPage() int {
	n := 0
	for y := l.PageHeight - l.Margin; y >= l.Margin; y -= l.LineStep() {
		n++
	}
	return n
}

func (l Layout) valid() bool {
	return l.PageWidth > 0 && l.PageHeight > 0 && l.Margin >= 0 &&
		l.FontSize > 0 && l.LineGap >= 0 && l.PageHeight-2*l.Margin >= l.LineStep()
}
