package converter

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"golang.org/x/text/encoding/charmap"
)

// kerningSpace is the TJ adjustment, in thousandths of an em, treated as a
// word break.
const kerningSpace = -200

// DocumentToText extracts the text of every page. Lines are reconstructed
// from baseline changes; pages are separated by a newline. Strings are
// decoded through the font's ToUnicode map when it has one, otherwise as
// WinAnsiEncoding.
func (c *Converter) DocumentToText(buf []byte) (string, error) {
	ctx, err := readContext(buf)
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil {
			return "", fmt.Errorf("failed to read content of page %d: %w", pageNr, err)
		}
		if r == nil {
			pages = append(pages, "")
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("failed to read content of page %d: %w", pageNr, err)
		}
		pages = append(pages, extractPageText(content, c.pageFonts(ctx, pageNr)))
	}

	c.logger.WithFields("pages", ctx.PageCount).Debug("Extracted document text")
	return strings.Join(pages, "\n"), nil
}

// textState follows the text position through a content stream and groups
// shown strings into lines.
type textState struct {
	lines   []string
	current strings.Builder
	started bool
	lineY   float64
	y       float64
	leading float64
	font    *fontDecoder
}

func (s *textState) show(text string) {
	if s.started && s.y != s.lineY {
		s.lines = append(s.lines, s.current.String())
		s.current.Reset()
	}
	s.current.WriteString(text)
	s.started = true
	s.lineY = s.y
}

func (s *textState) text() string {
	if s.started {
		s.lines = append(s.lines, s.current.String())
	}
	return strings.Join(s.lines, "\n")
}

func extractPageText(content []byte, fonts map[string]*fontDecoder) string {
	st := &textState{}
	var operands []operand

	lex := &lexer{data: content}
	for {
		tok, ok := lex.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok.operand)
			continue
		}

		switch tok.op {
		case "BT":
			st.y = 0
		case "Tf":
			if len(operands) >= 2 {
				st.font = fonts[operands[len(operands)-2].name]
			}
		case "Tm":
			if len(operands) >= 6 {
				st.y = operands[len(operands)-1].number
			}
		case "Td", "TD":
			if len(operands) >= 2 {
				ty := operands[len(operands)-1].number
				st.y += ty
				if tok.op == "TD" {
					st.leading = -ty
				}
			}
		case "TL":
			if len(operands) >= 1 {
				st.leading = operands[len(operands)-1].number
			}
		case "T*":
			st.y -= st.leading
		case "Tj":
			if len(operands) >= 1 {
				st.show(st.font.decode(operands[len(operands)-1].str))
			}
		case "'", "\"":
			st.y -= st.leading
			if len(operands) >= 1 {
				st.show(st.font.decode(operands[len(operands)-1].str))
			}
		case "TJ":
			if len(operands) >= 1 {
				st.show(joinTJ(operands[len(operands)-1].array, st.font))
			}
		}
		operands = operands[:0]
	}
	return st.text()
}

func joinTJ(items []operand, font *fontDecoder) string {
	var b strings.Builder
	for _, it := range items {
		if it.isString {
			b.WriteString(font.decode(it.str))
		} else if it.number < kerningSpace {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

type tokenKind int

const (
	tokOperand tokenKind = iota
	tokOperator
)

// operand is a content stream operand. Strings keep their raw bytes; they
// are decoded once the font is known.
type operand struct {
	number   float64
	str      string
	isString bool
	name     string
	array    []operand
}

type token struct {
	kind tokenKind
	op   string
	operand
}

// lexer tokenizes a PDF content stream. It understands the object syntax
// needed to skip operands safely; dictionaries and inline images are
// consumed without interpretation.
type lexer struct {
	data []byte
	pos  int
}

func isWhite(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\f' || b == 0
}

func isDelim(b byte) bool {
	return strings.IndexByte("()<>[]{}/%", b) >= 0
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhite(b) {
			l.pos++
			continue
		}
		if b == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() (token, bool) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return token{}, false
	}

	b := l.data[l.pos]
	switch {
	case b == '(':
		return token{kind: tokOperand, operand: operand{str: l.literal(), isString: true}}, true
	case b == '<' && l.peek(1) == '<':
		l.skipDict()
		return token{kind: tokOperand}, true
	case b == '<':
		return token{kind: tokOperand, operand: operand{str: l.hexString(), isString: true}}, true
	case b == '[':
		l.pos++
		return token{kind: tokOperand, operand: operand{array: l.array()}}, true
	case b == '/':
		l.pos++
		return token{kind: tokOperand, operand: operand{name: l.word()}}, true
	case b == ']' || b == '>' || b == ')' || b == '{' || b == '}':
		l.pos++
		return l.next()
	}

	w := l.word()
	if n, err := strconv.ParseFloat(w, 64); err == nil {
		return token{kind: tokOperand, operand: operand{number: n}}, true
	}
	if w == "BI" {
		l.skipInlineImage()
		return token{kind: tokOperator, op: "EI"}, true
	}
	return token{kind: tokOperator, op: w}, true
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset < len(l.data) {
		return l.data[l.pos+offset]
	}
	return 0
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) array() []operand {
	var items []operand
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return items
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return items
		}
		tok, ok := l.next()
		if !ok {
			return items
		}
		if tok.kind == tokOperand {
			items = append(items, tok.operand)
		}
	}
}

func (l *lexer) skipDict() {
	depth := 0
	for l.pos < len(l.data) {
		switch {
		case l.data[l.pos] == '<' && l.peek(1) == '<':
			depth++
			l.pos += 2
		case l.data[l.pos] == '>' && l.peek(1) == '>':
			depth--
			l.pos += 2
			if depth == 0 {
				return
			}
		case l.data[l.pos] == '(':
			l.literal()
		default:
			l.pos++
		}
	}
}

func (l *lexer) skipInlineImage() {
	idx := bytes.Index(l.data[l.pos:], []byte("EI"))
	for idx >= 0 {
		end := l.pos + idx
		before := end == 0 || isWhite(l.data[end-1])
		after := end+2 >= len(l.data) || isWhite(l.data[end+2])
		if before && after {
			l.pos = end + 2
			return
		}
		next := bytes.Index(l.data[end+2:], []byte("EI"))
		if next < 0 {
			break
		}
		idx = end + 2 + next - l.pos
	}
	l.pos = len(l.data)
}

// literal reads a parenthesized string with escapes and nesting.
func (l *lexer) literal() string {
	l.pos++ // (
	var raw []byte
	depth := 1
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		l.pos++
		switch b {
		case '\\':
			if l.pos >= len(l.data) {
				break
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b':
				raw = append(raw, '\b')
			case 'f':
				raw = append(raw, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					raw = append(raw, byte(v))
				} else {
					raw = append(raw, e)
				}
			}
		case '(':
			depth++
			raw = append(raw, b)
		case ')':
			depth--
			if depth == 0 {
				return string(raw)
			}
			raw = append(raw, b)
		default:
			raw = append(raw, b)
		}
	}
	return string(raw)
}

func (l *lexer) hexString() string {
	l.pos++ // <
	end := bytes.IndexByte(l.data[l.pos:], '>')
	if end < 0 {
		end = len(l.data) - l.pos
	}
	digits := make([]byte, 0, end)
	for _, b := range l.data[l.pos : l.pos+end] {
		if !isWhite(b) {
			digits = append(digits, b)
		}
	}
	l.pos += end + 1
	if len(digits)%2 != 0 {
		digits = append(digits, '0')
	}
	raw := make([]byte, len(digits)/2)
	if _, err := hex.Decode(raw, digits); err != nil {
		return ""
	}
	return string(raw)
}

func decodeWinAnsi(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		b.WriteRune(charmap.Windows1252.DecodeByte(raw[i]))
	}
	return b.String()
}
