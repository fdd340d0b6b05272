package converter

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// fontDecoder maps the character codes of one font to text. A nil decoder
// reads single-byte WinAnsiEncoding.
type fontDecoder struct {
	// codeLen is the byte width of a character code: 2 for composite
	// (Type0) fonts, 1 otherwise.
	codeLen int
	toUnicode map[uint32]string
}

func (f *fontDecoder) decode(raw string) string {
	if f == nil || len(f.toUnicode) == 0 {
		return decodeWinAnsi(raw)
	}

	var b strings.Builder
	for i := 0; i+f.codeLen <= len(raw); i += f.codeLen {
		code := codeValue(raw[i : i+f.codeLen])
		if s, ok := f.toUnicode[code]; ok {
			b.WriteString(s)
		} else {
			b.WriteRune(utf8.RuneError)
		}
	}
	return b.String()
}

// pageFonts builds decoders for the fonts in the page resources that carry
// a ToUnicode map. Fonts without one, or that fail to resolve, are left out
// and fall back to WinAnsiEncoding.
func (c *Converter) pageFonts(ctx *model.Context, pageNr int) map[string]*fontDecoder {
	_, _, inherited, err := ctx.PageDict(pageNr, false)
	if err != nil || inherited == nil || inherited.Resources == nil {
		return nil
	}
	fontsObj, found := inherited.Resources.Find("Font")
	if !found {
		return nil
	}
	fonts, err := ctx.DereferenceDict(fontsObj)
	if err != nil || fonts == nil {
		return nil
	}

	decoders := make(map[string]*fontDecoder, len(fonts))
	for name, obj := range fonts {
		fd, err := ctx.DereferenceDict(obj)
		if err != nil || fd == nil {
			continue
		}
		ref, found := fd.Find("ToUnicode")
		if !found {
			continue
		}
		sd, _, err := ctx.DereferenceStreamDict(ref)
		if err != nil || sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			c.logger.WithError(err).WithFields("font", name, "page", pageNr).Debug("Skipping unreadable ToUnicode map")
			continue
		}

		codeLen := 1
		if subtype := fd.NameEntry("Subtype"); subtype != nil && *subtype == "Type0" {
			codeLen = 2
		}
		decoders[name] = &fontDecoder{codeLen: codeLen, toUnicode: parseToUnicode(sd.Content)}
	}
	return decoders
}

// parseToUnicode reads the bfchar and bfrange sections of a ToUnicode CMap.
// Destination strings are UTF-16BE.
func parseToUnicode(data []byte) map[uint32]string {
	cmap := make(map[uint32]string)
	var operands []operand

	lex := &lexer{data: data}
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
		case "endbfchar":
			for i := 0; i+1 < len(operands); i += 2 {
				cmap[codeValue(operands[i].str)] = decodeUTF16(operands[i+1].str)
			}
		case "endbfrange":
			for i := 0; i+2 < len(operands); i += 3 {
				lo, hi, dst := codeValue(operands[i].str), codeValue(operands[i+1].str), operands[i+2]
				if hi < lo || hi-lo > 0xFFFF {
					continue
				}
				for code := lo; code <= hi; code++ {
					off := code - lo
					if dst.array != nil {
						if int(off) < len(dst.array) {
							cmap[code] = decodeUTF16(dst.array[off].str)
						}
						continue
					}
					cmap[code] = offsetUTF16(dst.str, off)
				}
			}
		}
		operands = operands[:0]
	}
	return cmap
}

func codeValue(raw string) uint32 {
	var v uint32
	for i := 0; i < len(raw); i++ {
		v = v<<8 | uint32(raw[i])
	}
	return v
}

func utf16Units(raw string) []uint16 {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return units
}

func decodeUTF16(raw string) string {
	return string(utf16.Decode(utf16Units(raw)))
}

// offsetUTF16 adds off to the last code unit of a bfrange destination.
func offsetUTF16(raw string, off uint32) string {
	units := utf16Units(raw)
	if len(units) == 0 {
		return ""
	}
	units[len(units)-1] += uint16(off)
	return string(utf16.Decode(units))
}
