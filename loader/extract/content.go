package extract

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

type textLine struct {
	text string
	y    float64
	hasY bool
}

// kerningSpace is the TJ adjustment, in thousandths of an em, treated as a
// word gap.
const kerningSpace = -200

// pageLines interprets the page content streams and returns the shown text
// one line per baseline. Strings are decoded with the encoder of the font
// selected by Tf, so ToUnicode CMaps and Identity-H fonts come out as text.
func pageLines(p pdf.Page) (lines []textLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed content stream: %v", r)
		}
	}()

	encoders := map[string]pdf.TextEncoding{}
	var (
		enc     pdf.TextEncoding
		cur     strings.Builder
		curY    float64
		curHasY bool
		y       float64
		hasY    bool
		leading float64
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			lines = append(lines, textLine{text: s, y: curY, hasY: curHasY})
		}
		cur.Reset()
	}
	show := func(raw string) {
		s := raw
		if enc != nil {
			s = enc.Decode(raw)
		}
		s = cleanText(s)
		if s == "" {
			return
		}
		if cur.Len() == 0 {
			curY, curHasY = y, hasY
		}
		cur.WriteString(s)
	}

	do := func(stk *pdf.Stack, op string) {
		args := make([]pdf.Value, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		nums := numbers(args)

		switch op {
		case "BT":
			y, hasY = 0, false
		case "ET":
			flush()
		case "Tf":
			if len(args) >= 1 && args[0].Kind() == pdf.Name {
				name := args[0].Name()
				e, ok := encoders[name]
				if !ok {
					e = p.Font(name).Encoder()
					encoders[name] = e
				}
				enc = e
			}
		case "Tm":
			if len(nums) >= 6 {
				flush()
				y, hasY = nums[5], true
			}
		case "Td", "TD":
			if len(nums) >= 2 {
				if nums[1] != 0 {
					flush()
				} else if cur.Len() > 0 {
					cur.WriteByte(' ')
				}
				y += nums[1]
				hasY = true
				if op == "TD" {
					leading = -nums[1]
				}
			}
		case "TL":
			if len(nums) >= 1 {
				leading = nums[0]
			}
		case "T*":
			flush()
			y -= leading
		case "Tj":
			show(lastString(args))
		case "'", "\"":
			flush()
			y -= leading
			show(lastString(args))
		case "TJ":
			if n := len(args); n > 0 && args[n-1].Kind() == pdf.Array {
				arr := args[n-1]
				for i := 0; i < arr.Len(); i++ {
					switch v := arr.Index(i); v.Kind() {
					case pdf.String:
						show(v.RawString())
					case pdf.Integer, pdf.Real:
						if v.Float64() < kerningSpace && cur.Len() > 0 {
							cur.WriteByte(' ')
						}
					}
				}
			}
		}
	}

	switch contents := p.V.Key("Contents"); contents.Kind() {
	case pdf.Stream:
		pdf.Interpret(contents, do)
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			pdf.Interpret(contents.Index(i), do)
		}
	}
	flush()
	return lines, nil
}

// bandText joins the lines, dropping those whose baseline falls within top
// points of the page top or bottom points of the page bottom. Lines without a
// known position, or pages of unknown height, are kept.
func bandText(lines []textLine, height, top, bottom float64) string {
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		if height > 0 && ln.hasY {
			if top > 0 && ln.y > height-top {
				continue
			}
			if bottom > 0 && ln.y < bottom {
				continue
			}
		}
		out = append(out, ln.text)
	}
	return strings.Join(out, "\n")
}

// cleanText drops control runes and undecodable glyphs. Postgres TEXT
// refuses NUL, which unmapped two-byte glyph ids produce.
func cleanText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r == utf8.RuneError, unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

func numbers(args []pdf.Value) []float64 {
	var out []float64
	for _, v := range args {
		if k := v.Kind(); k == pdf.Integer || k == pdf.Real {
			out = append(out, v.Float64())
		}
	}
	return out
}

func lastString(args []pdf.Value) string {
	for i := len(args) - 1; i >= 0; i-- {
		if args[i].Kind() == pdf.String {
			return args[i].RawString()
		}
	}
	return ""
}
