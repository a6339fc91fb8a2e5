package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/mt8781-root/vbtools/lkpatch"
)

const hexdumpWidth = 16

// hexdump renders data starting at file offset, highlighting bytes whose
// mark is set with hl.
func hexdump(offset int, data []byte, mark []bool, hl *color.Color) string {
	var result strings.Builder

	for len(data) > 0 {
		l := len(data)
		if l > hexdumpWidth {
			l = hexdumpWidth
		}
		work := data[:l]
		data = data[l:]
		var workMark []bool
		if mark != nil {
			workMark = mark[:l]
			mark = mark[l:]
		}

		var workHex, workASCII strings.Builder
		for i := 0; i < hexdumpWidth; i++ {
			if i >= len(work) {
				workHex.WriteString("   ")
				workASCII.WriteString(" ")
			} else {
				m := work[i]
				delta := workMark != nil && workMark[i]

				h := fmt.Sprintf("%02x ", m)
				if m < 32 || m > 126 {
					m = '.'
				}
				a := string(rune(m))
				if delta {
					h = hl.Sprint(h)
					a = hl.Sprint(a)
				}
				workHex.WriteString(h)
				workASCII.WriteString(a)
			}
			if i%8 == 7 {
				workHex.WriteString(" ")
			}
		}

		fmt.Fprintf(&result, "%08x  %s|%s|\n", offset, workHex.String(), workASCII.String())
		offset += l
	}

	return result.String()
}

// dumpChange shows a patch site in orig and patched, aligned to whole lines.
func dumpChange(orig, patched []byte, ch lkpatch.Change) string {
	start := ch.Offset &^ (hexdumpWidth - 1)
	end := (ch.Offset + len(ch.New) + hexdumpWidth - 1) &^ (hexdumpWidth - 1)
	if end > len(orig) {
		end = len(orig)
	}

	mark := make([]bool, end-start)
	for i := range mark {
		mark[i] = orig[start+i] != patched[start+i]
	}

	return fmt.Sprintf("%s\n%s%s", ch.Label,
		hexdump(start, orig[start:end], mark, color.New(color.FgRed)),
		hexdump(start, patched[start:end], mark, color.New(color.FgGreen)))
}
