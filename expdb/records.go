// Package expdb turns the raw MediaTek expdb partition into readable logs.
package expdb

import (
	"regexp"
	"strings"
	"unicode"
)

type Level byte

const (
	High   Level = 'H'
	Medium Level = 'M'
	Low    Level = 'L'
)

func (l Level) String() string {
	return string(rune(l))
}

type Record struct {
	Offset int
	Text   string
	Level  Level
}

func compile(patterns ...string) []*regexp.Regexp {
	var res []*regexp.Regexp
	for _, p := range patterns {
		res = append(res, regexp.MustCompile(p))
	}
	return res
}

const (
	markerJump  = "lk finished --> jump to linux kernel 64Bit"
	markerPanic = "Attempted to kill init"
)

var highPatterns = compile(
	`\[AVB\]`,
	`\[SEC\]`,
	`auth fail|Auth Fail|Image Auth Fail`,
	`boot_linux_fdt:508: lk finished --> jump to linux kernel 64Bit`,
	`Kernel panic - not syncing`,
	`Attempted to kill init`,
	`init:`,
	`EXT4-fs`,
	`e2fsck`,
)

var mediumPatterns = compile(
	`\[ *\d+\.\d+\]`,
	`bootargs:`,
	`slot [01]|ab_suffix|get_suffix`,
	`first stage|second stage|fs_mgr|dm-verity|selinux|avc:`,
)

var windowPatterns = compile(
	`\[AVB\]|auth fail|Auth Fail|Image Auth Fail`,
	`boot_linux_fdt:508: lk finished --> jump to linux kernel 64Bit`,
	`Update version, boot successfully on slot`,
	`bootargs:|kcmdline appended`,
	`init:|first stage|second stage|fs_mgr|selinux|avc:|Permission denied|No such file|exec`,
	`e2fsck|EXT4-fs`,
	`Kernel panic - not syncing|Attempted to kill init`,
)

var hexOnly = regexp.MustCompile(`^[0-9A-Fa-f]{24,}$`)

var spaces = regexp.MustCompile(` +`)

func normalize(raw []byte) string {
	s := strings.ReplaceAll(string(raw), "\t", " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func isPrintable(b byte) bool {
	return (b >= 32 && b < 127) || b == '\t'
}

func matchAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func Score(text string) Level {
	score := 0
	for _, re := range highPatterns {
		if re.MatchString(text) {
			score += 4
		}
	}
	for _, re := range mediumPatterns {
		if re.MatchString(text) {
			score += 2
		}
	}

	letters := 0
	for _, c := range text {
		if unicode.IsLetter(c) {
			letters++
		}
	}
	if len(text) > 0 && float64(letters)/float64(len(text)) > 0.45 {
		score++
	}

	if hexOnly.MatchString(text) {
		score -= 3
	}

	switch {
	case score >= 6:
		return High
	case score >= 2:
		return Medium
	}
	return Low
}

// Extract splits data into runs of printable ASCII and scores every run
// that is at least minLen characters long after whitespace normalization.
func Extract(data []byte, minLen int) []Record {
	var out []Record

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		text := normalize(data[start:end])
		if len(text) >= minLen {
			out = append(out, Record{Offset: start, Text: text, Level: Score(text)})
		}
		start = -1
	}

	for i, b := range data {
		if isPrintable(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))

	return out
}

func lastIndex(records []Record, needle string) int {
	idx := -1
	for i, r := range records {
		if strings.Contains(r.Text, needle) {
			idx = i
		}
	}
	return idx
}

func indexes(records []Record, needle string) []int {
	var idx []int
	for i, r := range records {
		if strings.Contains(r.Text, needle) {
			idx = append(idx, i)
		}
	}
	return idx
}
