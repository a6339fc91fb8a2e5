// Package fstab removes AVB and dm-verity fs_mgr flags from Android fstab
// files.
package fstab

import (
	"strings"
	"unicode"
)

/* Column holding the comma separated fs_mgr flags */
const flagsColumn = 4

/* Written when every flag was stripped; fs_mgr skips it like an empty token */
const emptyFlags = "defaults"

var removableExact = []string{"avb", "verify"}
var removablePrefix = []string{"avb=", "avb_keys=", "verify_", "verifyatboot"}

type Options struct {
	/* Only replace the flags column, keep the original delimiters */
	KeepSpacing bool
}

// IsRemovable reports whether a single fs_mgr flag enables verified boot.
func IsRemovable(flag string) bool {
	for _, m := range removableExact {
		if flag == m {
			return true
		}
	}
	for _, m := range removablePrefix {
		if strings.HasPrefix(flag, m) {
			return true
		}
	}
	return false
}

// StripFlags drops empty and removable tokens from a flags column.
func StripFlags(flags string) string {
	var kept []string
	for _, m := range strings.Split(flags, ",") {
		m = strings.TrimSpace(m)
		if m == "" || IsRemovable(m) {
			continue
		}
		kept = append(kept, m)
	}
	return strings.Join(kept, ",")
}

func StripLine(line string) (string, bool) {
	return Options{}.StripLine(line)
}

func (o Options) StripLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return line, false
	}

	fields := strings.Fields(line)
	if len(fields) <= flagsColumn {
		return line, false
	}

	flags := StripFlags(fields[flagsColumn])
	if flags == fields[flagsColumn] {
		return line, false
	}
	if flags == "" {
		/* an empty column would shift the next field into its place */
		flags = emptyFlags
	}

	if o.KeepSpacing {
		return replaceField(line, flagsColumn, flags), true
	}

	fields[flagsColumn] = flags
	return strings.Join(fields, " "), true
}

func Strip(text string) (string, int) {
	return Options{}.Strip(text)
}

// Strip rewrites every line of an fstab file and returns the new text
// (always newline terminated) and the number of lines that changed.
func (o Options) Strip(text string) (string, int) {
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")

	changed := 0
	for i, m := range lines {
		/* CRLF files come back with LF endings */
		m = strings.TrimSuffix(m, "\r")

		out, ok := o.StripLine(m)
		if ok {
			changed++
		}
		lines[i] = out
	}

	return strings.Join(lines, "\n") + "\n", changed
}

/* replaceField swaps the n-th whitespace separated field of line for value */
func replaceField(line string, n int, value string) string {
	field := -1
	inField := false
	start := 0

	for i, c := range line {
		space := unicode.IsSpace(c)
		if !space && !inField {
			inField = true
			field++
			start = i
		} else if space && inField {
			inField = false
			if field == n {
				return line[:start] + value + line[i:]
			}
		}
	}

	if inField && field == n {
		return line[:start] + value
	}
	return line
}
