package expdb

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

func writeRecord(w io.Writer, i int, r Record) {
	fmt.Fprintf(w, "%06d 0x%08X [%s] %s\n", i, r.Offset, r.Level, r.Text)
}

func WriteFull(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for i, r := range records {
		writeRecord(bw, i, r)
	}
	return bw.Flush()
}

func WriteHuman(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if r.Level != Low {
			fmt.Fprintln(bw, r.Text)
		}
	}
	return bw.Flush()
}

// WriteWindow writes the interesting records around the latest LK handoff,
// from before records ahead of it up to after records past the last init
// panic.
func WriteWindow(w io.Writer, records []Record, before, after int) error {
	bw := bufio.NewWriter(w)

	jump := lastIndex(records, markerJump)
	panicIdx := lastIndex(records, markerPanic)
	if jump < 0 && panicIdx < 0 {
		fmt.Fprintln(bw, "No LK handoff/panic markers found.")
		return bw.Flush()
	}

	anchor := jump
	if anchor < 0 {
		anchor = panicIdx
	}
	endAnchor := anchor
	if panicIdx >= 0 {
		endAnchor = panicIdx
	}

	start := anchor - before
	if start < 0 {
		start = 0
	}
	end := endAnchor + after
	if end > len(records) {
		end = len(records)
	}

	fmt.Fprintf(bw, "latest_jump_idx=%d\n", jump)
	fmt.Fprintf(bw, "latest_init_panic_idx=%d\n\n", panicIdx)
	for i := start; i < end; i++ {
		r := records[i]
		if r.Level == Low || !matchAny(windowPatterns, r.Text) {
			continue
		}
		writeRecord(bw, i, r)
	}
	return bw.Flush()
}

type Summary struct {
	Total, High, Medium, Low int

	LatestJump  int
	LatestPanic int
	Jumps       int
	Panics      int

	/* -1 when absent; AttemptPanic is -1 if no panic followed the jump */
	AttemptJump           int
	AttemptPanic          int
	CompletedAttemptJump  int
	CompletedAttemptPanic int

	LastAVB             string
	LastLKAuth          string
	LastAVBAfterJump    string
	LastLKAuthAfterJump string
	LastCmdline         string

	SlotSuffix    bool
	VerifiedState bool
	VerityMode    bool
	VBMeta        bool
}

func isAVB(text string) bool {
	return strings.Contains(text, "[AVB] avb_ret")
}

func isLKAuth(text string) bool {
	return strings.Contains(text, "image lk auth fail") || strings.Contains(text, "lk Image Auth Fail")
}

func isCmdline(text string) bool {
	return strings.Contains(text, "bootargs:") || strings.Contains(text, "kcmdline appended:")
}

func Summarize(records []Record) *Summary {
	s := &Summary{
		Total:                 len(records),
		LatestJump:            lastIndex(records, markerJump),
		LatestPanic:           lastIndex(records, markerPanic),
		AttemptJump:           -1,
		AttemptPanic:          -1,
		CompletedAttemptJump:  -1,
		CompletedAttemptPanic: -1,
	}

	for _, r := range records {
		switch r.Level {
		case High:
			s.High++
		case Medium:
			s.Medium++
		default:
			s.Low++
		}

		if isAVB(r.Text) {
			s.LastAVB = r.Text
		}
		if isLKAuth(r.Text) {
			s.LastLKAuth = r.Text
		}
		if isCmdline(r.Text) {
			s.LastCmdline = r.Text
		}
		s.SlotSuffix = s.SlotSuffix || strings.Contains(r.Text, "androidboot.slot_suffix")
		s.VerifiedState = s.VerifiedState || strings.Contains(r.Text, "androidboot.verifiedbootstate")
		s.VerityMode = s.VerityMode || strings.Contains(r.Text, "androidboot.veritymode")
		s.VBMeta = s.VBMeta || strings.Contains(r.Text, "androidboot.vbmeta")
	}

	jumps := indexes(records, markerJump)
	panics := indexes(records, markerPanic)
	s.Jumps = len(jumps)
	s.Panics = len(panics)

	/* Pair each jump with the first panic at or after it */
	pi := 0
	for _, j := range jumps {
		for pi < len(panics) && panics[pi] < j {
			pi++
		}
		s.AttemptJump, s.AttemptPanic = j, -1
		if pi < len(panics) {
			s.AttemptPanic = panics[pi]
			s.CompletedAttemptJump, s.CompletedAttemptPanic = j, panics[pi]
		}
	}

	if len(jumps) > 0 {
		latest := jumps[len(jumps)-1]
		for i := len(records) - 1; i >= latest; i-- {
			t := records[i].Text
			if s.LastLKAuthAfterJump == "" && isLKAuth(t) {
				s.LastLKAuthAfterJump = t
			}
			if s.LastAVBAfterJump == "" && isAVB(t) {
				s.LastAVBAfterJump = t
			}
		}
	}

	return s
}

func orMissing(s, missing string) string {
	if s == "" {
		return missing
	}
	return s
}

func idxOr(i int, missing string) string {
	if i < 0 {
		return missing
	}
	return strconv.Itoa(i)
}

func (s *Summary) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	kv := func(key string, value interface{}) {
		fmt.Fprintf(&b, "%s=%v\n", key, value)
	}

	kv("records_total", s.Total)
	kv("records_high", s.High)
	kv("records_medium", s.Medium)
	kv("records_low", s.Low)
	kv("latest_jump_idx", s.LatestJump)
	kv("latest_init_panic_idx", s.LatestPanic)
	kv("jump_count", s.Jumps)
	kv("init_panic_count", s.Panics)
	if s.AttemptJump >= 0 {
		kv("latest_attempt_jump_idx", s.AttemptJump)
		kv("latest_attempt_panic_idx", idxOr(s.AttemptPanic, "<none_after_latest_jump>"))
	} else {
		kv("latest_attempt_jump_idx", "<not found>")
		kv("latest_attempt_panic_idx", "<not found>")
	}
	kv("latest_completed_attempt_jump_idx", idxOr(s.CompletedAttemptJump, "<not found>"))
	kv("latest_completed_attempt_panic_idx", idxOr(s.CompletedAttemptPanic, "<not found>"))
	kv("last_avb_ret", orMissing(s.LastAVB, "<not found>"))
	kv("last_lk_auth_line", orMissing(s.LastLKAuth, "<not found>"))
	kv("last_avb_ret_after_latest_jump", orMissing(s.LastAVBAfterJump, "<not found_after_latest_jump>"))
	kv("last_lk_auth_line_after_latest_jump", orMissing(s.LastLKAuthAfterJump, "<not found_after_latest_jump>"))
	kv("observed_androidboot_slot_suffix_in_logs", s.SlotSuffix)
	kv("observed_androidboot_verifiedbootstate_in_logs", s.VerifiedState)
	kv("observed_androidboot_veritymode_in_logs", s.VerityMode)
	kv("observed_androidboot_vbmeta_in_logs", s.VBMeta)
	kv("last_cmdline_line", orMissing(s.LastCmdline, "<not found>"))

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
