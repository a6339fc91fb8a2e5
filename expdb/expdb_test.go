package expdb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScore(t *testing.T) {
	tests := []struct {
		text string
		want Level
	}{
		{"[AVB] avb_ret=0 slot 0", High},
		{"[AVB] avb_ret=0 slot a", Medium},
		{"[   12.345678] init: starting first stage", High},
		{"bootargs: console=ttyS0", Medium},
		{"[    1.000000] random", Medium},
		{"0123456789abcdef0123456789abcdef", Low},
		{"%%%%%%%%%%%%", Low},
		{"plain words only here", Low},
		{"e2fsck: clean", Medium},
	}
	for _, tc := range tests {
		if got := Score(tc.text); got != tc.want {
			t.Errorf("Score(%q): got %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestExtract(t *testing.T) {
	var data []byte
	data = append(data, 0x00, 0x01)
	data = append(data, "short"...)
	data = append(data, 0xff)
	data = append(data, "hello\t\t  world   "...)
	data = append(data, 0x00)
	data = append(data, "tail record"...)

	got := Extract(data, 8)
	want := []Record{
		{Offset: 8, Text: "hello world"},
		{Offset: 26, Text: "tail record"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Offset != want[i].Offset || got[i].Text != want[i].Text {
			t.Errorf("record %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func sampleLog() []byte {
	lines := []string{
		"[AVB] avb_ret=3 first",
		"bootargs: console=tty0 androidboot.slot_suffix=_a",
		"image lk auth fail old",
		"boot_linux_fdt:508: lk finished --> jump to linux kernel 64Bit",
		"[    0.100000] init: first stage mount",
		"Kernel panic - not syncing: Attempted to kill init! exitcode=0x00007f00",
		"boot_linux_fdt:508: lk finished --> jump to linux kernel 64Bit",
		"[AVB] avb_ret=0 second",
		"androidboot.verifiedbootstate=orange",
		"ffffffffffffffffffffffffffffffff",
	}
	var b bytes.Buffer
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte(0)
	}
	return b.Bytes()
}

func TestSummarize(t *testing.T) {
	s := Summarize(Extract(sampleLog(), 8))

	ints := []struct {
		name      string
		got, want int
	}{
		{"total", s.Total, 10},
		{"latest jump", s.LatestJump, 6},
		{"latest panic", s.LatestPanic, 5},
		{"jumps", s.Jumps, 2},
		{"panics", s.Panics, 1},
		{"attempt jump", s.AttemptJump, 6},
		{"attempt panic", s.AttemptPanic, -1},
		{"completed jump", s.CompletedAttemptJump, 3},
		{"completed panic", s.CompletedAttemptPanic, 5},
	}
	for _, c := range ints {
		if c.got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, c.got, c.want)
		}
	}

	if s.LastAVB != "[AVB] avb_ret=0 second" {
		t.Errorf("last avb: got %q", s.LastAVB)
	}
	if s.LastAVBAfterJump != "[AVB] avb_ret=0 second" {
		t.Errorf("last avb after jump: got %q", s.LastAVBAfterJump)
	}
	if s.LastLKAuthAfterJump != "" {
		t.Errorf("lk auth after jump: got %q", s.LastLKAuthAfterJump)
	}
	if !s.SlotSuffix || !s.VerifiedState || s.VerityMode {
		t.Errorf("observed flags: %+v", s)
	}

	var b bytes.Buffer
	if _, err := s.WriteTo(&b); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"records_total=10\n",
		"latest_attempt_panic_idx=<none_after_latest_jump>\n",
		"latest_completed_attempt_panic_idx=5\n",
		"last_lk_auth_line=image lk auth fail old\n",
		"last_lk_auth_line_after_latest_jump=<not found_after_latest_jump>\n",
		"observed_androidboot_veritymode_in_logs=false\n",
	} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, b.String())
		}
	}
}

func TestWriteWindow(t *testing.T) {
	records := Extract(sampleLog(), 8)

	var b bytes.Buffer
	if err := WriteWindow(&b, records, 2, 1); err != nil {
		t.Fatal(err)
	}
	out := b.String()

	if !strings.HasPrefix(out, "latest_jump_idx=6\nlatest_init_panic_idx=5\n\n") {
		t.Errorf("unexpected header:\n%s", out)
	}
	/* anchor 6, before 2: starts at 4; end at panic 5 + 1 */
	if !strings.Contains(out, "000004 ") || strings.Contains(out, "000003 ") || strings.Contains(out, "000006 ") {
		t.Errorf("unexpected window:\n%s", out)
	}

	b.Reset()
	if err := WriteWindow(&b, records[:3], 120, 80); err != nil {
		t.Fatal(err)
	}
	if b.String() != "No LK handoff/panic markers found.\n" {
		t.Errorf("got %q", b.String())
	}
}

func TestReconstruct(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "expdb.bin")
	if err := os.WriteFile(input, sampleLog(), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := Reconstruct(input, "", DefaultConfig)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "expdb_reconstructed"); res.OutDir != want {
		t.Errorf("got outdir %s, want %s", res.OutDir, want)
	}
	if len(res.Files) != 4 {
		t.Fatalf("got %d files, want 4", len(res.Files))
	}

	full, err := os.ReadFile(filepath.Join(res.OutDir, FullLog))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(full), "000000 0x00000000 [M] [AVB] avb_ret=3 first\n") {
		t.Errorf("unexpected full log:\n%s", full)
	}

	human, err := os.ReadFile(filepath.Join(res.OutDir, HumanLog))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(human), "ffffffff") {
		t.Errorf("hex record leaked into human log")
	}

	if _, err := Reconstruct(filepath.Join(dir, "missing"), "", DefaultConfig); err == nil {
		t.Errorf("missing input: expected error")
	}

	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	res, err = Reconstruct(empty, "", DefaultConfig)
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if len(res.Files) != 4 || len(res.Records) != 0 {
		t.Errorf("empty: got %d files, %d records", len(res.Files), len(res.Records))
	}
	window, err := os.ReadFile(filepath.Join(res.OutDir, WindowLog))
	if err != nil {
		t.Fatal(err)
	}
	if string(window) != "No LK handoff/panic markers found.\n" {
		t.Errorf("empty window: got %q", window)
	}
	summary, err := os.ReadFile(filepath.Join(res.OutDir, SummaryTxt))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"records_total=0\n", "latest_jump_idx=-1\n", "last_avb_ret=<not found>\n"} {
		if !strings.Contains(string(summary), want) {
			t.Errorf("empty summary missing %q:\n%s", want, summary)
		}
	}
	if _, err := Reconstruct(dir, filepath.Join(dir, "out"), DefaultConfig); !errors.Is(err, ErrorNotRegular) {
		t.Errorf("dir: got %v, want %v", err, ErrorNotRegular)
	}
}
