package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	cfg := DefaultConfig()
	cfg.Output = buf
	cfg.Colorize = false
	cfg.ShowTime = false
	cfg.Level = level
	return New(cfg)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, WARN)

	log.Debugf("debug %d", 1)
	log.Infof("info %d", 2)
	log.Warnf("warn %d", 3)
	log.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Messages below WARN should be dropped, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") {
		t.Errorf("Expected WARN line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("Expected ERROR line, got %q", out)
	}
}

func TestWithPrefixSharesSink(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, DEBUG)

	child := log.With("req=abc")
	grandchild := child.With("decoder=native")
	grandchild.Infof("decoded %d samples", 10)

	want := "[INFO] req=abc decoder=native decoded 10 samples"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("Expected %q in %q", want, buf.String())
	}

	// Level changes on the parent apply to children.
	buf.Reset()
	log.SetLevel(ERROR)
	child.Infof("hidden")
	if buf.Len() != 0 {
		t.Errorf("Child should inherit parent level, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{" warning ", WARN},
		{"Error", ERROR},
		{"fatal", FATAL},
		{"nonsense", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteFailureIsIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = failingWriter{}
	log := New(cfg)

	// Must not panic.
	log.Errorf("still fine")
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, INFO)

	code := -1
	log.sink.exit = func(c int) { code = c }
	log.Fatalf("boom")

	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "[FATAL] boom") {
		t.Errorf("Expected FATAL line, got %q", buf.String())
	}
}
