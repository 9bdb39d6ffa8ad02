package logger

import (
	"bytes"
	"strings"
	"testing"

	"liuproxy_harvest/internal/shared/types"
)

func TestInitWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(types.LogConf{Level: "warn"}, &buf); err != nil {
		t.Fatalf("InitWithWriter() returned an error: %v", err)
	}

	l := WithComponent("Harvest/Test")
	l.Info().Msg("hidden message")
	l.Warn().Str("source", "s1").Msg("visible message")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("Expected info output to be filtered, but got:\n%s", out)
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "Harvest/Test") {
		t.Errorf("Expected warn output with component field, but got:\n%s", out)
	}
}

func TestInitWithWriter_EmptyLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	_ = InitWithWriter(types.LogConf{}, &buf)

	Info().Str("k", "v").Msg("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("Expected info output with an empty level, but got:\n%s", buf.String())
	}
}
