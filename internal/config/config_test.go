package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Microphone.Enabled || !cfg.SystemAudio.Enabled {
		t.Error("both sources should be enabled by default")
	}
	if cfg.Microphone.Gain != 2.5 {
		t.Errorf("expected default gain 2.5, got %f", cfg.Microphone.Gain)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %q", cfg.Logging.Level)
	}
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
microphone:
  gain: 1.5
transcription:
  endpoint: wss://transcribe.example.com/v1/stream
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Microphone.Gain != 1.5 {
		t.Errorf("expected gain 1.5, got %f", cfg.Microphone.Gain)
	}
	if !cfg.SystemAudio.Enabled {
		t.Error("unmentioned sections should keep their defaults")
	}
	if cfg.Transcription.Endpoint != "wss://transcribe.example.com/v1/stream" {
		t.Errorf("unexpected endpoint %q", cfg.Transcription.Endpoint)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadMalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "microphone: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateRejectsNonPositiveGain(t *testing.T) {
	path := writeConfig(t, "microphone:\n  gain: 0\n")
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for zero gain")
	}
}

func TestValidateRejectsHTTPTranscriptionEndpoint(t *testing.T) {
	path := writeConfig(t, "transcription:\n  endpoint: http://example.com\n")
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for non-websocket scheme")
	}
}

func TestValidateRejectsEnabledMetricsWithoutAddress(t *testing.T) {
	path := writeConfig(t, "metrics:\n  enabled: true\n  address: \"\"\n")
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for empty metrics address")
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: verbose\n")
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for unknown log level")
	}
}
