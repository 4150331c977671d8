package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileMissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFileLoadsValuesAndPreservesExisting(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# bridge connection\n" +
		"PBXLINK_BRIDGE_URL=http://localhost:3456\n" +
		"PBXLINK_BRIDGE_API_KEY=\"sk test\"\n" +
		"export PBXLINK_FROM_NUMBER=+15551230001\n" +
		"PBXLINK_TO_NUMBER=+15559990000\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("PBXLINK_BRIDGE_URL", "")
	t.Setenv("PBXLINK_BRIDGE_API_KEY", "")
	t.Setenv("PBXLINK_FROM_NUMBER", "")
	t.Setenv("PBXLINK_TO_NUMBER", "+15550000000")
	os.Unsetenv("PBXLINK_BRIDGE_URL")
	os.Unsetenv("PBXLINK_BRIDGE_API_KEY")
	os.Unsetenv("PBXLINK_FROM_NUMBER")

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if got := os.Getenv("PBXLINK_BRIDGE_URL"); got != "http://localhost:3456" {
		t.Fatalf("PBXLINK_BRIDGE_URL=%q", got)
	}
	if got := os.Getenv("PBXLINK_BRIDGE_API_KEY"); got != "sk test" {
		t.Fatalf("PBXLINK_BRIDGE_API_KEY=%q, want quotes stripped", got)
	}
	if got := os.Getenv("PBXLINK_FROM_NUMBER"); got != "+15551230001" {
		t.Fatalf("PBXLINK_FROM_NUMBER=%q, want export prefix handled", got)
	}
	if got := os.Getenv("PBXLINK_TO_NUMBER"); got != "+15550000000" {
		t.Fatalf("PBXLINK_TO_NUMBER=%q, want existing value preserved", got)
	}
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		key  string
		val  string
		ok   bool
	}{
		{"KEY=value", "KEY", "value", true},
		{"  KEY = value  ", "KEY", "value", true},
		{"export KEY=value", "KEY", "value", true},
		{"KEY='single quoted'", "KEY", "single quoted", true},
		{"# comment", "", "", false},
		{"", "", "", false},
		{"=nokey", "", "", false},
		{"noequals", "", "", false},
	}
	for _, tt := range tests {
		key, val, ok := parseLine(tt.line)
		if key != tt.key || val != tt.val || ok != tt.ok {
			t.Errorf("parseLine(%q) = %q, %q, %v; want %q, %q, %v",
				tt.line, key, val, ok, tt.key, tt.val, tt.ok)
		}
	}
}
