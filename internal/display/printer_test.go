package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestPrinter(t *testing.T, format string, mutate ...func(*Config)) (*Printer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	config := &Config{
		ColorEnabled: true,
		Theme:        string(ThemeDark),
		OutputFormat: format,
		Interactive:  true,
		Writer:       &buf,
		Reader:       strings.NewReader(""),
	}
	for _, m := range mutate {
		m(config)
	}
	printer, err := NewPrinter(config)
	if err != nil {
		t.Fatalf("NewPrinter: %v", err)
	}
	return printer, &buf
}

func TestPrinter_StatusLines(t *testing.T) {
	printer, buf := newTestPrinter(t, "table")

	printer.Success("backup created")
	printer.Warning("disk space low")

	want := "OK    backup created\nWARN  disk space low\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrinter_QuietAndStructured(t *testing.T) {
	tests := []struct {
		name   string
		format string
		quiet  bool
	}{
		{"quiet", "table", true},
		{"json", "json", false},
		{"yaml", "yaml", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			printer, buf := newTestPrinter(t, tt.format, func(c *Config) { c.Quiet = tt.quiet })

			printer.Success("hidden")
			printer.Info("hidden")
			printer.Header("hidden")
			printer.Error("restore failed")

			if strings.Contains(buf.String(), "hidden") {
				t.Errorf("informational output should be suppressed: %q", buf.String())
			}
			if !strings.Contains(buf.String(), "restore failed") {
				t.Errorf("errors are always printed: %q", buf.String())
			}
		})
	}
}

func TestPrinter_Encode(t *testing.T) {
	value := map[string]interface{}{"file": "a.bak", "records": 7}

	t.Run("json", func(t *testing.T) {
		printer, buf := newTestPrinter(t, "JSON")
		if err := printer.Encode(value); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if decoded["file"] != "a.bak" {
			t.Errorf("unexpected output %s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		printer, buf := newTestPrinter(t, "yaml")
		if err := printer.Encode(value); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if !strings.Contains(buf.String(), "file: a.bak") {
			t.Errorf("unexpected output %s", buf.String())
		}
	})
}

func TestPrinter_KeyValues(t *testing.T) {
	printer, buf := newTestPrinter(t, "table")
	printer.KeyValues([][2]string{{"File", "a.bak"}, {"Records", "7"}})

	want := "  File:    a.bak\n  Records: 7\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrinter_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			printer, buf := newTestPrinter(t, "table", func(c *Config) { c.Reader = strings.NewReader(tt.input) })

			got, err := printer.Confirm(Confirmation{Title: "Restore", Details: []string{"replaces live data"}})
			if err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(buf.String(), "Continue? [y/N]") {
				t.Errorf("prompt missing: %q", buf.String())
			}
		})
	}
}

func TestPrinter_ConfirmNonInteractive(t *testing.T) {
	printer, _ := newTestPrinter(t, "table", func(c *Config) { c.Interactive = false })

	_, err := printer.Confirm(Confirmation{})
	if !errors.Is(err, ErrNotInteractive) {
		t.Errorf("expected ErrNotInteractive, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad theme", func(c *Config) { c.Theme = "solarized" }, true},
		{"bad format", func(c *Config) { c.OutputFormat = "xml" }, true},
		{"bad table style", func(c *Config) { c.TableStyle = "double" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHumanBytes(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range tests {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
