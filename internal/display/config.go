package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ThemeName represents available color themes
type ThemeName string

const (
	ThemeDark         ThemeName = "dark"
	ThemeLight        ThemeName = "light"
	ThemeHighContrast ThemeName = "high-contrast"
	ThemeAuto         ThemeName = "auto"
)

// TableStyleName represents available table styles
type TableStyleName string

const (
	TableStyleDefault TableStyleName = "default"
	TableStyleRounded TableStyleName = "rounded"
	TableStyleMinimal TableStyleName = "minimal"
)

// Config holds the terminal output options of the CLI
type Config struct {
	ColorEnabled bool   `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme        string `mapstructure:"theme" yaml:"theme"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	TableStyle   string `mapstructure:"table_style" yaml:"table_style"`
	Interactive  bool   `mapstructure:"interactive" yaml:"interactive"`
	Quiet        bool   `mapstructure:"quiet" yaml:"quiet"`

	Writer io.Writer `mapstructure:"-" yaml:"-"`
	Reader io.Reader `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns the configuration used when no flags are given
func DefaultConfig() *Config {
	return &Config{
		ColorEnabled: true,
		Theme:        string(ThemeAuto),
		OutputFormat: string(FormatTable),
		TableStyle:   string(TableStyleDefault),
		Interactive:  true,
		Writer:       os.Stdout,
		Reader:       os.Stdin,
	}
}

// SetDefaults fills unset options
func (c *Config) SetDefaults() {
	if c.Theme == "" {
		c.Theme = string(ThemeAuto)
	}
	if c.OutputFormat == "" {
		c.OutputFormat = string(FormatTable)
	}
	if c.TableStyle == "" {
		c.TableStyle = string(TableStyleDefault)
	}
	if c.Writer == nil {
		c.Writer = os.Stdout
	}
	if c.Reader == nil {
		c.Reader = os.Stdin
	}
}

// Validate validates the display configuration
func (c *Config) Validate() error {
	var errs []string

	validThemes := []string{string(ThemeDark), string(ThemeLight), string(ThemeHighContrast), string(ThemeAuto)}
	if !contains(validThemes, c.Theme) {
		errs = append(errs, fmt.Sprintf("invalid theme '%s', must be one of: %s", c.Theme, strings.Join(validThemes, ", ")))
	}

	if _, err := ParseOutputFormat(c.OutputFormat); err != nil {
		errs = append(errs, err.Error())
	}

	validStyles := []string{string(TableStyleDefault), string(TableStyleRounded), string(TableStyleMinimal)}
	if !contains(validStyles, c.TableStyle) {
		errs = append(errs, fmt.Sprintf("invalid table style '%s', must be one of: %s", c.TableStyle, strings.Join(validStyles, ", ")))
	}

	if len(errs) > 0 {
		return fmt.Errorf("display configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseOutputFormat parses a --format value
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid output format '%s', must be one of: table, json, yaml", s)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
