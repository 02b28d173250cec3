package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig holds the settings of one analysis run. Every field is
// optional; the Get* accessors fall back to built-in defaults so partial
// files are safe.
type AnalysisConfig struct {
	// Input
	DataPath  *string `json:"data_path,omitempty"`
	Delimiter *string `json:"delimiter,omitempty"` // single character, e.g. ";"

	// Output
	OutputDir     *string  `json:"output_dir,omitempty"`
	ImageWidthIn  *float64 `json:"image_width_in,omitempty"`
	ImageHeightIn *float64 `json:"image_height_in,omitempty"`
	HTMLReport    *bool    `json:"html_report,omitempty"`

	// Model
	ReferenceLevel  *string  `json:"reference_level,omitempty"`
	ConfidenceLevel *float64 `json:"confidence_level,omitempty"`

	// Prediction
	AgeGridMin     *int      `json:"age_grid_min,omitempty"`
	AgeGridMax     *int      `json:"age_grid_max,omitempty"`
	PredictionAges []float64 `json:"prediction_ages,omitempty"`

	// Run history; empty disables it.
	DBPath *string `json:"db_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with every field unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field set to its
// built-in default.
func DefaultAnalysisConfig() *AnalysisConfig {
	e := EmptyAnalysisConfig()
	return &AnalysisConfig{
		DataPath:        ptrString(e.GetDataPath()),
		Delimiter:       ptrString(string(e.GetDelimiter())),
		OutputDir:       ptrString(e.GetOutputDir()),
		ImageWidthIn:    ptrFloat64(e.GetImageWidthIn()),
		ImageHeightIn:   ptrFloat64(e.GetImageHeightIn()),
		HTMLReport:      ptrBool(e.GetHTMLReport()),
		ReferenceLevel:  ptrString(e.GetReferenceLevel()),
		ConfidenceLevel: ptrFloat64(e.GetConfidenceLevel()),
		AgeGridMin:      ptrInt(e.GetAgeGridMin()),
		AgeGridMax:      ptrInt(e.GetAgeGridMax()),
		PredictionAges:  e.GetPredictionAges(),
		DBPath:          ptrString(e.GetDBPath()),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or a parent up to the repository root. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.Delimiter != nil {
		if utf8.RuneCountInString(*c.Delimiter) != 1 {
			return fmt.Errorf("delimiter must be a single character, got %q", *c.Delimiter)
		}
		switch r, _ := utf8.DecodeRuneInString(*c.Delimiter); r {
		case '"', '\r', '\n', utf8.RuneError:
			return fmt.Errorf("invalid delimiter %q", *c.Delimiter)
		}
	}

	if c.ConfidenceLevel != nil {
		if *c.ConfidenceLevel <= 0 || *c.ConfidenceLevel >= 1 {
			return fmt.Errorf("confidence_level must be between 0 and 1 exclusive, got %f", *c.ConfidenceLevel)
		}
	}

	if c.ImageWidthIn != nil && *c.ImageWidthIn <= 0 {
		return fmt.Errorf("image_width_in must be positive, got %f", *c.ImageWidthIn)
	}
	if c.ImageHeightIn != nil && *c.ImageHeightIn <= 0 {
		return fmt.Errorf("image_height_in must be positive, got %f", *c.ImageHeightIn)
	}

	if c.GetAgeGridMax()-c.GetAgeGridMin() < 1 {
		return fmt.Errorf("age_grid_max (%d) must exceed age_grid_min (%d)", c.GetAgeGridMax(), c.GetAgeGridMin())
	}

	for _, a := range c.PredictionAges {
		if a < 0 {
			return fmt.Errorf("prediction_ages must be non-negative, got %f", a)
		}
	}

	return nil
}

// GetDataPath returns the data_path value or the default.
func (c *AnalysisConfig) GetDataPath() string {
	if c.DataPath == nil || *c.DataPath == "" {
		return "insurance.csv"
	}
	return *c.DataPath
}

// GetDelimiter returns the delimiter rune or the default comma.
func (c *AnalysisConfig) GetDelimiter() rune {
	if c.Delimiter == nil || *c.Delimiter == "" {
		return ','
	}
	r, _ := utf8.DecodeRuneInString(*c.Delimiter)
	return r
}

// GetOutputDir returns the output_dir value or the default.
func (c *AnalysisConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "output"
	}
	return *c.OutputDir
}

// GetImageWidthIn returns the image_width_in value or the default.
func (c *AnalysisConfig) GetImageWidthIn() float64 {
	if c.ImageWidthIn == nil {
		return 8
	}
	return *c.ImageWidthIn
}

// GetImageHeightIn returns the image_height_in value or the default.
func (c *AnalysisConfig) GetImageHeightIn() float64 {
	if c.ImageHeightIn == nil {
		return 5
	}
	return *c.ImageHeightIn
}

// GetHTMLReport returns the html_report value or the default.
func (c *AnalysisConfig) GetHTMLReport() bool {
	if c.HTMLReport == nil {
		return true
	}
	return *c.HTMLReport
}

// GetReferenceLevel returns the reference_level value or the default.
func (c *AnalysisConfig) GetReferenceLevel() string {
	if c.ReferenceLevel == nil || *c.ReferenceLevel == "" {
		return "no"
	}
	return *c.ReferenceLevel
}

// GetConfidenceLevel returns the confidence_level value or the default.
func (c *AnalysisConfig) GetConfidenceLevel() float64 {
	if c.ConfidenceLevel == nil {
		return 0.95
	}
	return *c.ConfidenceLevel
}

// GetAgeGridMin returns the age_grid_min value or the default.
func (c *AnalysisConfig) GetAgeGridMin() int {
	if c.AgeGridMin == nil {
		return 18
	}
	return *c.AgeGridMin
}

// GetAgeGridMax returns the age_grid_max value or the default.
func (c *AnalysisConfig) GetAgeGridMax() int {
	if c.AgeGridMax == nil {
		return 64
	}
	return *c.AgeGridMax
}

// GetPredictionAges returns the prediction_ages value or the default.
func (c *AnalysisConfig) GetPredictionAges() []float64 {
	if len(c.PredictionAges) == 0 {
		return []float64{20, 30, 40, 50, 60}
	}
	return append([]float64(nil), c.PredictionAges...)
}

// GetDBPath returns the db_path value; empty means run history is off.
func (c *AnalysisConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}
