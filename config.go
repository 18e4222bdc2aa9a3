package detprep

// Dataset metadata and conversion settings.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
)

// ConfigError reports an invalid configuration. It is returned before any output is written.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// CategoryTable maps source class indices to output categories.
//
// CategoryID returns ByClass[class] if present and Fallback otherwise. A category id of zero
// means that boxes of that class are dropped.
type CategoryTable struct {
	Categories []COCOCategory `json:"categories"`
	ByClass    map[int]int    `json:"class_map,omitempty"`
	Fallback   int            `json:"fallback"`
}

// CategoryID returns the category id for the class index, or 0 if the class is not mapped.
func (t CategoryTable) CategoryID(class int) int {
	if id, ok := t.ByClass[class]; ok {
		return id
	}
	return t.Fallback
}

// ClassID is the inverse of CategoryID. It returns the smallest class index mapped to
// categoryID, or 0 for the fallback category.
func (t CategoryTable) ClassID(categoryID int) (int, bool) {
	class, found := 0, false
	for k, v := range t.ByClass {
		if v == categoryID && (!found || k < class) {
			class, found = k, true
		}
	}
	if !found && categoryID == t.Fallback && t.Fallback != 0 {
		return 0, true
	}
	return class, found
}

// SingleCategory returns a table that maps every class index to one category with id 1.
func SingleCategory(name, supercategory string) CategoryTable {
	return CategoryTable{
		Categories: []COCOCategory{{ID: 1, Name: name, Supercategory: supercategory}},
		Fallback:   1,
	}
}

// Config holds the metadata written into every output document along with conversion settings.
type Config struct {
	Info         COCOInfo      `json:"info"`
	Licenses     []COCOLicense `json:"licenses"`
	Categories   CategoryTable `json:"categories"`
	ImageLicense int           `json:"image_license"`
	DateCaptured string        `json:"date_captured"`

	// FilePrefix is prepended to output document names, e.g. <prefix>_instances_train.json.
	FilePrefix      string   `json:"file_prefix"`
	ImageExtensions []string `json:"image_extensions"`

	// Dimensions used when an image header cannot be decoded.
	FallbackWidth  int `json:"fallback_width"`
	FallbackHeight int `json:"fallback_height"`
}

// DefaultConfig returns the configuration for the AppleBBCH81 apple detection dataset.
func DefaultConfig() Config {
	return Config{
		Info: COCOInfo{
			Description: "AppleBBCH81 Dataset - Apple fruit images for object detection",
			Version:     "1.0",
			Year:        2024,
			Contributor: "Project LZP",
			DateCreated: "2024-04-12",
		},
		Licenses: []COCOLicense{
			{ID: 1, Name: "CC BY 4.0", URL: "https://creativecommons.org/licenses/by/4.0/"},
		},
		Categories:      SingleCategory("apple", "fruit"),
		ImageLicense:    1,
		DateCaptured:    "2024-04-12",
		FilePrefix:      "applebbch81",
		ImageExtensions: []string{"jpg", "jpeg", "png"},
		FallbackWidth:   640,
		FallbackHeight:  640,
	}
}

// LoadConfig reads a JSON configuration from path. Fields missing from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, &ConfigError{Msg: fmt.Sprintf("failed to read config file %q", path), Err: err}
	}
	if err := json.Unmarshal(enc, &cfg); err != nil {
		return cfg, &ConfigError{Msg: fmt.Sprintf("failed to parse config file %q", path), Err: err}
	}

	return cfg, cfg.Validate()
}

// SaveConfig writes cfg as indented JSON to path.
func SaveConfig(path string, cfg Config) error {
	enc, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, enc)
}

// Validate checks that the category table is consistent and the settings are usable.
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return &ConfigError{Msg: fmt.Sprintf(format, args...)}
	}

	if len(c.Categories.Categories) == 0 {
		return invalid("at least one category is required")
	}
	ids := make(map[int]bool, len(c.Categories.Categories))
	for _, cat := range c.Categories.Categories {
		if cat.ID <= 0 {
			return invalid("invalid category id %d for %q", cat.ID, cat.Name)
		}
		if ids[cat.ID] {
			return invalid("duplicate category id %d", cat.ID)
		}
		ids[cat.ID] = true
	}
	for class, id := range c.Categories.ByClass {
		if id != 0 && !ids[id] {
			return invalid("class %d maps to unknown category id %d", class, id)
		}
	}
	if c.Categories.Fallback != 0 && !ids[c.Categories.Fallback] {
		return invalid("unknown fallback category id %d", c.Categories.Fallback)
	}

	if len(c.ImageExtensions) == 0 {
		return invalid("image_extensions cannot be empty")
	}
	for _, ext := range c.ImageExtensions {
		if strings.TrimPrefix(ext, ".") == "" {
			return invalid("empty image extension")
		}
	}
	if c.FallbackWidth <= 0 || c.FallbackHeight <= 0 {
		return invalid("fallback dimensions must be positive")
	}
	if c.FilePrefix == "" {
		return invalid("file_prefix cannot be empty")
	}

	return nil
}
