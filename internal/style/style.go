// Package style parses and resolves QR code visual styling options.
//
// A style blob is stored on the Association as opaque JSON and merged over
// the configured defaults only when read. Each recognized option is
// validated on its own at parse time; invalid fields are dropped rather
// than failing the whole submission.
package style

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// Recognized option names.
const (
	FieldFillColor       = "fill_color"
	FieldBackColor       = "back_color"
	FieldBoxSize         = "box_size"
	FieldBorder          = "border"
	FieldErrorCorrection = "error_correction"
)

const (
	maxBoxSize = 100
	maxBorder  = 50
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Parse validates the recognized fields of a raw form submission and
// returns the serialized blob for storage. Fields that fail validation
// are dropped; unrecognized fields are ignored. Returns nil when nothing
// valid remains, meaning "use system defaults".
func Parse(fields map[string]string) (*string, error) {
	cfg := make(map[string]string)
	for name, value := range fields {
		if validateField(name, value) {
			cfg[name] = value
		}
	}
	if len(cfg) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("style: marshal config: %w", err)
	}
	blob := string(data)
	return &blob, nil
}

// Resolve merges a stored blob over the default options. The merge is
// shallow: a key present in the blob replaces the default wholesale.
// A nil or malformed blob yields a copy of the defaults.
func Resolve(defaults map[string]string, blob *string) map[string]string {
	resolved := make(map[string]string, len(defaults))
	for name, value := range defaults {
		resolved[name] = value
	}
	if blob == nil {
		return resolved
	}
	var stored map[string]string
	if err := json.Unmarshal([]byte(*blob), &stored); err != nil {
		// Stored blobs predate per-field validation; keep the defaults.
		return resolved
	}
	for name, value := range stored {
		resolved[name] = value
	}
	return resolved
}

func validateField(name, value string) bool {
	switch name {
	case FieldFillColor, FieldBackColor:
		return hexColorPattern.MatchString(value)
	case FieldBoxSize:
		n, err := strconv.Atoi(value)
		return err == nil && n > 0 && n <= maxBoxSize
	case FieldBorder:
		n, err := strconv.Atoi(value)
		return err == nil && n >= 0 && n <= maxBorder
	case FieldErrorCorrection:
		switch value {
		case "L", "M", "Q", "H":
			return true
		}
		return false
	default:
		return false
	}
}
