package record

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Mode selects the validation strictness. Lenient is used for plain saves;
// Strict is used immediately before PDF export.
type Mode int

const (
	Lenient Mode = iota
	Strict
)

// FieldErrors maps field names to human-readable problems. It is plain data;
// validation never surfaces failures through the error return path.
type FieldErrors map[string]string

// MaxSignatureBytes bounds the encoded size of an embedded signature image so
// row sizes stay bounded.
const MaxSignatureBytes = 500 * 1024

// Validate converts raw submitted fields into the canonical payload for typ.
// Unknown keys are dropped, missing optional fields receive type-appropriate
// defaults, and every problem is reported together in the returned map. When
// the map is non-empty the returned Data must not be persisted.
func Validate(typ FormType, raw map[string]string, mode Mode) (Data, FieldErrors) {
	specs, ok := schemas[typ]
	if !ok {
		return nil, FieldErrors{"type": fmt.Sprintf("unknown form type %q", typ)}
	}

	data := make(Data, len(specs))
	errs := FieldErrors{}

	for _, spec := range specs {
		value := strings.TrimSpace(raw[spec.Name])

		if value == "" {
			if spec.Required || (mode == Strict && spec.StrictRequired) {
				errs[spec.Name] = "this field is required"
			}
			data[spec.Name] = defaultFor(spec.Kind)
			continue
		}

		switch spec.Kind {
		case KindNumber:
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				errs[spec.Name] = "must be a number"
				data[spec.Name] = float64(0)
			} else if n < 0 {
				errs[spec.Name] = "must not be negative"
				data[spec.Name] = float64(0)
			} else {
				data[spec.Name] = n
			}
		case KindBool:
			data[spec.Name] = parseCheckbox(value)
		case KindSignature:
			if err := validateSignature(value); err != nil {
				// The signature is cleared instead of aborting the pass so
				// the remaining field errors are still reported together.
				errs[spec.Name] = err.Error()
				data[spec.Name] = ""
			} else {
				data[spec.Name] = value
			}
		default:
			data[spec.Name] = value
		}
	}

	return data, errs
}

func defaultFor(kind Kind) any {
	switch kind {
	case KindNumber:
		return float64(0)
	case KindBool:
		return false
	default:
		return ""
	}
}

func parseCheckbox(value string) bool {
	switch strings.ToLower(value) {
	case "on", "true", "1", "yes", "checked":
		return true
	}
	return false
}

// validateSignature checks that a signature payload is a self-describing
// image data-URI within the size bound.
func validateSignature(value string) error {
	if len(value) > MaxSignatureBytes {
		return fmt.Errorf("signature exceeds %d KB limit", MaxSignatureBytes/1024)
	}
	if !strings.HasPrefix(value, "data:image/") {
		return fmt.Errorf("signature must be an embedded image")
	}
	idx := strings.Index(value, ";base64,")
	if idx < 0 {
		return fmt.Errorf("signature must be base64 encoded")
	}
	payload := value[idx+len(";base64,"):]
	if payload == "" {
		return fmt.Errorf("signature image is empty")
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return fmt.Errorf("signature image is malformed")
	}
	return nil
}
