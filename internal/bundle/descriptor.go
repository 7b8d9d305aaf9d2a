// ABOUTME: Descriptor contract and schema errors for generated bundle descriptors
// ABOUTME: Validation fails fast with a FieldError naming the offending field

package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Builder errors
var (
	ErrInvalidDescriptor   = errors.New("invalid descriptor")
	ErrMissingTemplateFile = errors.New("missing template file")
)

// Descriptor is the dynamic part of a bundle descriptor. Fields returns the
// top-level keys that overlay the template's static descriptor.
type Descriptor interface {
	Kind() Kind
	Validate() error
	Fields() (map[string]any, error)
}

// FieldError reports a schema violation. It matches ErrInvalidDescriptor
// under errors.Is.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid descriptor: %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidDescriptor
}

func required(field, value string) error {
	if value == "" {
		return &FieldError{Field: field, Reason: "is required"}
	}
	return nil
}

func absoluteURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &FieldError{Field: field, Reason: "must be an absolute URL"}
	}
	return nil
}

// Field is a label/value pair shown on the pass.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// DecodeDescriptor decodes stored record data into the descriptor type for
// kind. key is the record's external identifier and always wins over any
// identifier carried in data.
func DecodeDescriptor(kind Kind, key string, data []byte) (Descriptor, error) {
	switch kind {
	case KindPass:
		var d PassDescriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, &FieldError{Field: "data", Reason: err.Error()}
		}
		d.SerialNumber = key
		return &d, nil
	case KindOrder:
		var d OrderDescriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, &FieldError{Field: "data", Reason: err.Error()}
		}
		d.OrderIdentifier = key
		return &d, nil
	default:
		return nil, fmt.Errorf("unknown bundle kind %q", kind)
	}
}
