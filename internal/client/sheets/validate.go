package sheets

import (
	"bytes"
	"encoding/json"
)

// Kind classifies the top-level shape of a JSON payload.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindArrayOfObjects    Kind = "array_of_objects"
	KindArrayOfPrimitives Kind = "array_of_primitives"
	KindSingleObject      Kind = "single_object"
	KindPrimitive         Kind = "primitive"
)

const (
	largePayloadBytes = 1_000_000
	manyRows          = 50_000
	manyColumns       = 26
	manyKeys          = 1000
	// items after the first compared against its key set
	consistencySample = 9
)

// Validation is the outcome of Validate. Warnings never make a payload
// invalid.
type Validation struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Kind          Kind     `json:"type"`
	EstimatedSize int      `json:"estimatedSize"`
}

func (v *Validation) fail(msg string) Validation {
	v.Valid = false
	v.Errors = append(v.Errors, msg)
	return *v
}

// Validate inspects a JSON payload before conversion.
func Validate(data []byte) Validation {
	v := Validation{Valid: true, Errors: []string{}, Warnings: []string{}, Kind: KindUnknown}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v.fail("JSON data is null or undefined")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return v.fail("Failed to validate JSON data: " + err.Error())
	}
	v.EstimatedSize = compact.Len()
	if v.EstimatedSize > largePayloadBytes {
		v.Warnings = append(v.Warnings, "Large dataset detected. Consider splitting into smaller chunks.")
	}

	switch kindOf(trimmed) {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return v.fail("Failed to validate JSON data: " + err.Error())
		}
		if len(items) == 0 {
			return v.fail("Array is empty")
		}
		if len(items) > manyRows {
			v.Warnings = append(v.Warnings, "Dataset has over 50,000 rows. Google Sheets may have performance issues.")
		}
		if kindOf(items[0]) != '{' {
			v.Kind = KindArrayOfPrimitives
			return v
		}

		v.Kind = KindArrayOfObjects
		first, _ := keysOf(items[0])
		if len(first) > manyColumns {
			v.Warnings = append(v.Warnings, "More than 26 columns detected. Some columns may be difficult to navigate.")
		}
		if inconsistent(first, items[1:min(len(items), consistencySample+1)]) {
			v.Warnings = append(v.Warnings, "Inconsistent object structures detected. Some cells may be empty.")
		}
	case '{':
		v.Kind = KindSingleObject
		keys, err := keysOf(trimmed)
		if err != nil {
			return v.fail("Failed to validate JSON data: " + err.Error())
		}
		if len(keys) > manyKeys {
			v.Warnings = append(v.Warnings, "Object has many properties. Consider restructuring data.")
		}
	default:
		v.Kind = KindPrimitive
	}
	return v
}

func inconsistent(first []string, rest []json.RawMessage) bool {
	want := make(map[string]struct{}, len(first))
	for _, k := range first {
		want[k] = struct{}{}
	}
	for _, item := range rest {
		var keys []string
		if kindOf(item) == '{' {
			keys, _ = keysOf(item)
		}
		if len(keys) != len(first) {
			return true
		}
		for _, k := range keys {
			if _, ok := want[k]; !ok {
				return true
			}
		}
	}
	return false
}

// kindOf returns the first significant byte of a JSON value.
func kindOf(raw []byte) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}
