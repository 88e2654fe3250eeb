package sheets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	valueNull valueKind = iota
	valueBool
	valueNumber
	valueString
	valueArray
	valueObject
)

// value is a decoded JSON value. Objects keep member order; a repeated key
// keeps its first position and its last value.
type value struct {
	kind  valueKind
	text  string // string contents or number literal
	truth bool
	keys  []string
	items []value // array items, or object values aligned with keys
}

func parseValue(raw []byte) (value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return value{}, err
	}
	if _, err := dec.Token(); err == nil {
		return value{}, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (value, error) {
	tok, err := dec.Token()
	if err != nil {
		return value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return value{kind: valueNull}, nil
	case bool:
		return value{kind: valueBool, truth: t}, nil
	case json.Number:
		return value{kind: valueNumber, text: t.String()}, nil
	case string:
		return value{kind: valueString, text: t}, nil
	case json.Delim:
		switch t {
		case '[':
			v := value{kind: valueArray}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return value{}, err
				}
				v.items = append(v.items, item)
			}
			_, err := dec.Token()
			return v, err
		case '{':
			v := value{kind: valueObject}
			pos := map[string]int{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return value{}, fmt.Errorf("unexpected token %v", kt)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return value{}, err
				}
				if i, ok := pos[key]; ok {
					v.items[i] = item
					continue
				}
				pos[key] = len(v.keys)
				v.keys = append(v.keys, key)
				v.items = append(v.items, item)
			}
			_, err := dec.Token()
			return v, err
		}
	}
	return value{}, fmt.Errorf("unexpected token %v", tok)
}

// field returns the value stored under key.
func (v value) field(key string) (value, bool) {
	for i, k := range v.keys {
		if k == key {
			return v.items[i], true
		}
	}
	return value{}, false
}

// String renders v the way a spreadsheet cell shows it: null is empty,
// strings are unquoted, numbers use the shortest round-trip form and nested
// values are compact JSON.
func (v value) String() string {
	switch v.kind {
	case valueNull:
		return ""
	case valueBool:
		return strconv.FormatBool(v.truth)
	case valueNumber:
		s, _ := formatNumber(v.text)
		return s
	case valueString:
		return v.text
	default:
		var b strings.Builder
		v.writeJSON(&b)
		return b.String()
	}
}

func (v value) writeJSON(b *strings.Builder) {
	switch v.kind {
	case valueNull:
		b.WriteString("null")
	case valueBool:
		b.WriteString(strconv.FormatBool(v.truth))
	case valueNumber:
		if s, finite := formatNumber(v.text); finite {
			b.WriteString(s)
		} else {
			b.WriteString("null")
		}
	case valueString:
		writeQuoted(b, v.text)
	case valueArray:
		b.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				b.WriteByte(',')
			}
			item.writeJSON(b)
		}
		b.WriteByte(']')
	case valueObject:
		b.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeQuoted(b, k)
			b.WriteByte(':')
			v.items[i].writeJSON(b)
		}
		b.WriteByte('}')
	}
}

// formatNumber parses a JSON number literal and formats it in shortest
// round-trip form with an exponent only below 1e-6 or from 1e21 up.
// Overflowing literals report finite=false.
func formatNumber(lit string) (s string, finite bool) {
	f, err := strconv.ParseFloat(lit, 64)
	if math.IsInf(f, 0) {
		if f > 0 {
			return "Infinity", false
		}
		return "-Infinity", false
	}
	if err != nil {
		return lit, true
	}
	if f == 0 {
		return "0", true
	}
	out, err := json.Marshal(f)
	if err != nil {
		return lit, true
	}
	return string(out), true
}

const hexDigits = "0123456789abcdef"

// writeQuoted escapes only quotes, backslashes and control characters.
// HTML characters and U+2028/U+2029 are written as is.
func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[r>>4])
				b.WriteByte(hexDigits[r&0xf])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
