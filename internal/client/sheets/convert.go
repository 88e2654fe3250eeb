package sheets

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// Grid is a header row plus data rows. Every row has len(Headers) cells.
type Grid struct {
	Headers []string
	Rows    [][]string
}

// Values returns the grid as spreadsheet values, header row first.
func (g Grid) Values() [][]any {
	out := make([][]any, 0, len(g.Rows)+1)
	out = append(out, toAny(g.Headers))
	for _, r := range g.Rows {
		out = append(out, toAny(r))
	}
	return out
}

func toAny(row []string) []any {
	out := make([]any, len(row))
	for i, c := range row {
		out[i] = c
	}
	return out
}

// Convert validates data and turns it into a Grid:
//   - array of objects: headers are the sorted union of all keys
//   - object: Key/Value rows in document order
//   - array of other values: Index/Value rows
//   - anything else: a single Value cell
func Convert(data []byte) (Grid, error) {
	v := Validate(data)
	if !v.Valid {
		return Grid{}, common.Validationf("invalid JSON data: %s", strings.Join(v.Errors, ", "))
	}
	root, err := parseValue(data)
	if err != nil {
		return Grid{}, fmt.Errorf("convert JSON data: %w", err)
	}

	switch v.Kind {
	case KindArrayOfObjects:
		return objectsGrid(root.items), nil

	case KindArrayOfPrimitives:
		g := Grid{Headers: []string{"Index", "Value"}}
		for i, item := range root.items {
			g.Rows = append(g.Rows, []string{strconv.Itoa(i), item.String()})
		}
		return g, nil

	case KindSingleObject:
		g := Grid{Headers: []string{"Key", "Value"}}
		for i, k := range root.keys {
			g.Rows = append(g.Rows, []string{k, root.items[i].String()})
		}
		return g, nil

	default:
		return Grid{Headers: []string{"Value"}, Rows: [][]string{{root.String()}}}, nil
	}
}

func objectsGrid(items []value) Grid {
	seen := map[string]struct{}{}
	for _, item := range items {
		if item.kind != valueObject {
			continue
		}
		for _, k := range item.keys {
			seen[k] = struct{}{}
		}
	}

	headers := make([]string, 0, len(seen))
	for k := range seen {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	g := Grid{Headers: headers, Rows: make([][]string, 0, len(items))}
	for i, item := range items {
		row := make([]string, len(headers))
		for j, h := range headers {
			if item.kind != valueObject {
				row[j] = fmt.Sprintf("[Invalid item at index %d]", i)
				continue
			}
			if f, ok := item.field(h); ok {
				row[j] = f.String()
			}
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

// keysOf returns the distinct keys of a JSON object in document order.
func keysOf(raw []byte) ([]string, error) {
	v, err := parseValue(raw)
	if err != nil {
		return nil, err
	}
	if v.kind != valueObject {
		return nil, errors.New("not a JSON object")
	}
	return v.keys, nil
}
