package services

import (
	"encoding/json"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

const Uncategorized = "Uncategorized"

// Annotation is the part of an annotation record used for statistics.
type Annotation struct {
	Category string `json:"category"`
}

// ChartData summarizes an annotation payload.
type ChartData struct {
	ErrorBreakdown   map[string]int `json:"errorBreakdown"`
	TotalAnnotations int            `json:"totalAnnotations"`
}

// ParseAnnotations decodes a JSON array of annotation objects.
func ParseAnnotations(data []byte) ([]Annotation, error) {
	var out []Annotation
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, common.Validationf("annotations must be a JSON array of objects: %v", err)
	}
	return out, nil
}

// Breakdown counts annotations per category. Missing categories count as
// Uncategorized.
func Breakdown(annotations []Annotation) map[string]int {
	out := make(map[string]int)
	for _, a := range annotations {
		c := a.Category
		if c == "" {
			c = Uncategorized
		}
		out[c]++
	}
	return out
}

func NewChartData(annotations []Annotation) ChartData {
	return ChartData{ErrorBreakdown: Breakdown(annotations), TotalAnnotations: len(annotations)}
}
