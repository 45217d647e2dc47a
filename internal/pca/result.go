// Package pca holds the analysis result returned by the remote PCA service,
// validated at the boundary, and the summary statistics derived from it.
package pca

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResult is returned when a success response does not match the
// expected result shape.
var ErrMalformedResult = errors.New("malformed analysis result")

// Point is one projected sample: its PC1/PC2 coordinates and a label.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// Result is the parsed payload of a successful analysis.
// Index 0 of both ratio slices refers to PC1.
type Result struct {
	Points                  []Point   `json:"points"`
	ExplainedVarianceRatio  []float64 `json:"explained_variance_ratio_all"`
	CumulativeVarianceRatio []float64 `json:"cumulative_variance_ratio_all"`
}

type wirePoint struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Label *string  `json:"label"`
}

type wireResult struct {
	Points     *[]wirePoint `json:"points"`
	Explained  *[]float64   `json:"explained_variance_ratio_all"`
	Cumulative *[]float64   `json:"cumulative_variance_ratio_all"`
}

// Decode parses and validates a success body. Every failure wraps
// ErrMalformedResult.
func Decode(raw []byte) (Result, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Result{}, fmt.Errorf("%w: empty body", ErrMalformedResult)
	}

	var w wireResult
	if err := json.Unmarshal(raw, &w); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	switch {
	case w.Points == nil:
		return Result{}, missing("points")
	case w.Explained == nil:
		return Result{}, missing("explained_variance_ratio_all")
	case w.Cumulative == nil:
		return Result{}, missing("cumulative_variance_ratio_all")
	}

	points := make([]Point, 0, len(*w.Points))
	for i, p := range *w.Points {
		if p.X == nil || p.Y == nil {
			return Result{}, fmt.Errorf("%w: points[%d] missing coordinate", ErrMalformedResult, i)
		}
		pt := Point{X: *p.X, Y: *p.Y}
		if p.Label != nil {
			pt.Label = *p.Label
		}
		points = append(points, pt)
	}

	res := Result{
		Points:                  points,
		ExplainedVarianceRatio:  append([]float64(nil), (*w.Explained)...),
		CumulativeVarianceRatio: append([]float64(nil), (*w.Cumulative)...),
	}
	if err := res.Validate(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Validate checks the invariants the renderer relies on.
func (r Result) Validate() error {
	if len(r.ExplainedVarianceRatio) == 0 {
		return fmt.Errorf("%w: explained_variance_ratio_all is empty", ErrMalformedResult)
	}
	if len(r.CumulativeVarianceRatio) == 0 {
		return fmt.Errorf("%w: cumulative_variance_ratio_all is empty", ErrMalformedResult)
	}
	return nil
}

// Components is the number of principal components reported.
func (r Result) Components() int {
	return len(r.ExplainedVarianceRatio)
}

func missing(field string) error {
	return fmt.Errorf("%w: missing field %q", ErrMalformedResult, field)
}
