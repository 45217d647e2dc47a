package pca

import (
	"strconv"

	"github.com/montanaflynn/stats"
)

// Stats are the headline numbers shown above the charts. Percentages are
// ratio*100, unrounded.
type Stats struct {
	PointCount        int     `json:"pointCount"`
	PC1Percent        float64 `json:"pc1Percent"`
	PC2Percent        float64 `json:"pc2Percent"`
	CumulativePercent float64 `json:"cumulativePercent"`
}

// Summarize derives the headline statistics. A missing second component
// counts as zero variance; the cumulative figure falls back to the last
// available component.
func Summarize(r Result) Stats {
	return Stats{
		PointCount:        len(r.Points),
		PC1Percent:        ratioAt(r.ExplainedVarianceRatio, 0) * 100,
		PC2Percent:        ratioAt(r.ExplainedVarianceRatio, 1) * 100,
		CumulativePercent: cumulativeThrough(r.CumulativeVarianceRatio, 1) * 100,
	}
}

// PointCountText is the point count as displayed.
func (s Stats) PointCountText() string { return strconv.Itoa(s.PointCount) }

// PC1Text is the PC1 share as displayed.
func (s Stats) PC1Text() string { return FormatPercent(s.PC1Percent) }

// PC2Text is the PC2 share as displayed.
func (s Stats) PC2Text() string { return FormatPercent(s.PC2Percent) }

// CumulativeText is the PC1+PC2 cumulative share as displayed.
func (s Stats) CumulativeText() string { return FormatPercent(s.CumulativePercent) }

// FormatPercent renders a percentage with one decimal place.
func FormatPercent(pct float64) string {
	return strconv.FormatFloat(pct, 'f', 1, 64) + "%"
}

// ExplainedAt returns the explained variance ratio of component i (0-based),
// or zero when the service did not report it.
func (r Result) ExplainedAt(i int) float64 {
	return ratioAt(r.ExplainedVarianceRatio, i)
}

func ratioAt(vals []float64, i int) float64 {
	if i < 0 || i >= len(vals) {
		return 0
	}
	return vals[i]
}

func cumulativeThrough(vals []float64, i int) float64 {
	if len(vals) == 0 {
		return 0
	}
	if i >= len(vals) {
		i = len(vals) - 1
	}
	return vals[i]
}

// AxisSpread summarises one coordinate axis of the projected points.
type AxisSpread struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
}

// CoordinateSpread summarises both projected axes.
type CoordinateSpread struct {
	PC1 AxisSpread `json:"pc1"`
	PC2 AxisSpread `json:"pc2"`
}

// Spread computes per-axis extents and moments. An empty result yields zeros.
func Spread(r Result) CoordinateSpread {
	xs := make([]float64, 0, len(r.Points))
	ys := make([]float64, 0, len(r.Points))
	for _, p := range r.Points {
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	return CoordinateSpread{PC1: axisSpread(xs), PC2: axisSpread(ys)}
}

func axisSpread(vals []float64) AxisSpread {
	if len(vals) == 0 {
		return AxisSpread{}
	}
	data := stats.Float64Data(vals)
	lo, _ := data.Min()
	hi, _ := data.Max()
	mean, _ := data.Mean()
	sd, _ := data.StandardDeviation()
	return AxisSpread{Min: lo, Max: hi, Mean: mean, StdDev: sd}
}
