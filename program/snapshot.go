package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/keilerkonzept/serialplot/internal/pipeline"
)

const (
	snapshotWidth  = 1200
	snapshotHeight = 500
)

var errEmptyWindow = errors.New("window is empty")

// renderSnapshot draws the window as a PNG using the display range as the
// axis bounds, so the image matches what the terminal plot shows.
func renderSnapshot(view pipeline.View, w io.Writer) error {
	if len(view.Samples) == 0 || !view.HasRange {
		return errEmptyWindow
	}
	xs := make([]float64, len(view.Samples))
	ys := make([]float64, len(view.Samples))
	for i, s := range view.Samples {
		xs[i] = float64(s.Step)
		ys[i] = s.Value
	}

	r := view.Range
	xMax := max(float64(r.XMax), float64(r.XMin)+1)
	yMin, yMax := r.YMin, r.YMax
	if yMax <= yMin {
		yMin, yMax = yMin-1, yMax+1
	}

	ch := chart.Chart{
		Width:      snapshotWidth,
		Height:     snapshotHeight,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		XAxis: chart.XAxis{
			Name:  "Step",
			Range: &chart.ContinuousRange{Min: float64(r.XMin), Max: xMax},
		},
		YAxis: chart.YAxis{
			Name:  "Value",
			Range: &chart.ContinuousRange{Min: yMin, Max: yMax},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Signal",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: 1.5,
					StrokeColor: chart.ColorBlue,
				},
			},
		},
	}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render snapshot: %w", err)
	}
	return nil
}

// writeSnapshot renders view into dir and returns the file path.
func writeSnapshot(dir string, view pipeline.View, now time.Time) (string, error) {
	path := filepath.Join(dir, "serialplot-"+now.Format("20060102-150405.000")+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	if err := renderSnapshot(view, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	return path, nil
}
