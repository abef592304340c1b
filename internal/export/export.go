// Package export writes forecast results to JSON or CSV files and reads them
// back.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"coincast/internal/analyzer"
	"coincast/internal/errs"
	"coincast/internal/numeric"
	"coincast/pkg/model"
)

// Version of the export document layout
const Version = "1.0"

const (
	pricePlaces      = 8
	confidencePlaces = 4
)

// Point is a forecast point with fixed precision numbers
type Point struct {
	Day        int             `json:"day"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Avg        decimal.Decimal `json:"avg"`
	Confidence decimal.Decimal `json:"confidence"`
	Indicator  string          `json:"indicator"`
}

// Indicator is one indicator's exported forecast
type Indicator struct {
	Name     string          `json:"name"`
	Accuracy decimal.Decimal `json:"accuracy"`
	Weight   decimal.Decimal `json:"weight"`
	Forecast []Point         `json:"forecast"`
}

// Metadata describes the run that produced the document
type Metadata struct {
	RunID        string          `json:"runId"`
	Symbol       string          `json:"symbol"`
	ForecastDays int             `json:"forecastDays"`
	DataPoints   int             `json:"dataPoints"`
	Source       string          `json:"source"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Signal       string          `json:"signal,omitempty"`
}

// Stats summarizes how the run went
type Stats struct {
	Indicators          int             `json:"indicators"`
	StrategiesSucceeded int             `json:"strategiesSucceeded"`
	StrategiesFailed    int             `json:"strategiesFailed"`
	SignalConfidence    decimal.Decimal `json:"signalConfidence"`
	ElapsedMs           int64           `json:"elapsedMs"`
}

// Document is the exported file content
type Document struct {
	Version              string      `json:"version"`
	ExportedAt           time.Time   `json:"exportedAt"`
	Metadata             *Metadata   `json:"metadata,omitempty"`
	CombinedForecast     []Point     `json:"combinedForecast"`
	IndividualIndicators []Indicator `json:"individualIndicators,omitempty"`
	PerformanceStats     *Stats      `json:"performanceStats,omitempty"`
}

// FromResult builds a document from an analysis run
func FromResult(res *analyzer.Result, now time.Time) *Document {
	doc := &Document{
		Version:          Version,
		ExportedAt:       now.UTC().Truncate(time.Second),
		CombinedForecast: points(res.Forecast),
		Metadata: &Metadata{
			RunID:        uuid.NewString(),
			Symbol:       res.Symbol,
			ForecastDays: res.Horizon(),
			CurrentPrice: price(res.CurrentPrice),
		},
		PerformanceStats: &Stats{
			Indicators: len(res.Indicators),
			ElapsedMs:  res.Elapsed.Milliseconds(),
		},
	}
	if res.History != nil {
		doc.Metadata.DataPoints = len(res.History.Data)
		doc.Metadata.Source = res.History.Source
	}
	for _, r := range res.Indicators {
		doc.IndividualIndicators = append(doc.IndividualIndicators, Indicator{
			Name:     r.Name,
			Accuracy: ratio(r.Accuracy),
			Weight:   ratio(r.Weight),
			Forecast: points(r.Forecast),
		})
	}
	if s := res.Strategies; s != nil {
		doc.Metadata.Signal = string(s.Signal.Recommendation)
		doc.PerformanceStats.StrategiesSucceeded = s.Performance.Succeeded
		doc.PerformanceStats.StrategiesFailed = s.Performance.Failed
		doc.PerformanceStats.SignalConfidence = ratio(s.Signal.ConfidenceScore)
	}
	return doc
}

// Forecast converts the combined forecast back to model points
func (d *Document) Forecast() []model.ForecastPoint {
	out := make([]model.ForecastPoint, len(d.CombinedForecast))
	for i, p := range d.CombinedForecast {
		out[i] = p.model()
	}
	return out
}

// Write saves doc to path. The extension picks the format.
func Write(path string, doc *Document) error {
	format, err := formatOf(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if format == "json" {
		err = WriteJSON(f, doc)
	} else {
		err = WriteCSV(f, doc)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing export file: %w", cerr)
	}
	return err
}

// Read loads a document written by Write
func Read(path string) (*Document, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening export file: %w", err)
	}
	defer f.Close()

	if format == "json" {
		return ReadJSON(f)
	}
	return ReadCSV(f)
}

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".csv":
		return "csv", nil
	}
	return "", errs.Validation("save", "unsupported export format %q (want .json or .csv)", filepath.Ext(path))
}

func points(in []model.ForecastPoint) []Point {
	out := make([]Point, len(in))
	for i, p := range in {
		out[i] = Point{
			Day:        p.Day,
			High:       price(p.High),
			Low:        price(p.Low),
			Avg:        price(p.Avg),
			Confidence: ratio(p.Confidence),
			Indicator:  p.Indicator,
		}
	}
	return out
}

func (p Point) model() model.ForecastPoint {
	return model.ForecastPoint{
		Day:        p.Day,
		High:       p.High.InexactFloat64(),
		Low:        p.Low.InexactFloat64(),
		Avg:        p.Avg.InexactFloat64(),
		Confidence: p.Confidence.InexactFloat64(),
		Indicator:  p.Indicator,
	}
}

// NewFromFloat panics on NaN and Inf, those export as zero
func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(numeric.Sanitize(v, 0)).Round(pricePlaces)
}

func ratio(v float64) decimal.Decimal {
	return decimal.NewFromFloat(numeric.Sanitize(v, 0)).Round(confidencePlaces)
}
