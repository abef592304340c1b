package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"coincast/pkg/model"
)

var csvHeader = []string{"Day", "High", "Low", "Average", "Confidence", "Indicator"}

// WriteJSON encodes doc as indented JSON
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}

// ReadJSON decodes a document written by WriteJSON
func ReadJSON(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding export: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("decoding export: missing version")
	}
	return &doc, nil
}

// WriteCSV writes a "# key: value" metadata block, the header row, the
// combined forecast rows and then every indicator's rows.
func WriteCSV(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	for _, kv := range metaPairs(doc) {
		fmt.Fprintf(bw, "# %s: %s\n", kv[0], kv[1])
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	rows := slices.Clone(doc.CombinedForecast)
	for _, ind := range doc.IndividualIndicators {
		rows = append(rows, ind.Forecast...)
	}
	for _, p := range rows {
		if err := cw.Write([]string{
			strconv.Itoa(p.Day),
			p.High.String(),
			p.Low.String(),
			p.Avg.String(),
			p.Confidence.String(),
			p.Indicator,
		}); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return bw.Flush()
}

func metaPairs(doc *Document) [][2]string {
	pairs := [][2]string{
		{"version", doc.Version},
		{"exportedAt", doc.ExportedAt.Format(time.RFC3339)},
	}
	if m := doc.Metadata; m != nil {
		pairs = append(pairs,
			[2]string{"runId", m.RunID},
			[2]string{"symbol", m.Symbol},
			[2]string{"forecastDays", strconv.Itoa(m.ForecastDays)},
			[2]string{"dataPoints", strconv.Itoa(m.DataPoints)},
			[2]string{"source", m.Source},
			[2]string{"currentPrice", m.CurrentPrice.String()},
		)
		if m.Signal != "" {
			pairs = append(pairs, [2]string{"signal", m.Signal})
		}
	}
	return pairs
}

// ReadCSV parses a file written by WriteCSV. Rows not tagged with the
// combined source are grouped per indicator in file order.
func ReadCSV(r io.Reader) (*Document, error) {
	br := bufio.NewReader(r)
	doc := &Document{Metadata: &Metadata{}}
	for {
		b, err := br.Peek(1)
		if err != nil || b[0] != '#' {
			break
		}
		line, err := br.ReadString('\n')
		if perr := applyMeta(doc, line); perr != nil {
			return nil, perr
		}
		if err != nil {
			break
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(csvHeader)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 || !slices.Equal(records[0], csvHeader) {
		return nil, fmt.Errorf("reading csv: missing header row")
	}

	index := map[string]int{}
	for line, rec := range records[1:] {
		p, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", line+2, err)
		}
		if p.Indicator == model.MergedSource {
			doc.CombinedForecast = append(doc.CombinedForecast, p)
			continue
		}
		i, ok := index[p.Indicator]
		if !ok {
			i = len(doc.IndividualIndicators)
			index[p.Indicator] = i
			doc.IndividualIndicators = append(doc.IndividualIndicators, Indicator{Name: p.Indicator})
		}
		doc.IndividualIndicators[i].Forecast = append(doc.IndividualIndicators[i].Forecast, p)
	}
	return doc, nil
}

func applyMeta(doc *Document, line string) error {
	key, value, ok := strings.Cut(strings.TrimPrefix(strings.TrimSpace(line), "#"), ":")
	if !ok {
		return nil
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)

	var err error
	m := doc.Metadata
	switch key {
	case "version":
		doc.Version = value
	case "exportedAt":
		doc.ExportedAt, err = time.Parse(time.RFC3339, value)
	case "runId":
		m.RunID = value
	case "symbol":
		m.Symbol = value
	case "forecastDays":
		m.ForecastDays, err = strconv.Atoi(value)
	case "dataPoints":
		m.DataPoints, err = strconv.Atoi(value)
	case "source":
		m.Source = value
	case "currentPrice":
		m.CurrentPrice, err = decimal.NewFromString(value)
	case "signal":
		m.Signal = value
	}
	if err != nil {
		return fmt.Errorf("reading csv metadata %q: %w", key, err)
	}
	return nil
}

func parseRow(rec []string) (Point, error) {
	day, err := strconv.Atoi(rec[0])
	if err != nil {
		return Point{}, fmt.Errorf("day: %w", err)
	}
	p := Point{Day: day, Indicator: rec[5]}
	fields := []*decimal.Decimal{&p.High, &p.Low, &p.Avg, &p.Confidence}
	for i, dst := range fields {
		if *dst, err = decimal.NewFromString(rec[i+1]); err != nil {
			return Point{}, fmt.Errorf("%s: %w", csvHeader[i+1], err)
		}
	}
	return p, nil
}
