// Package export serializes finished check reports to CSV, JSON, and XLSX
// files and publishes them to Notion. Tabular forms carry one flat row per
// source result so a report opens cleanly in a spreadsheet.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/claimsift/claimsift/internal/model"
)

// Format is a supported export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unknown format %q (want csv, json, or xlsx)", s)
	}
}

// Row is one source result flattened to scalars.
type Row struct {
	Rank           int     `json:"rank"`
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Authors        string  `json:"authors"`
	PublishedAt    string  `json:"published_at"`
	FetchStatus    string  `json:"fetch_status"`
	Stance         string  `json:"stance"`
	Confidence     float64 `json:"confidence"`
	Rationale      string  `json:"rationale"`
	VerifierStatus string  `json:"verifier_status"`
	BodyText       string  `json:"body_text"`
}

var header = []string{
	"rank", "url", "title", "authors", "published_at", "fetch_status",
	"stance", "confidence", "rationale", "verifier_status", "body_text",
}

// Flatten converts a report's results into export rows, preserving rank
// order.
func Flatten(report *model.CheckReport) []Row {
	rows := make([]Row, 0, len(report.Results))
	for _, res := range report.Results {
		publishedAt := ""
		if res.Article.PublishedAt != nil {
			publishedAt = res.Article.PublishedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, Row{
			Rank:           res.Rank,
			URL:            res.Article.URL,
			Title:          res.Article.Title,
			Authors:        strings.Join(res.Article.Authors, "; "),
			PublishedAt:    publishedAt,
			FetchStatus:    string(res.Article.FetchStatus),
			Stance:         string(res.Verdict.Stance),
			Confidence:     res.Verdict.Confidence,
			Rationale:      res.Verdict.Rationale,
			VerifierStatus: string(res.Verdict.Status),
			BodyText:       res.Article.BodyText,
		})
	}
	return rows
}

func (r Row) strings() []string {
	return []string{
		strconv.Itoa(r.Rank),
		r.URL,
		r.Title,
		r.Authors,
		r.PublishedAt,
		r.FetchStatus,
		r.Stance,
		strconv.FormatFloat(r.Confidence, 'f', 2, 64),
		r.Rationale,
		r.VerifierStatus,
		r.BodyText,
	}
}

// Write serializes the report to w in the given format.
func Write(w io.Writer, format Format, report *model.CheckReport) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, report)
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatXLSX:
		return WriteXLSX(w, report)
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

// WriteCSV writes a header row followed by one row per source result.
func WriteCSV(w io.Writer, report *model.CheckReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, row := range Flatten(report) {
		if err := cw.Write(row.strings()); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

// WriteJSON writes the flattened rows as an indented JSON array.
func WriteJSON(w io.Writer, report *model.CheckReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Flatten(report)); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with the same layout as the CSV
// form.
func WriteXLSX(w io.Writer, report *model.CheckReport) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sources")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hr := sheet.AddRow()
	for _, name := range header {
		hr.AddCell().SetString(name)
	}
	for _, row := range Flatten(report) {
		xr := sheet.AddRow()
		for _, v := range row.strings() {
			xr.AddCell().SetString(v)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
