//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/claimsift/claimsift/internal/model"
)

func sampleCheckReport() *model.CheckReport {
	return &model.CheckReport{
		Claim:     "coffee prevents heart disease",
		Requested: 2,
		Verified:  true,
		Results: []model.SourceResult{
			{
				Rank: 0,
				Article: model.Article{
					URL:         "https://news.example/coffee",
					Title:       "Coffee study retracted",
					BodyText:    "The study was retracted.",
					FetchStatus: model.FetchOK,
				},
				Verdict: model.Verdict{
					Stance:     model.StanceRefutes,
					Confidence: 0.8,
					Status:     model.VerifierOK,
				},
			},
			{
				Rank:    1,
				Article: model.FailedArticle("https://dead.example/x", model.FetchUnreachable, "connection refused"),
				Verdict: model.SkippedVerdict(),
			},
		},
	}
}

func TestExportReport_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, exportReport(sampleCheckReport(), "csv", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rank,url,title")
	assert.Contains(t, string(data), "https://news.example/coffee")
	assert.Contains(t, string(data), "refutes")
}

func TestExportReport_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, exportReport(sampleCheckReport(), "xlsx", path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet["Sources"]
	require.True(t, ok)
	assert.Greater(t, len(sheet.Rows), 1)
}

func TestExportReport_UnknownFormat(t *testing.T) {
	err := exportReport(sampleCheckReport(), "pdf", filepath.Join(t.TempDir(), "out.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
