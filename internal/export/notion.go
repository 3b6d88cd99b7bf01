package export

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/pkg/notion"
)

// Publisher writes finished runs into a Notion database: one page per run,
// claim as title, status and tallies as properties, and a bullet per source
// result. Re-publishing a claim updates the existing page instead of
// creating a duplicate.
type Publisher struct {
	client notion.Client
	dbID   string
}

// NewPublisher creates a Publisher targeting the given database.
func NewPublisher(client notion.Client, databaseID string) *Publisher {
	return &Publisher{client: client, dbID: databaseID}
}

// PublishRun sends one run's report to Notion and returns the page ID.
func (p *Publisher) PublishRun(ctx context.Context, run *model.Run) (string, error) {
	if run == nil || run.Report == nil {
		return "", eris.New("export: run has no report to publish")
	}
	report := run.Report

	existing, err := notion.FindPageByClaim(ctx, p.client, p.dbID, report.Claim)
	if err != nil {
		return "", err
	}

	props := buildRunProperties(run)

	if existing != nil {
		page, err := p.client.Update(ctx, existing.ID.String(), &notionapi.PageUpdateRequest{
			Properties: props,
		})
		if err != nil {
			return "", eris.Wrap(err, "export: update notion page")
		}
		zap.L().Info("export: updated notion page",
			zap.String("page_id", page.ID.String()),
			zap.String("run_id", run.ID),
		)
		return page.ID.String(), nil
	}

	page, err := p.client.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(p.dbID),
		},
		Properties: props,
		Children:   buildResultBlocks(report),
	})
	if err != nil {
		return "", eris.Wrap(err, "export: create notion page")
	}

	zap.L().Info("export: created notion page",
		zap.String("page_id", page.ID.String()),
		zap.String("run_id", run.ID),
	)
	return page.ID.String(), nil
}

func buildRunProperties(run *model.Run) notionapi.Properties {
	report := run.Report
	props := notionapi.Properties{
		"Claim": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: report.Claim}},
			},
		},
		"Status": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: string(run.Status)},
		},
		"Run ID": notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: run.ID}},
			},
		},
		"Fetched":      numberProp(report.Counts.Fetched),
		"Supports":     numberProp(report.Counts.Supports),
		"Refutes":      numberProp(report.Counts.Refutes),
		"Unrelated":    numberProp(report.Counts.Unrelated),
		"Inconclusive": numberProp(report.Counts.Inconclusive),
	}
	return props
}

func numberProp(n int) notionapi.NumberProperty {
	return notionapi.NumberProperty{
		Type:   notionapi.PropertyTypeNumber,
		Number: float64(n),
	}
}

// buildResultBlocks renders each source result as one bulleted line:
// "#1 supports (0.85) | Title | https://..."
func buildResultBlocks(report *model.CheckReport) []notionapi.Block {
	blocks := make([]notionapi.Block, 0, len(report.Results))
	for _, res := range report.Results {
		blocks = append(blocks, &notionapi.BulletedListItemBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeBulletedListItem,
			},
			BulletedListItem: notionapi.ListItem{
				RichText: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: resultLine(res)}},
				},
			},
		})
	}
	return blocks
}

func resultLine(res model.SourceResult) string {
	title := res.Article.Title
	if title == "" {
		title = "(untitled)"
	}
	switch {
	case res.Verdict.Status == model.VerifierOK:
		return fmt.Sprintf("#%d %s (%.2f) | %s | %s",
			res.Rank+1, res.Verdict.Stance, res.Verdict.Confidence, title, res.Article.URL)
	case res.Article.FetchStatus != model.FetchOK:
		return fmt.Sprintf("#%d fetch %s | %s", res.Rank+1, res.Article.FetchStatus, res.Article.URL)
	default:
		return fmt.Sprintf("#%d verifier %s | %s | %s",
			res.Rank+1, res.Verdict.Status, title, res.Article.URL)
	}
}
