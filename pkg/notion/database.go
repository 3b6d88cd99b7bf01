package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// FindPageByClaim looks up the report page whose Claim title matches the
// claim exactly. It returns nil when no page exists, letting callers decide
// between creating a page and updating the one found.
func FindPageByClaim(ctx context.Context, c Client, dbID, claim string) (*notionapi.Page, error) {
	resp, err := c.Query(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Claim",
			RichText: &notionapi.TextFilterCondition{Equals: claim},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: find page by claim")
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}
