package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFindPageByClaim_Found(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("Query", ctx, "db-3", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Claim" && pf.RichText != nil && pf.RichText.Equals == "water boils at 100C"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "existing-page"}},
	}, nil).Once()

	page, err := FindPageByClaim(ctx, mc, "db-3", "water boils at 100C")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, notionapi.ObjectID("existing-page"), page.ID)
	mc.AssertExpectations(t)
}

func TestFindPageByClaim_NotFound(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("Query", ctx, "db-3", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{}}, nil).Once()

	page, err := FindPageByClaim(ctx, mc, "db-3", "nobody published this")
	require.NoError(t, err)
	assert.Nil(t, page)
	mc.AssertExpectations(t)
}

func TestFindPageByClaim_QueryError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("Query", ctx, "db-3", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError).Once()

	page, err := FindPageByClaim(ctx, mc, "db-3", "water boils at 100C")
	require.Error(t, err)
	assert.Nil(t, page)
	assert.ErrorContains(t, err, "find page by claim")
	mc.AssertExpectations(t)
}
