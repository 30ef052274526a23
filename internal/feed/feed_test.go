package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument_CopiesItemFields(t *testing.T) {
	item := &Item{
		Link:     "http://example.com/post/1",
		Title:    "A post",
		Content:  "Body text",
		FeedURL:  "http://example.com/feed",
		Language: "de",
	}

	doc, err := NewDocument(item)
	require.NoError(t, err)

	assert.Equal(t, item.Link, doc.Link)
	assert.Equal(t, item.Link, doc.Key())
	assert.Equal(t, item.FeedURL, doc.Feed)
	assert.Equal(t, "de", doc.Lang)
}

func TestNewDocument_RejectsMissingLink(t *testing.T) {
	_, err := NewDocument(&Item{Title: "no link", FeedURL: "http://f"})
	assert.Error(t, err)

	_, err = NewDocument(&Item{Link: "   "})
	assert.Error(t, err)
}

func TestTerms(t *testing.T) {
	it := ItemTerm("http://example.com/post/1")
	assert.Equal(t, FieldLink, it.Field)
	assert.Equal(t, "link:http://example.com/post/1", it.String())

	ft := FeedTerm("http://example.com/feed")
	assert.Equal(t, FieldFeed, ft.Field)
	assert.Equal(t, "http://example.com/feed", ft.Value)
}
