package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFindURLs(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"no links here", nil},
		{"read https://example.com/a now", []string{"https://example.com/a"}},
		{"http://a.test/x and https://b.test/y?z=1", []string{"http://a.test/x", "https://b.test/y?z=1"}},
		{"broken https:// link", nil},
		{"ftp://files.test/x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, FindURLs(tt.text))
		})
	}
}

func TestEnrichWithArticles(t *testing.T) {
	ctx := context.Background()

	t.Run("no urls", func(t *testing.T) {
		q, c := EnrichWithArticles(ctx, stubExtractor{}, "plain", "ctx", time.Second)
		assert.Equal(t, "plain", q)
		assert.Equal(t, "ctx", c)
	})

	t.Run("articles are prepended cumulatively", func(t *testing.T) {
		extractor := stubExtractor{
			"https://a.test/1": "one",
			"https://a.test/2": "two",
		}
		q, c := EnrichWithArticles(ctx, extractor, "see https://a.test/1 https://a.test/2", "prior", time.Second)

		assert.Equal(t, "see [article content] [article content]", q)
		assert.Equal(t, "Article Content from https://a.test/2:\ntwo\n\nArticle Content from https://a.test/1:\none\n\nprior", c)
	})

	t.Run("empty extraction counts as failure", func(t *testing.T) {
		q, c := EnrichWithArticles(ctx, stubExtractor{"https://a.test/1": "  "}, "see https://a.test/1", "", time.Second)
		assert.Equal(t, "see https://a.test/1 (Note: Could not retrieve content from https://a.test/1)", q)
		assert.Equal(t, "", c)
	})

	t.Run("nil extractor", func(t *testing.T) {
		q, _ := EnrichWithArticles(ctx, nil, "see https://a.test/1", "", 0)
		assert.Equal(t, "see https://a.test/1 (Note: Could not retrieve content from https://a.test/1)", q)
	})
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "Context:\nabc\n\nQuestion: why?", BuildPrompt("abc", "why?"))
}
