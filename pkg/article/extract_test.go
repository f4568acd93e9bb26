package article

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFrom_Selectors(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "article tag",
			html: `<html><body><nav>Menu</nav><article><h1>Title</h1>
				<p>First   paragraph.</p>
				<p>Second paragraph.</p></article></body></html>`,
			want: "Title First paragraph. Second paragraph.",
		},
		{
			name: "itemprop body",
			html: `<div itemprop="articleBody"><p>Body text</p></div>`,
			want: "Body text",
		},
		{
			name: "content class substring",
			html: `<div class="main-content-wrapper">Wrapped <b>text</b></div>`,
			want: "Wrapped text",
		},
		{
			name: "post content section",
			html: `<section class="post-content">Post body</section>`,
			want: "Post body",
		},
		{
			name: "scripts stripped",
			html: `<article>Visible<script>var x = 1;</script><style>p{}</style></article>`,
			want: "Visible",
		},
		{
			name: "nothing matches",
			html: `<html><body><p>Loose text</p></body></html>`,
			want: "",
		},
		{
			name: "every article joined",
			html: `<article>Part one.</article><aside>Ad</aside><article>Part two.</article>`,
			want: "Part one. Part two.",
		},
		{
			name: "nested matches not repeated",
			html: `<div class="content">Outer <div class="inner-content">inner</div></div>`,
			want: "Outer inner",
		},
		{
			name: "empty article falls through",
			html: `<article>   </article><section class="post-content">Fallback</section>`,
			want: "Fallback",
		},
	}

	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractFrom(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_HTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`<article>Breaking story</article>`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`<article>late</article>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()

	text, err := NewExtractor().Extract(ctx, srv.URL+"/news")
	require.NoError(t, err)
	assert.Equal(t, "Breaking story", text)

	_, err = NewExtractor().Extract(ctx, srv.URL+"/missing")
	assert.Error(t, err)

	_, err = NewExtractor(WithTimeout(20*time.Millisecond)).Extract(ctx, srv.URL+"/slow")
	assert.Error(t, err)

	_, err = NewExtractor().Extract(ctx, "://bad")
	assert.Error(t, err)
}

func TestCustomSelectors(t *testing.T) {
	e := NewExtractor(WithSelectors("main"))
	got, err := e.ExtractFrom(strings.NewReader(`<article>ignored</article><main>Chosen</main>`))
	require.NoError(t, err)
	assert.Equal(t, "Chosen", got)
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\tb   c \n"))
	assert.Equal(t, "", CollapseWhitespace(" \n "))
}
