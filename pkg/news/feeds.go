// Package news pulls articles from RSS feeds and indexes them so chat turns
// can retrieve them as context.
package news

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Feed is a named RSS or Atom feed
type Feed struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// FeedConfig is the layout of the feeds YAML file
type FeedConfig struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file
func LoadFeeds(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read feeds file", goerr.V("path", path))
	}

	return ParseFeeds(data)
}

// ParseFeeds decodes a feed list, dropping entries without a URL
func ParseFeeds(data []byte) ([]Feed, error) {
	var config FeedConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, goerr.Wrap(err, "failed to parse feeds yaml")
	}

	feeds := make([]Feed, 0, len(config.Feeds))
	for _, f := range config.Feeds {
		f.URL = strings.TrimSpace(f.URL)
		if f.URL == "" {
			continue
		}
		if f.Name == "" {
			f.Name = f.URL
		}
		feeds = append(feeds, f)
	}

	return feeds, nil
}
