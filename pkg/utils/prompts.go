package utils

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// LoadPrompt loads prompt instructions from an exact file path
func LoadPrompt(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read prompt file", goerr.V("path", filePath))
	}

	return strings.TrimSpace(string(content)), nil
}

// LoadPromptWithFallback loads prompt instructions, returning fallback when the
// path is empty or unreadable
func LoadPromptWithFallback(filePath, fallback string) string {
	if filePath == "" {
		return fallback
	}
	if content, err := LoadPrompt(filePath); err == nil && content != "" {
		return content
	}
	return fallback
}
