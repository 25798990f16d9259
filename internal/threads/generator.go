package threads

import (
	"context"
	"strings"

	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
)

// Thread is a generated social media thread.
type Thread struct {
	Text      string `json:"text"`
	WordCount int    `json:"wordCount"`
	UnitCount int    `json:"unitCount"`
}

// Generator produces a thread for a topic at the requested length.
type Generator interface {
	Generate(ctx context.Context, topic string, tier enums.LengthTier) (Thread, error)
}

// Disabled is the generator used when no completion endpoint is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, enums.LengthTier) (Thread, error) {
	return Thread{}, pkgerrors.New(pkgerrors.CodeDependency, "thread generation is not configured")
}

// NewThread derives counts from generated text. Posts are separated by blank lines.
func NewThread(text string) Thread {
	text = strings.TrimSpace(text)
	return Thread{
		Text:      text,
		WordCount: len(strings.Fields(text)),
		UnitCount: len(splitPosts(text)),
	}
}

func splitPosts(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	var posts []string
	for _, chunk := range strings.Split(normalized, "\n\n") {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			posts = append(posts, trimmed)
		}
	}
	return posts
}
