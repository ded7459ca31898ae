package sentiment

import "context"

// TextFetcher retrieves raw text snippets from one channel (subreddit
// posts, news headlines, social posts). Errors propagate to the
// aggregator, which logs and skips that source for the cycle.
type TextFetcher func(ctx context.Context) ([]string, error)

// FeedSource adapts a TextFetcher into a Source by scoring the fetched
// texts with the keyword lexicon — the Go equivalent of the Python
// agent's fetch-then-analyze split, collapsed into one step since there is
// no separate ML scoring backend in scope here.
type FeedSource struct {
	name  string
	fetch TextFetcher
}

// NewFeedSource builds a named source around fetch.
func NewFeedSource(name string, fetch TextFetcher) *FeedSource {
	return &FeedSource{name: name, fetch: fetch}
}

// Name implements Source.
func (f *FeedSource) Name() string { return f.name }

// Fetch implements Source.
func (f *FeedSource) Fetch(ctx context.Context) (Reading, error) {
	texts, err := f.fetch(ctx)
	if err != nil {
		return Reading{}, err
	}
	return ScoreTexts(texts), nil
}
