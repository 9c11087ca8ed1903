package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"slices"
	"strings"
)

// ErrMalformedNewsQueue is returned when the news queue file is not valid JSON.
var ErrMalformedNewsQueue = errors.New("malformed news queue")

// Article is one entry of the news queue file written by the news fetcher.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PubDate     string `json:"pubDate"`
	Processed   bool   `json:"processed"`
}

// Text returns the text that gets embedded for the article.
func (a Article) Text() string {
	title := strings.TrimSpace(a.Title)
	desc := strings.TrimSpace(a.Description)
	switch {
	case title == "":
		return desc
	case desc == "":
		return title
	default:
		return strings.TrimSuffix(title, ".") + ". " + desc
	}
}

// NewsSource yields unprocessed articles of a news queue file, a JSON object
// mapping article id to Article, in article id order.
type NewsSource struct {
	Path string
}

// NewNewsSource returns a source reading the news queue at path.
func NewNewsSource(path string) *NewsSource {
	return &NewsSource{Path: path}
}

// Open reads and decodes the whole queue file.
func (s *NewsSource) Open() (iter.Seq2[string, error], error) {
	articles, err := s.load()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(articles))
	for id, art := range articles {
		if !art.Processed {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	return func(yield func(string, error) bool) {
		for _, id := range ids {
			text := articles[id].Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}, nil
}

// MarkProcessed flags the given article ids as processed and rewrites the file.
// Unknown ids are ignored.
func (s *NewsSource) MarkProcessed(ids ...string) error {
	articles, err := s.load()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if art, ok := articles[id]; ok {
			art.Processed = true
			articles[id] = art
		}
	}

	data, err := json.MarshalIndent(articles, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding news queue: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing news queue: %w", err)
	}
	return nil
}

// Unprocessed returns the ids of articles not yet processed, sorted.
func (s *NewsSource) Unprocessed() ([]string, error) {
	pending, err := s.Pending()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Pending maps the id of every unprocessed article to the text Open yields
// for it. Articles with nothing to embed map to "".
func (s *NewsSource) Pending() (map[string]string, error) {
	articles, err := s.load()
	if err != nil {
		return nil, err
	}
	pending := make(map[string]string)
	for id, art := range articles {
		if !art.Processed {
			pending[id] = art.Text()
		}
	}
	return pending, nil
}

func (s *NewsSource) load() (map[string]Article, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	articles := make(map[string]Article)
	if len(strings.TrimSpace(string(data))) == 0 {
		return articles, nil
	}
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedNewsQueue, s.Path, err)
	}
	return articles, nil
}
