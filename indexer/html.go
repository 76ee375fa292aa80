package indexer

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-shiori/go-readability"
)

// SectionsFromHTML reduces a documentation HTML page to its readable
// content, converts it to markdown, and splits it into one DocSection per
// heading. Pages without headings yield a single section.
func SectionsFromHTML(docID, pageURL string, html []byte, fetchedAt time.Time) ([]DocSection, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse doc url %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(html), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("extract readable content from %s: %w", pageURL, err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("convert %s to markdown: %w", pageURL, err)
	}

	sections := splitMarkdownSections(markdown)
	out := make([]DocSection, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		out = append(out, DocSection{
			DocID:     docID,
			Heading:   s.heading,
			Body:      strings.TrimSpace(s.body),
			URL:       pageURL,
			UpdatedAt: fetchedAt,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sections extracted from %s", pageURL)
	}
	return out, nil
}

type markdownSection struct {
	heading string
	body    string
}

// splitMarkdownSections cuts markdown at heading lines. Content before
// the first heading becomes an untitled leading section.
func splitMarkdownSections(markdown string) []markdownSection {
	var sections []markdownSection
	current := markdownSection{}

	flush := func() {
		if current.heading != "" || strings.TrimSpace(current.body) != "" {
			sections = append(sections, current)
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			current = markdownSection{heading: strings.TrimSpace(strings.TrimLeft(line, "# "))}
			continue
		}
		current.body += line + "\n"
	}
	flush()

	return sections
}
