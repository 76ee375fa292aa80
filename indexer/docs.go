package indexer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/driftwatch/registry"
	"github.com/c360studio/driftwatch/vectorstore"
)

// DocSection is one exported documentation section.
type DocSection struct {
	DocID        string    `json:"doc_id"`
	Heading      string    `json:"heading"`
	Body         string    `json:"body"`
	URL          string    `json:"url"`
	UpdatedAt    time.Time `json:"updated_at"`
	ServiceIDs   []string  `json:"service_ids"`
	ComponentIDs []string  `json:"component_ids"`
	APIs         []string  `json:"apis"`
	Labels       []string  `json:"labels"`
}

// MapDocSection converts a raw documentation section into a vector event.
func MapDocSection(raw json.RawMessage) (*vectorstore.Event, error) {
	var section DocSection
	if err := json.Unmarshal(raw, &section); err != nil {
		return nil, fmt.Errorf("parse doc record: %w", err)
	}
	if section.DocID == "" {
		return nil, fmt.Errorf("doc record has no doc_id")
	}
	if strings.TrimSpace(section.Body) == "" {
		return nil, fmt.Errorf("doc record has no body")
	}

	eventID := fallbackEventID("doc", section.DocID, section.Heading)

	metadata := map[string]any{
		"doc_id":  section.DocID,
		"heading": section.Heading,
	}
	if link := docPermalink(section); link != "" {
		metadata["permalink"] = link
	}

	content := section.Body
	if section.Heading != "" {
		content = section.Heading + "\n\n" + section.Body
	}

	return &vectorstore.Event{
		EventID:      eventID,
		SourceType:   vectorstore.SourceDocSection,
		Text:         composeText("doc "+section.DocID, "", section.UpdatedAt, section.APIs, content),
		Timestamp:    section.UpdatedAt,
		ServiceIDs:   section.ServiceIDs,
		ComponentIDs: section.ComponentIDs,
		APIs:         section.APIs,
		Labels:       section.Labels,
		Metadata:     metadata,
	}, nil
}

// DocRefs extends the default reference extraction with the doc id
// carried in metadata, so non-canonical doc ids are caught at ingestion.
func DocRefs(event *vectorstore.Event) registry.Refs {
	refs := registry.Refs{
		Services:   event.ServiceIDs,
		Components: event.ComponentIDs,
		APIs:       event.APIs,
	}
	if docID, ok := event.Metadata["doc_id"].(string); ok && docID != "" {
		refs.Docs = []string{docID}
	}
	return refs
}

// docPermalink anchors the section heading onto the doc URL.
func docPermalink(section DocSection) string {
	if section.URL == "" {
		return ""
	}
	if section.Heading == "" {
		return section.URL
	}
	anchor := strings.ToLower(section.Heading)
	anchor = strings.ReplaceAll(anchor, " ", "-")
	return section.URL + "#" + anchor
}
