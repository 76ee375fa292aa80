package indexer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/driftwatch/vectorstore"
)

// ChatMessage is one exported chat record.
type ChatMessage struct {
	ID           string    `json:"id"`
	Workspace    string    `json:"workspace"`
	Channel      string    `json:"channel"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	ThreadTS     string    `json:"thread_ts"`
	Text         string    `json:"text"`
	ServiceIDs   []string  `json:"service_ids"`
	ComponentIDs []string  `json:"component_ids"`
	APIs         []string  `json:"apis"`
	Labels       []string  `json:"labels"`
}

// MapChatMessage converts a raw chat record into a vector event.
func MapChatMessage(raw json.RawMessage) (*vectorstore.Event, error) {
	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("parse chat record: %w", err)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("chat record has no text")
	}

	eventID := msg.ID
	if eventID == "" {
		eventID = fallbackEventID("chat", msg.Channel, msg.Timestamp.UTC().Format(time.RFC3339Nano), msg.Author)
	}

	metadata := map[string]any{
		"channel": msg.Channel,
		"author":  msg.Author,
	}
	if msg.ThreadTS != "" {
		metadata["thread_ts"] = msg.ThreadTS
	}
	if link := chatPermalink(msg); link != "" {
		metadata["permalink"] = link
	}

	return &vectorstore.Event{
		EventID:      eventID,
		SourceType:   vectorstore.SourceChatMessage,
		Text:         composeText("chat #"+msg.Channel, msg.Author, msg.Timestamp, msg.APIs, msg.Text),
		Timestamp:    msg.Timestamp,
		ServiceIDs:   msg.ServiceIDs,
		ComponentIDs: msg.ComponentIDs,
		APIs:         msg.APIs,
		Labels:       msg.Labels,
		Metadata:     metadata,
	}, nil
}

// chatPermalink builds a Slack-style archive link when the export carries
// enough source metadata.
func chatPermalink(msg ChatMessage) string {
	if msg.Workspace == "" || msg.Channel == "" || msg.ID == "" {
		return ""
	}
	ts := strings.ReplaceAll(msg.ID, ".", "")
	return fmt.Sprintf("https://%s.slack.com/archives/%s/p%s", msg.Workspace, msg.Channel, ts)
}
