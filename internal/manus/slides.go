package manus

import (
	"encoding/json"
	"fmt"

	"github.com/payperwork/payperwork/internal/store"
)

// taskResult is the relevant part of a finished task's result payload.
// Providers have shipped the slide set both as a structured array and as a
// JSON-encoded string, so both are accepted.
type taskResult struct {
	Slides json.RawMessage `json:"slides"`
	Topics []string        `json:"topics,omitempty"`
}

type resultSlide struct {
	Title    string          `json:"title"`
	Content  json.RawMessage `json:"content,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
}

// ParseSlides extracts the ordered slide set from a task result payload.
// A missing or malformed slide set is an error; completion handling turns it
// into a presentation-level failure.
func ParseSlides(result json.RawMessage) ([]store.Slide, error) {
	if len(result) == 0 {
		return nil, fmt.Errorf("empty task result")
	}

	var parsed taskResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("unreadable task result: %w", err)
	}
	if len(parsed.Slides) == 0 {
		return nil, fmt.Errorf("task result has no slides")
	}

	raw := parsed.Slides
	// String form: the array is double-encoded.
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = json.RawMessage(asString)
	}

	var slides []resultSlide
	if err := json.Unmarshal(raw, &slides); err != nil {
		return nil, fmt.Errorf("unparseable slides array: %w", err)
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("task result slide array is empty")
	}

	out := make([]store.Slide, len(slides))
	for i, sl := range slides {
		if sl.Title == "" {
			sl.Title = fmt.Sprintf("Slide %d", i+1)
		}
		out[i] = store.Slide{
			Position: i,
			Title:    sl.Title,
			Content:  sl.Content,
			ImageURL: sl.ImageURL,
		}
	}
	return out, nil
}

// ParseTopics extracts the topic plan from a result payload, when present.
func ParseTopics(result json.RawMessage) []string {
	var parsed taskResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil
	}
	return parsed.Topics
}
