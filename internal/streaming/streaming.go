// Package streaming implements the pull-based SSE decoder for the
// OpenAI-compatible chat-completions stream: a small state machine that
// yields one Event per `data:` line, tolerating malformed individual lines
// the way the protocol's producers sometimes emit them.
package streaming

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// EventKind tags the closed set of events the decoder can yield.
type EventKind int

const (
	EventSkip EventKind = iota
	EventContent
	EventUsage
	EventDone
)

// Event is the decoder's pull-based output: exactly one of the fields is
// meaningful, selected by Kind.
type Event struct {
	Kind    EventKind
	Content string
	NInput  int
	NOutput int
}

type chunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Decoder reads an SSE byte stream and yields Events via Next. It is not
// safe for concurrent use.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
}

// NewDecoder wraps r, a raw SSE response body.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Next advances the decoder by one line, returning the Event it produced.
// ok is false once the stream is exhausted (EventDone already yielded, or
// the underlying reader returned EOF without a terminator).
func (d *Decoder) Next() (Event, bool, error) {
	if d.done {
		return Event{}, false, nil
	}

	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}

		payload, ok := cutDataPrefix(line)
		if !ok {
			continue
		}

		if payload == "[DONE]" {
			d.done = true
			return Event{Kind: EventDone}, true, nil
		}

		var c chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			// Tolerate malformed individual lines: skip and continue.
			return Event{Kind: EventSkip}, true, nil
		}

		if c.Usage != nil {
			return Event{
				Kind:    EventUsage,
				NInput:  c.Usage.PromptTokens,
				NOutput: c.Usage.CompletionTokens,
			}, true, nil
		}

		if len(c.Choices) > 0 && c.Choices[0].Delta.Content != nil {
			return Event{Kind: EventContent, Content: *c.Choices[0].Delta.Content}, true, nil
		}

		return Event{Kind: EventSkip}, true, nil
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		return Event{}, false, err
	}
	return Event{}, false, nil
}

// cutDataPrefix strips a leading "data:" prefix (with or without the
// conventional single space) and reports whether the line carried one.
func cutDataPrefix(line string) (string, bool) {
	const prefix = "data:"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}
