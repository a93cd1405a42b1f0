package streaming

import (
	"strings"
	"testing"
)

func drain(t *testing.T, body string) []Event {
	t.Helper()
	d := NewDecoder(strings.NewReader(body))
	var events []Event
	for {
		ev, ok, err := d.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		events = append(events, ev)
		if ev.Kind == EventDone {
			break
		}
	}
	return events
}

func TestDecoderContentAndUsage(t *testing.T) {
	body := `data:{"choices":[{"delta":{"content":"A"}}]}

data:{"choices":[{"delta":{"content":"B"}}]}

data:{"usage":{"prompt_tokens":3,"completion_tokens":2}}

data:[DONE]

`
	events := drain(t, body)

	var content strings.Builder
	var sawUsage, sawDone bool
	var nIn, nOut int
	for _, ev := range events {
		switch ev.Kind {
		case EventContent:
			content.WriteString(ev.Content)
		case EventUsage:
			sawUsage = true
			nIn, nOut = ev.NInput, ev.NOutput
		case EventDone:
			sawDone = true
		}
	}

	if content.String() != "AB" {
		t.Errorf("content = %q, want %q", content.String(), "AB")
	}
	if !sawUsage || nIn != 3 || nOut != 2 {
		t.Errorf("usage = (%d,%d,%v), want (3,2,true)", nIn, nOut, sawUsage)
	}
	if !sawDone {
		t.Errorf("expected EventDone")
	}
}

func TestDecoderEmptyFirstChunkTolerated(t *testing.T) {
	body := `data:{"choices":[{"delta":{"content":""}}]}

data:{"choices":[{"delta":{"content":"A"}}]}

data:{"usage":{"prompt_tokens":1,"completion_tokens":1}}

data:[DONE]

`
	events := drain(t, body)

	var contentEvents []string
	for _, ev := range events {
		if ev.Kind == EventContent {
			contentEvents = append(contentEvents, ev.Content)
		}
	}
	if len(contentEvents) != 2 || contentEvents[0] != "" || contentEvents[1] != "A" {
		t.Fatalf("unexpected content events: %#v", contentEvents)
	}
}

func TestDecoderMalformedLineSkipped(t *testing.T) {
	body := `data:{not json}

data:{"choices":[{"delta":{"content":"A"}}]}

data:[DONE]

`
	events := drain(t, body)

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 3 || kinds[0] != EventSkip || kinds[1] != EventContent || kinds[2] != EventDone {
		t.Fatalf("unexpected event sequence: %#v", kinds)
	}
}

func TestDecoderNoDoneTerminator(t *testing.T) {
	body := `data:{"choices":[{"delta":{"content":"A"}}]}

`
	events := drain(t, body)
	if len(events) != 1 || events[0].Kind != EventContent {
		t.Fatalf("unexpected events: %#v", events)
	}
}
