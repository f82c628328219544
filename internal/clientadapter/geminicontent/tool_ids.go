package geminicontent

import (
	"fmt"

	"google.golang.org/genai"
)

// toolCallIDs synthesizes backend tool call ids for a conversation whose calls
// are identified by function name only.
//
// The ids come from one forward scan over the whole history, so translating
// the same conversation twice yields the same ids. Occurrence n of a call
// named f gets call_<n>_<f>. Responses are matched by name to the last id
// seen for that name; a function called twice before either result arrives
// has both results attributed to the second call.
type toolCallIDs struct {
	calls      []string
	next       int
	lastByName map[string]string
}

func scanToolCallIDs(contents []*genai.Content) *toolCallIDs {
	ids := &toolCallIDs{lastByName: make(map[string]string)}
	n := 0
	for _, content := range contents {
		if content == nil {
			continue
		}
		for _, part := range content.Parts {
			if part == nil || part.FunctionCall == nil {
				continue
			}
			id := fmt.Sprintf("call_%d_%s", n, part.FunctionCall.Name)
			n++
			ids.calls = append(ids.calls, id)
			ids.lastByName[part.FunctionCall.Name] = id
		}
	}
	return ids
}

// callID returns the id for the next call occurrence in scan order.
// Explicit ids sent by the client win.
func (t *toolCallIDs) callID(call *genai.FunctionCall) string {
	var id string
	if t.next < len(t.calls) {
		id = t.calls[t.next]
		t.next++
	} else {
		id = "call_" + call.Name
	}
	if call.ID != "" {
		return call.ID
	}
	return id
}

// responseID returns the id of the call a function response answers.
func (t *toolCallIDs) responseID(resp *genai.FunctionResponse) string {
	if resp.ID != "" {
		return resp.ID
	}
	if id, ok := t.lastByName[resp.Name]; ok {
		return id
	}
	return "call_" + resp.Name
}
