package chatcompletions

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// perMessageOverhead approximates the role and separator tokens the backend adds per message.
const perMessageOverhead = 3

var codec = sync.OnceValues(func() (tokenizer.Codec, error) {
	return tokenizer.Get(tokenizer.O200kBase)
})

// CountTokens estimates the prompt tokens of req locally. The count covers
// message text, tool calls and tool declarations; images are not counted.
func CountTokens(req *Request) (int, error) {
	enc, err := codec()
	if err != nil {
		return 0, fmt.Errorf("load tokenizer: %w", err)
	}

	total := 0
	count := func(s string) error {
		if s == "" {
			return nil
		}
		n, err := enc.Count(s)
		if err != nil {
			return err
		}
		total += n
		return nil
	}

	for i, msg := range req.Messages {
		total += perMessageOverhead
		if err := count(string(msg.Role)); err != nil {
			return 0, fmt.Errorf("count message %d: %w", i, err)
		}
		if err := count(msg.Content.String()); err != nil {
			return 0, fmt.Errorf("count message %d: %w", i, err)
		}
		for _, tc := range msg.ToolCalls {
			if err := count(tc.Function.Name); err != nil {
				return 0, fmt.Errorf("count tool call %s: %w", tc.ID, err)
			}
			if err := count(tc.Function.Arguments); err != nil {
				return 0, fmt.Errorf("count tool call %s: %w", tc.ID, err)
			}
		}
	}

	for _, tool := range req.Tools {
		for _, s := range []string{tool.Function.Name, tool.Function.Description, string(tool.Function.Parameters)} {
			if err := count(s); err != nil {
				return 0, fmt.Errorf("count tool %s: %w", tool.Function.Name, err)
			}
		}
	}

	return total, nil
}
