package ai

import (
	"context"
	"fmt"
)

const snippetSummaryPrompt = `<context>
%s
</context>
Summarize the following %s code example in one or two sentences: what it
demonstrates and when a developer would use it. Answer with the summary only.

<code>
%s
</code>`

// SummarizeSnippet produces a short searchable summary for an extracted
// code example. surrounding is the text around the code block in its
// source document and may be empty.
func (c *Client) SummarizeSnippet(ctx context.Context, language, code, surrounding string) (string, error) {
	if len(surrounding) > 2000 {
		surrounding = surrounding[:2000]
	}
	if len(code) > 4000 {
		code = code[:4000]
	}
	if language == "" {
		language = "code"
	}

	summary, err := c.generateText(ctx, fmt.Sprintf(snippetSummaryPrompt, surrounding, language, code), 200)
	if err != nil {
		return "", fmt.Errorf("summarize snippet: %w", err)
	}
	return summary, nil
}
