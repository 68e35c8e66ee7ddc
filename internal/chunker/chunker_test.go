package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestSplitReconstructsSource(t *testing.T) {
	doc := `# Title

Intro paragraph with some text about the system.

## Section One

First paragraph of section one. It has a couple of sentences in it.

Second paragraph that carries on for a little while longer than the first.

## Section Two

` + "```go\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n```" + `

Closing remarks after the code block.`

	chunks := Split(doc, 120)
	require.NotEmpty(t, chunks)

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}
	assert.Equal(t, normalize(doc), normalize(sb.String()))
}

func TestSplitRespectsTargetSize(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("This is sentence number with enough words to matter. ")
		if i%10 == 9 {
			sb.WriteString("\n\n")
		}
	}

	for _, c := range Split(sb.String(), 300) {
		if !c.Oversize {
			assert.LessOrEqual(t, len(c.Text), 300, "chunk %d too large", c.Order)
		}
	}
}

func TestSplitNeverBreaksCodeFence(t *testing.T) {
	var code strings.Builder
	code.WriteString("```python\n")
	for i := 0; i < 40; i++ {
		code.WriteString("print('a fairly long line of code to inflate the fence size')\n")
	}
	code.WriteString("```")

	doc := "# Doc\n\nBefore the fence.\n\n" + code.String() + "\n\nAfter the fence."
	chunks := Split(doc, 200)

	var fenceChunks []Chunk
	for _, c := range chunks {
		if strings.Contains(c.Text, "```python") {
			fenceChunks = append(fenceChunks, c)
		}
	}
	require.Len(t, fenceChunks, 1)
	assert.True(t, fenceChunks[0].Oversize)
	// fence is intact: opening and closing markers in the same chunk
	assert.Equal(t, 2, strings.Count(fenceChunks[0].Text, "```"))
}

func TestSplitOrdinalsAndHeaders(t *testing.T) {
	doc := `# Guide

## Install

Run the installer.

## Usage

Call the binary with a config file. Repeat as needed until satisfied.`

	chunks := Split(doc, 100)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Order)
	}

	var sawUsage bool
	for _, c := range chunks {
		if strings.Contains(c.Text, "Call the binary") {
			sawUsage = true
			assert.Contains(t, c.Headers, "Guide")
		}
	}
	assert.True(t, sawUsage)
}

func TestStreamIsRestartable(t *testing.T) {
	doc := strings.Repeat("A paragraph of text.\n\n", 30)
	seq := Stream(doc, 100)

	var first []Chunk
	for c := range seq {
		first = append(first, c)
		if len(first) == 2 {
			break // stop early, no side effects
		}
	}

	var second []Chunk
	for c := range seq {
		second = append(second, c)
	}

	require.GreaterOrEqual(t, len(second), len(first))
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, first[1], second[1])
}

func TestSplitKeepsMultiByteRunesIntact(t *testing.T) {
	// one long CJK paragraph: no spaces and no ASCII sentence ends, so
	// every cut is a hard character cut
	doc := strings.Repeat("知识库服务的分块器", 40)

	chunks := Split(doc, 100)
	require.NotEmpty(t, chunks)

	var sb strings.Builder
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %d is invalid UTF-8: %q", c.Order, c.Text)
		sb.WriteString(c.Text)
	}
	assert.Equal(t, doc, sb.String())
}

func TestSplitEmptyAndTiny(t *testing.T) {
	assert.Empty(t, Split("", 500))
	assert.Empty(t, Split("   \n\n  ", 500))

	chunks := Split("one short line", 500)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one short line", chunks[0].Text)
}
