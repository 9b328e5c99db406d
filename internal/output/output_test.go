package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		icon  string
		text  string
	}{
		{name: "success", write: func(w *Writer) { w.Success("Index complete!") }, icon: "✅", text: "Index complete!"},
		{name: "warning", write: func(w *Writer) { w.Warningf("%d documents skipped", 2) }, icon: "⚠️", text: "2 documents skipped"},
		{name: "error", write: func(w *Writer) { w.Error("Failed to connect") }, icon: "❌", text: "Failed to connect"},
		{name: "status", write: func(w *Writer) { w.Statusf("📂", "Read %d documents from %s", 42, "corpus.jsonl") }, icon: "📂", text: "Read 42 documents from corpus.jsonl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a plain writer
			buf := &bytes.Buffer{}
			w := NewWithColor(buf, false)

			// When: writing the line
			tt.write(w)

			// Then: icon and message are both present
			assert.Contains(t, buf.String(), tt.icon)
			assert.Contains(t, buf.String(), tt.text)
		})
	}
}

func TestWriter_ProgressOnTerminal(t *testing.T) {
	// Given: a writer with color (terminal mode)
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, true)

	// When: printing progress at 50%
	w.Progress(50, 100, "Embedding documents")

	// Then: the bar is drawn in place
	assert.Contains(t, buf.String(), "50%")
	assert.Contains(t, buf.String(), "Embedding documents")
}

func TestWriter_ProgressWithoutTerminalPrintsOnlyCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Progress(50, 100, "Embedding documents")
	assert.Empty(t, buf.String())

	w.Progress(100, 100, "Embedding documents")
	assert.Contains(t, buf.String(), "100%")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestWriter_ProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, true)

	assert.NotPanics(t, func() { w.Progress(0, 0, "Processing") })
	assert.Empty(t, buf.String())
}

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		width    int
		wantFull int
	}{
		{name: "0 percent", current: 0, total: 100, width: 10, wantFull: 0},
		{name: "50 percent", current: 50, total: 100, width: 10, wantFull: 5},
		{name: "100 percent", current: 100, total: 100, width: 10, wantFull: 10},
		{name: "over 100 percent", current: 150, total: 100, width: 10, wantFull: 10},
		{name: "25 percent", current: 25, total: 100, width: 20, wantFull: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, tt.width)

			assert.Equal(t, tt.wantFull, strings.Count(bar, "█"))
			assert.Equal(t, tt.width, len([]rune(bar)))
		})
	}
}

func TestWriter_Results(t *testing.T) {
	// Given: two ranked results
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	// When: rendering them
	w.Results([]Result{
		{Title: "Quantum computing", Content: "Qubits   and\nsuperposition", Score: 0.9, Modality: "text", Source: "agent:text"},
		{Title: "Qubit image", Score: 0.5, Modality: "image", Source: "agent:image"},
	})

	// Then: they are numbered in order with scores and sources
	out := buf.String()
	assert.Contains(t, out, " 1. Quantum computing (0.900)")
	assert.Contains(t, out, " 2. Qubit image (0.500)")
	assert.Contains(t, out, "text · agent:text")
	assert.Contains(t, out, "Qubits and superposition")
	assert.Less(t, strings.Index(out, "Quantum computing"), strings.Index(out, "Qubit image"))
}

func TestWriter_ResultsEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	NewWithColor(buf, false).Results(nil)

	assert.Equal(t, "No results.\n", buf.String())
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet(" a \n b\tc ", 10))
	assert.Equal(t, "abcd…", Snippet("abcdefgh", 5))
}

func TestNew_BufferIsNotATerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	assert.False(t, IsTTY(buf))
	assert.False(t, w.useColor)
}
