//go:build ignore

// Package main generates a synthetic JSONL corpus for indexing and load tests.
// Usage: go run scripts/generate-corpus.go -docs 1000 -output testdata/corpus.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numDocs    = flag.Int("docs", 1000, "Number of documents to generate")
	outputPath = flag.String("output", "testdata/corpus.jsonl", "Output JSONL file")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

type document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Modality string            `json:"modality"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var (
	topics = []string{
		"machine learning", "quantum computing", "climate change", "renewable energy",
		"neural networks", "gene editing", "space exploration", "distributed systems",
		"ocean currents", "battery chemistry", "urban planning", "protein folding",
	}
	adjectives = []string{"modern", "practical", "experimental", "applied", "theoretical", "open"}
	aspects    = []string{"overview", "analysis", "examples", "history", "challenges", "benchmarks"}
	languages  = []string{"en", "en", "en", "de", "fr", "es"}
)

// Modality mix roughly follows a text-heavy research corpus.
var modalities = []struct {
	name   string
	weight int
}{
	{"text", 60},
	{"image", 12},
	{"code", 12},
	{"audio", 8},
	{"video", 8},
}

var contentTemplates = map[string]string{
	"text":  "An %s %s of %s. It covers the core ideas of %s and how researchers approach %s today.",
	"image": "A %s figure illustrating %s: a diagram of %s with labelled components and a caption on %s (%s).",
	"code":  "An %s reference implementation for %s in %s form, with tests for %s and notes on %s.",
	"audio": "A %s podcast episode on %s. The hosts discuss %s, %s and the %s open questions.",
	"video": "A %s lecture recording about %s. Slides walk through %s, %s and %s case studies.",
}

func main() {
	flag.Parse()
	rand.Seed(*seed)

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	counts := make(map[string]int)

	for i := 0; i < *numDocs; i++ {
		doc := generateDocument(i)
		if err := enc.Encode(doc); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing document %d: %v\n", i, err)
			os.Exit(1)
		}
		counts[doc.Modality]++
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d documents in %s\n", *numDocs, *outputPath)
	for _, m := range modalities {
		fmt.Printf("  %-6s %d\n", m.name, counts[m.name])
	}
}

func randomWord(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

func pickModality() string {
	total := 0
	for _, m := range modalities {
		total += m.weight
	}
	n := rand.Intn(total)
	for _, m := range modalities {
		if n < m.weight {
			return m.name
		}
		n -= m.weight
	}
	return "text"
}

func generateDocument(index int) document {
	modality := pickModality()
	topic := randomWord(topics)
	adj := randomWord(adjectives)
	aspect := randomWord(aspects)
	related := randomWord(topics)

	title := fmt.Sprintf("%s %s %s", strings.Title(adj), topic, aspect)
	content := fmt.Sprintf(contentTemplates[modality], adj, aspect, topic, related, randomWord(aspects))

	return document{
		ID:       fmt.Sprintf("%s-%06d", modality, index),
		Title:    title,
		Content:  content,
		Modality: modality,
		Metadata: map[string]string{
			"lang":  randomWord(languages),
			"topic": topic,
			"year":  fmt.Sprintf("%d", 2015+rand.Intn(11)),
		},
	}
}
