package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxJSONLLine bounds one corpus line.
const maxJSONLLine = 4 * 1024 * 1024

// ReadJSONL decodes one Document per non-blank line of r and passes it to fn.
// Documents without an ID or content are rejected with their line number.
func ReadJSONL(r io.Reader, fn func(Document) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxJSONLLine)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var doc Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if doc.ID == "" {
			return fmt.Errorf("line %d: document has no id", line)
		}
		if strings.TrimSpace(doc.Content) == "" && strings.TrimSpace(doc.Title) == "" {
			return fmt.Errorf("line %d: document %s has no title or content", line, doc.ID)
		}
		if doc.Modality == "" {
			doc.Modality = "text"
		}
		doc.Modality = strings.ToLower(doc.Modality)

		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read corpus: %w", err)
	}
	return nil
}
