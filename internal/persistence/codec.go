package persistence

import (
	"bytes"
	"fmt"
	"log/slog"

	"docstudio/internal/document"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeDocuments parses a table file. Empty content and a literal null both
// decode to an empty table; the second result reports that case so the
// caller can persist the normalized form.
func DecodeDocuments(data []byte) ([]document.Document, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []document.Document{}, true, nil
	}

	// Use a decoder that treats all numbers as json.Number first.
	decoder := jsoniter.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var raw []map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, false, fmt.Errorf("table file is not a JSON array of documents: %w", err)
	}

	docs := make([]document.Document, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		if item == nil {
			skipped++
			continue
		}
		// Post-process to convert json.Number to float64.
		docs = append(docs, document.NormalizeDocument(item))
	}
	if skipped > 0 {
		slog.Warn("Dropping null entries from table file", "dropped", skipped, "documents", len(docs))
	}
	return docs, false, nil
}

// EncodeDocuments serializes a table for its backing file.
func EncodeDocuments(docs []document.Document, pretty bool) ([]byte, error) {
	if docs == nil {
		docs = []document.Document{}
	}
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(docs, "", "  ")
	} else {
		data, err = json.Marshal(docs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode documents: %w", err)
	}
	return data, nil
}
