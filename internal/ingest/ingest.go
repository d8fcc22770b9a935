package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

// Document is a pre-chunked source, e.g. one section of the Finance Act.
type Document struct {
	Name   string   `json:"name"`
	Chunks []string `json:"chunks"`
}

// LoadDocument reads a document from a JSON file. Blank chunks are dropped.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	doc.Chunks = lo.Filter(doc.Chunks, func(c string, _ int) bool { return strings.TrimSpace(c) != "" })

	if strings.TrimSpace(doc.Name) == "" {
		return Document{}, errors.New("document name is required")
	}
	if len(doc.Chunks) == 0 {
		return Document{}, fmt.Errorf("document %q has no chunks", doc.Name)
	}
	return doc, nil
}

// Ingest embeds every chunk, at most concurrency at a time, and stores the
// document. Nothing is written unless every chunk embeds.
func Ingest(ctx context.Context, embedder core.Embedder, writer core.DocumentWriter, doc Document, concurrency int) (string, error) {
	inputs := make([]core.ChunkInput, len(doc.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, concurrency))
	for i, text := range doc.Chunks {
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %d: %w", i+1, err)
			}
			inputs[i] = core.ChunkInput{Text: text, Embedding: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	id, err := writer.StoreDocument(ctx, doc.Name, inputs)
	if err != nil {
		return "", fmt.Errorf("failed to store %q: %w", doc.Name, err)
	}
	logger.RAGInfo("Stored document %q as %s with %d chunks", doc.Name, id, len(inputs))
	return id, nil
}
