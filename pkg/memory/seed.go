package memory

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkSize is the target passage length in characters.
	DefaultChunkSize = 1000

	embedBatchSize   = 16
	embedConcurrency = 4
)

//go:embed corpus/*.md
var corpusFS embed.FS

// pointNamespace derives stable record ids, so seeding twice overwrites
// instead of duplicating.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kernelapi/memory"))

// Document is one named text to seed.
type Document struct {
	Name string
	Text string
}

// Corpus returns the built-in Minecraft documents.
func Corpus() ([]Document, error) {
	entries, err := fs.ReadDir(corpusFS, "corpus")
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		data, err := corpusFS.ReadFile(path.Join("corpus", e.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Name: e.Name(), Text: string(data)})
	}
	return docs, nil
}

// LoadDocuments reads every file matching the doublestar patterns
// (e.g. "docs/**/*.md"). A file matched twice is read once.
func LoadDocuments(patterns []string) ([]Document, error) {
	seen := map[string]bool{}
	var docs []Document
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid memory_docs pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			slog.Warn("Memory document pattern matched nothing", "pattern", pattern)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", m, err)
			}
			docs = append(docs, Document{Name: filepath.ToSlash(m), Text: string(data)})
		}
	}
	return docs, nil
}

// Chunk splits text into passages of at most maxChars, breaking between
// paragraphs where possible and between words otherwise.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > maxChars {
			flush()
		}
		if len(para) <= maxChars {
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(para)
			continue
		}

		for _, word := range strings.Fields(para) {
			if cur.Len() > 0 && cur.Len()+1+len(word) > maxChars {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteString(" ")
			}
			cur.WriteString(word)
		}
		flush()
	}
	flush()
	return chunks
}

// Records chunks docs into records with deterministic ids.
func Records(docs []Document, maxChars int) []Record {
	var records []Record
	for _, doc := range docs {
		for i, chunk := range Chunk(doc.Text, maxChars) {
			records = append(records, Record{
				ID:     uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s#%d", doc.Name, i)).String(),
				Text:   chunk,
				Source: doc.Name,
			})
		}
	}
	return records
}

// Seed embeds docs and upserts them into store. Embedding runs in bounded
// parallel batches; nothing is written unless every batch succeeds.
// It returns the number of records written.
func Seed(ctx context.Context, store Store, embedder Embedder, docs []Document) (int, error) {
	records := Records(docs, DefaultChunkSize)
	if len(records) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(records); start += embedBatchSize {
		batch := records[start:min(start+embedBatchSize, len(records))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, r := range batch {
				texts[i] = r.Text
			}
			vecs, err := embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed %s: %w", batch[0].Source, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed %s: expected %d vectors, got %d", batch[0].Source, len(batch), len(vecs))
			}
			for i := range batch {
				batch[i].Vector = vecs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := store.EnsureCollection(ctx, len(records[0].Vector)); err != nil {
		return 0, err
	}
	if err := store.Upsert(ctx, records); err != nil {
		return 0, err
	}

	slog.Info("Memory seeded", "documents", len(docs), "records", len(records), "embedder", embedder.Name())
	return len(records), nil
}
