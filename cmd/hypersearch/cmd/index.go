package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hypersearch/internal/embed"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/output"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/store"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	batchSize   int
	concurrency int
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var iopts indexOptions

	cmd := &cobra.Command{
		Use:   "index <corpus.jsonl>",
		Short: "Index a JSONL corpus",
		Long: `Index documents into the corpus text index and the vector index.

Each line is one JSON document:
  {"id":"doc-1","title":"...","content":"...","modality":"text","metadata":{"lang":"en"}}

Modality is one of text, image, audio, video, code (default text).
Documents with an existing id are replaced.`,
		Example: `  hypersearch index corpus.jsonl
  hypersearch index corpus.jsonl --batch-size 64 --concurrency 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, opts, args[0], iopts)
		},
	}

	cmd.Flags().IntVar(&iopts.batchSize, "batch-size", embed.DefaultBatchSize, "Documents per embedding batch")
	cmd.Flags().IntVar(&iopts.concurrency, "concurrency", 2, "Embedding batches in flight")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts *rootOptions, path string, iopts indexOptions) error {
	cfg, logger := opts.cfg, opts.logger
	out := output.New(cmd.OutOrStdout())

	f, err := os.Open(path)
	if err != nil {
		return errors.New(errors.ErrCodeFileNotFound, "cannot open corpus file", err).
			WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()

	unlock, err := lockDataDir(cfg, "stop 'hypersearch serve' before indexing")
	if err != nil {
		return err
	}
	defer unlock()

	corpus, err := store.OpenCorpusIndex(cfg.Path(corpusDirName))
	if err != nil {
		return errors.IOError("failed to open corpus index", err)
	}
	defer func() { _ = corpus.Close() }()

	embedder, err := embed.NewEmbedder(ctx, embed.Config{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		OllamaHost: cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return errors.New(errors.ErrCodeEmbedderUnavailable, "failed to create embedder", err)
	}
	defer func() { _ = embedder.Close() }()

	hnswPath := cfg.Path(vectorsFileName)
	vectors, err := store.OpenVectorIndex(store.VectorOptions{
		Backend:          cfg.Retrieval.Backend,
		Dimensions:       embedder.Dimensions(),
		HNSWPath:         hnswPath,
		QdrantEndpoint:   cfg.Retrieval.Endpoint,
		QdrantCollection: cfg.Retrieval.Collection,
	})
	if err != nil {
		return errors.IOError("failed to open vector index", err)
	}
	if vectors != nil {
		defer func() { _ = vectors.Close() }()
	}

	out.Statusf("📂", "Indexing %s into %s", path, cfg.DataDir)
	start := time.Now()
	stats, err := indexCorpus(ctx, f, corpus, embedder, vectors, iopts, out.Progress)
	if err != nil {
		return err
	}

	if saver, ok := vectors.(interface{ Save(string) error }); ok {
		if err := saver.Save(hnswPath); err != nil {
			return errors.New(errors.ErrCodeIndexFailed, "failed to save vector index", err)
		}
	}

	logger.Info("index_complete",
		slog.Int("documents", stats.documents),
		slog.Int("embedded", stats.embedded),
		slog.Duration("duration", time.Since(start)))
	out.Successf("Indexed %d documents (%d embedded) in %s",
		stats.documents, stats.embedded, time.Since(start).Round(time.Millisecond))
	if vectors == nil {
		out.Warning("Vector retrieval is disabled (retrieval.backend: none); only the text index was built")
	}
	return nil
}

// corpusWriter is the part of the corpus index indexing needs.
type corpusWriter interface {
	Index(ctx context.Context, docs []store.Document) error
}

type indexStats struct {
	documents int
	embedded  int
}

// indexCorpus reads every document from r, writes them to the corpus index
// and, when vectors is non-nil, embeds and upserts them in batches with
// bounded concurrency. progress receives (done, total) batch counts.
func indexCorpus(ctx context.Context, r io.Reader, corpus corpusWriter, embedder embed.Embedder,
	vectors store.VectorIndex, opts indexOptions, progress func(done, total int, msg string)) (indexStats, error) {
	if opts.batchSize <= 0 {
		opts.batchSize = embed.DefaultBatchSize
	}
	opts.batchSize = min(opts.batchSize, embed.MaxBatchSize)
	if opts.concurrency <= 0 {
		opts.concurrency = 1
	}

	var docs []store.Document
	err := store.ReadJSONL(r, func(doc store.Document) error {
		if _, err := query.ParseModality(doc.Modality); err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return indexStats{}, errors.New(errors.ErrCodeCorpusInvalid, "invalid corpus", err)
	}
	if len(docs) == 0 {
		return indexStats{}, nil
	}

	if err := corpus.Index(ctx, docs); err != nil {
		return indexStats{}, errors.New(errors.ErrCodeIndexFailed, "failed to index corpus", err)
	}
	stats := indexStats{documents: len(docs)}
	if vectors == nil {
		return stats, nil
	}

	batches := (len(docs) + opts.batchSize - 1) / opts.batchSize
	var done, embedded atomic.Int64
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	for i := 0; i < len(docs); i += opts.batchSize {
		batch := docs[i:min(i+opts.batchSize, len(docs))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, doc := range batch {
				texts[j] = doc.Title + "\n" + doc.Content
			}

			vecs, err := errors.RetryWithResult(gctx, errors.DefaultRetryConfig(), func() ([][]float32, error) {
				return embedder.EmbedBatch(gctx, texts)
			})
			if err != nil {
				return errors.New(errors.ErrCodeEmbeddingFailed, "failed to embed batch", err)
			}

			records := make([]store.VectorRecord, len(batch))
			for j, doc := range batch {
				records[j] = store.VectorRecord{Document: doc, Embedding: vecs[j]}
			}
			if err := vectors.Upsert(gctx, records); err != nil {
				return errors.New(errors.ErrCodeIndexFailed, "failed to upsert vectors", err)
			}

			embedded.Add(int64(len(batch)))
			if progress != nil {
				progressMu.Lock()
				progress(int(done.Inc()), batches, "Embedding documents")
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.embedded = int(embedded.Load())
	return stats, nil
}
