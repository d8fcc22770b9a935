package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
	"github.com/hunterwarburton/taxassist/internal/rag"
)

// Fixed user-facing answers.
const (
	NoInformationAnswer = "No relevant tax information found in the database."
	FailureAnswer       = "Sorry, I encountered an error."
)

// Options tune a Pipeline. Zero values fall back to the defaults.
type Options struct {
	TopK              int
	DefaultMaxLength  int
	MinSentenceLength int
	// LiteralChunkCount reports the number of chunks actually retrieved
	// instead of the configured TopK.
	LiteralChunkCount bool
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 3
	}
	if o.DefaultMaxLength <= 0 {
		o.DefaultMaxLength = core.DefaultAnswerLength
	}
	if o.MinSentenceLength <= 0 {
		o.MinSentenceLength = DefaultMinSentenceLength
	}
	return o
}

// Pipeline answers one question at a time: embed, search, assemble, generate,
// format. It holds no per-query state and is safe for concurrent use.
type Pipeline struct {
	embedder core.Embedder
	searcher core.Searcher
	backend  core.AnswerBackend
	opts     Options
	log      logger.Logger
}

// New checks that the embedder and store agree on vector size. A mismatch is
// a *core.ConfigurationError. A store that cannot report its dimension yet
// (for example before provisioning) is logged and accepted.
func New(ctx context.Context, embedder core.Embedder, store core.VectorStore, backend core.AnswerBackend, opts Options, log logger.Logger) (*Pipeline, error) {
	if log == nil {
		log = logger.Nop()
	}

	dim, err := store.Dimension(ctx)
	switch {
	case err != nil:
		log.Warn("Could not read vector store dimension, skipping check: %v", err)
	case dim != embedder.Dimension():
		return nil, &core.ConfigurationError{
			Field:  "embedding.dimension",
			Reason: fmt.Sprintf("embedder produces %d dimensions but the store holds %d", embedder.Dimension(), dim),
			Err:    core.ErrDimensionMismatch,
		}
	}

	return &Pipeline{
		embedder: embedder,
		searcher: store,
		backend:  backend,
		opts:     opts.withDefaults(),
		log:      log,
	}, nil
}

// Provider names the answer backend in use.
func (p *Pipeline) Provider() string { return p.backend.Provider() }

// Answer runs a validated query. It never returns an error: failures become
// a fixed failure answer carrying the cause.
func (p *Pipeline) Answer(ctx context.Context, q core.Query) (ans core.Answer) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Recovered panic while answering: %v", r)
			ans = failed(fmt.Errorf("internal error: %v", r))
		}
	}()

	vec, err := p.embedder.Embed(ctx, q.Question)
	if err != nil {
		p.log.Error("Embedding failed: %v", err)
		return failed(&core.RetrievalError{Stage: "embed", Err: err})
	}

	result, err := p.searcher.Search(ctx, vec, p.opts.TopK)
	if err != nil {
		p.log.Error("Vector search failed: %v", err)
		return failed(&core.RetrievalError{Stage: "search", Err: err})
	}
	p.log.Debug("Retrieved %d chunks", len(result))

	knowledge := rag.AssembleContext(result)
	if strings.TrimSpace(knowledge) == "" {
		p.log.Info("No relevant context for question (%d chunks)", len(result))
		return core.Answer{Text: NoInformationAnswer}
	}

	raw, err := p.backend.Generate(ctx, q.Question, knowledge)
	if err != nil {
		p.log.Error("Generation failed: %v", err)
		return failed(err)
	}

	text := FormatWithThreshold(raw, p.limit(q), p.opts.MinSentenceLength)
	p.log.Info("Answered in %s with %s (%d/%d chars)", time.Since(start).Round(time.Millisecond),
		p.backend.Provider(), len([]rune(text)), len([]rune(raw)))

	return core.Answer{
		Text:        text,
		Success:     true,
		ChunksFound: p.chunksFound(result),
	}
}

// limit is the caller's length when it is tighter than the default cap.
func (p *Pipeline) limit(q core.Query) int {
	if q.MaxLength > 0 && q.MaxLength < p.opts.DefaultMaxLength {
		return q.MaxLength
	}
	return p.opts.DefaultMaxLength
}

func (p *Pipeline) chunksFound(result core.RetrievalResult) int {
	if p.opts.LiteralChunkCount {
		return len(result)
	}
	return p.opts.TopK
}

func failed(err error) core.Answer {
	return core.Answer{Text: FailureAnswer, Error: err.Error()}
}
