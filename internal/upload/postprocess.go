package upload

import (
	"context"
	"time"

	"github.com/lgulliver/filehold/pkg/types"
	"github.com/rs/zerolog/log"
)

// Hook is a post-processing step (indexing, thumbnail rendering) triggered
// after a document is finalized. Hooks run off the finalize path and their
// failures never affect the finalize result.
type Hook interface {
	Name() string
	Process(ctx context.Context, doc *types.Document) error
}

// PostProcessor dispatches finalized documents to registered hooks
type PostProcessor struct {
	hooks   []Hook
	timeout time.Duration
}

// NewPostProcessor creates a post processor with no hooks registered
func NewPostProcessor() *PostProcessor {
	return &PostProcessor{timeout: 5 * time.Minute}
}

// Register adds a hook to run after each finalized document
func (p *PostProcessor) Register(hook Hook) {
	p.hooks = append(p.hooks, hook)
}

// Dispatch runs all hooks against the document in a background goroutine.
// Hook errors are logged and dropped.
func (p *PostProcessor) Dispatch(doc *types.Document) {
	if len(p.hooks) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		for _, hook := range p.hooks {
			if err := hook.Process(ctx, doc); err != nil {
				log.Warn().
					Err(err).
					Str("hook", hook.Name()).
					Str("document_id", doc.ID.String()).
					Msg("post-processing hook failed")
				continue
			}
			log.Debug().
				Str("hook", hook.Name()).
				Str("document_id", doc.ID.String()).
				Msg("post-processing hook completed")
		}
	}()
}
