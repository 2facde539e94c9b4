package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/core/entities"
	pkgerrors "atelier/pkg/errors"
)

// IdeaOptions tunes a single idea generation.
type IdeaOptions struct {
	// Safer asks for a concept that avoids whatever got the previous prompt rejected.
	Safer bool

	// AvoidPrompt rejects a result whose full prompt repeats this text.
	AvoidPrompt string
}

// IdeaSequencer generates ideas strictly one at a time. Every call sees the
// summaries of all ideas accepted before it, so concurrent calls are never
// issued: each depends on the output of the previous one.
type IdeaSequencer struct {
	generator ports.IdeaGenerator
	ideas     ports.IdeaRepository
	logger    *zap.Logger
}

func NewIdeaSequencer(generator ports.IdeaGenerator, ideas ports.IdeaRepository, logger *zap.Logger) *IdeaSequencer {
	return &IdeaSequencer{
		generator: generator,
		ideas:     ideas,
		logger:    logger,
	}
}

// PriorSummaries loads the title's accepted idea summaries, newest first.
func (s *IdeaSequencer) PriorSummaries(ctx context.Context, title *entities.Title) ([]string, error) {
	existing, err := s.ideas.ListByTitle(ctx, title.ID())
	if err != nil {
		return nil, err
	}
	summaries := make([]string, 0, len(existing))
	for _, idea := range existing {
		summaries = append(summaries, idea.Summary())
	}
	return summaries, nil
}

// GenerateNextIdea asks the generator for one new concept and persists it.
// The idea is durable when this returns.
func (s *IdeaSequencer) GenerateNextIdea(ctx context.Context, title *entities.Title, prior []string, opts IdeaOptions) (*entities.Idea, error) {
	if strings.TrimSpace(title.Text()) == "" {
		return nil, pkgerrors.NewValidationError("title text is required for idea generation")
	}

	generated, err := s.generator.GenerateIdea(ctx, ports.IdeaRequest{
		TitleText:      title.Text(),
		Instructions:   title.Instructions(),
		PriorSummaries: append([]string(nil), prior...),
		Safer:          opts.Safer,
	})
	if err != nil {
		if pkgerrors.IsAppError(err) {
			return nil, err
		}
		return nil, pkgerrors.NewUpstreamError("ideas", err)
	}

	if opts.AvoidPrompt != "" && strings.TrimSpace(generated.FullPrompt) == strings.TrimSpace(opts.AvoidPrompt) {
		return nil, pkgerrors.NewUpstreamError("ideas", errors.New("generator repeated the rejected prompt"))
	}

	idea, err := entities.NewIdea(title.ID(), generated.Summary, generated.FullPrompt)
	if err != nil {
		// A tool call without both fields is a malformed upstream response.
		return nil, pkgerrors.NewUpstreamError("ideas", err)
	}

	if err := s.ideas.Save(ctx, idea); err != nil {
		return nil, err
	}

	s.logger.Debug("Idea generated",
		zap.String("title_id", title.ID().String()),
		zap.String("idea_id", idea.ID().String()),
		zap.Int("prior_ideas", len(prior)),
		zap.Bool("safer", opts.Safer),
	)
	return idea, nil
}

// GenerateBatch creates n ideas in order. onIdea runs after each idea is
// persisted and before the next generation call; the new summary joins the
// prior set only once onIdea succeeds. On any error the batch stops at the
// current item and the ideas created so far are returned with the error.
func (s *IdeaSequencer) GenerateBatch(
	ctx context.Context,
	title *entities.Title,
	prior []string,
	n int,
	onIdea func(*entities.Idea) error,
) ([]*entities.Idea, error) {
	seen := append([]string(nil), prior...)
	created := make([]*entities.Idea, 0, n)

	for i := 0; i < n; i++ {
		idea, err := s.GenerateNextIdea(ctx, title, seen, IdeaOptions{})
		if err != nil {
			s.logger.Warn("Batch aborted during idea generation",
				zap.String("title_id", title.ID().String()),
				zap.Int("item", i),
				zap.Int("created", len(created)),
				zap.Error(err),
			)
			return created, err
		}
		if onIdea != nil {
			if err := onIdea(idea); err != nil {
				return created, err
			}
		}
		created = append(created, idea)
		seen = append(seen, idea.Summary())
	}

	return created, nil
}
