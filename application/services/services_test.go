package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	"atelier/domain/events"
	"atelier/infrastructure/generation/mock"
	"atelier/infrastructure/persistence/memory"
	pkgerrors "atelier/pkg/errors"
)

const testUser = "user-1"

// manualQueue records tasks; tests run them explicitly.
type manualQueue struct {
	mu    sync.Mutex
	tasks []ports.ImageTask
	err   error
}

func (q *manualQueue) Enqueue(task ports.ImageTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *manualQueue) drain(ctx context.Context) {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range tasks {
		_ = task.Execute(ctx)
	}
}

func (q *manualQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type memoryStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memoryStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	return "/uploads/" + name, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, evts []events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

// flakyPaintings fails the failSaveOn-th Save and the next failTerminal
// Updates that write a finished status.
type flakyPaintings struct {
	*memory.PaintingRepository

	mu           sync.Mutex
	saves        int
	failSaveOn   int
	failTerminal int
}

func (r *flakyPaintings) Save(ctx context.Context, painting *entities.Painting) error {
	r.mu.Lock()
	r.saves++
	fail := r.saves == r.failSaveOn
	r.mu.Unlock()
	if fail {
		return pkgerrors.NewPersistenceError("put painting", errors.New("write rejected"))
	}
	return r.PaintingRepository.Save(ctx, painting)
}

func (r *flakyPaintings) Update(ctx context.Context, painting *entities.Painting, expected valueobjects.PaintingStatus) error {
	r.mu.Lock()
	fail := painting.Status().IsTerminal() && r.failTerminal > 0
	if fail {
		r.failTerminal--
	}
	r.mu.Unlock()
	if fail {
		return pkgerrors.NewPersistenceError("update painting", errors.New("write rejected"))
	}
	return r.PaintingRepository.Update(ctx, painting, expected)
}

// flakyIdeas fails the failSaveOn-th Save.
type flakyIdeas struct {
	*memory.IdeaRepository

	mu         sync.Mutex
	saves      int
	failSaveOn int
}

func (r *flakyIdeas) Save(ctx context.Context, idea *entities.Idea) error {
	r.mu.Lock()
	r.saves++
	fail := r.saves == r.failSaveOn
	r.mu.Unlock()
	if fail {
		return pkgerrors.NewPersistenceError("put idea", errors.New("write rejected"))
	}
	return r.IdeaRepository.Save(ctx, idea)
}

type harness struct {
	titles     *memory.TitleRepository
	ideas      *memory.IdeaRepository
	paintings  *memory.PaintingRepository
	references *memory.ReferenceRepository
	paintingDB *flakyPaintings
	ideaDB     *flakyIdeas
	ideaGen    *mock.IdeaGenerator
	imageGen   *mock.ImageGenerator
	queue      *manualQueue
	publisher  *recordingPublisher

	batch   *PaintingService
	retries *RetryCoordinator
	catalog *TitleService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		titles:     memory.NewTitleRepository(),
		ideas:      memory.NewIdeaRepository(),
		paintings:  memory.NewPaintingRepository(),
		references: memory.NewReferenceRepository(),
		ideaGen:    mock.NewIdeaGenerator(),
		imageGen:   mock.NewImageGenerator(),
		queue:      &manualQueue{},
		publisher:  &recordingPublisher{},
	}
	h.paintingDB = &flakyPaintings{PaintingRepository: h.paintings}
	h.ideaDB = &flakyIdeas{IdeaRepository: h.ideas}
	sequencer := NewIdeaSequencer(h.ideaGen, h.ideaDB, logger)
	images := NewImageGenerationService(h.paintingDB, h.imageGen, &memoryStore{files: map[string][]byte{}}, h.queue, h.publisher, nil, logger)
	h.batch = NewPaintingService(h.titles, h.references, h.paintingDB, sequencer, images, h.publisher, nil, nil, logger)
	h.retries = NewRetryCoordinator(h.titles, h.ideaDB, h.paintingDB, h.references, sequencer, images, h.publisher, nil, logger)
	h.catalog = NewTitleService(h.titles, nil, logger)
	return h
}

func (h *harness) createTitle(t *testing.T, text string) *entities.Title {
	t.Helper()
	title, err := h.catalog.Create(context.Background(), testUser, text, "oil on canvas")
	require.NoError(t, err)
	return title
}

func (h *harness) painting(t *testing.T, id valueobjects.PaintingID) *entities.Painting {
	t.Helper()
	p, err := h.paintings.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestGenerateBatch_CreatesNIdeasAndPaintingsBeforeReturning(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Lighthouse")

	// Act
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 3)

	// Assert
	require.NoError(t, err)
	assert.Len(t, result.Ideas, 3)
	assert.Len(t, result.Paintings, 3)

	stored, err := h.paintings.ListByTitle(ctx, title.ID())
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	for _, p := range stored {
		assert.Equal(t, valueobjects.StatusPending, p.Status())
	}
	ideas, err := h.ideas.ListByTitle(ctx, title.ID())
	require.NoError(t, err)
	assert.Len(t, ideas, 3)
	assert.Equal(t, 3, h.queue.len())
	assert.Equal(t, 0, h.imageGen.Calls(), "image phase runs after the response")
}

func TestGenerateBatch_EachIdeaSeesAllEarlierSummaries(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Harbor")
	earlier, err := entities.NewIdea(title.ID(), "Earlier concept", "An earlier prompt.")
	require.NoError(t, err)
	require.NoError(t, h.ideas.Save(ctx, earlier))

	// Act
	_, err = h.batch.GenerateBatch(ctx, testUser, title.ID(), 3)

	// Assert
	require.NoError(t, err)
	requests := h.ideaGen.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, []string{"Earlier concept"}, requests[0].PriorSummaries)
	assert.Equal(t, []string{"Earlier concept", "Concept 1 for Harbor"}, requests[1].PriorSummaries)
	assert.Equal(t, []string{"Earlier concept", "Concept 1 for Harbor", "Concept 2 for Harbor"}, requests[2].PriorSummaries)
	for _, req := range requests {
		assert.False(t, req.Safer)
		assert.Equal(t, "oil on canvas", req.Instructions)
	}
}

func TestGenerateBatch_Quantity(t *testing.T) {
	tests := []struct {
		name      string
		quantity  int
		wantCount int
		wantErr   bool
	}{
		{name: "zero uses the default", quantity: 0, wantCount: 5},
		{name: "lower bound", quantity: 1, wantCount: 1},
		{name: "upper bound", quantity: 20, wantCount: 20},
		{name: "negative", quantity: -1, wantErr: true},
		{name: "above maximum", quantity: 21, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t)
			ctx := context.Background()
			title := h.createTitle(t, "Orchard")

			// Act
			result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), tt.quantity)

			// Assert
			stored, listErr := h.paintings.ListByTitle(ctx, title.ID())
			require.NoError(t, listErr)
			if tt.wantErr {
				assert.True(t, pkgerrors.IsValidation(err))
				assert.Empty(t, stored)
				assert.Empty(t, h.ideaGen.Requests())
				return
			}
			require.NoError(t, err)
			assert.Len(t, result.Paintings, tt.wantCount)
			assert.Len(t, stored, tt.wantCount)
		})
	}
}

func TestGenerateBatch_TitleMustBelongToUser(t *testing.T) {
	// Arrange
	h := newHarness(t)
	title := h.createTitle(t, "Mountains")

	// Act
	_, errOther := h.batch.GenerateBatch(context.Background(), "someone-else", title.ID(), 2)
	_, errMissing := h.batch.GenerateBatch(context.Background(), testUser, valueobjects.NewTitleID(), 2)

	// Assert
	assert.True(t, pkgerrors.IsNotFound(errOther))
	assert.True(t, pkgerrors.IsNotFound(errMissing))
	assert.Empty(t, h.ideaGen.Requests())
}

func TestGenerateBatch_AbortsAtFailingItemAndKeepsEarlierOnes(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Desert")
	h.ideaGen.FailOnCall = 3

	// Act
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 5)

	// Assert
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUpstream(err))
	assert.Equal(t, 2, pkgerrors.GetAppError(err).Details["created"])
	require.NotNil(t, result)
	assert.Len(t, result.Paintings, 2)
	assert.Len(t, h.ideaGen.Requests(), 3, "no call after the failing item")
	assert.Equal(t, 2, h.queue.len())

	h.queue.drain(ctx)
	for _, p := range result.Paintings {
		assert.Equal(t, valueobjects.StatusCompleted, h.painting(t, p.ID()).Status())
	}
}

func TestGenerateBatch_StoreFailureStopsBatchAndKeepsEarlierOnes(t *testing.T) {
	tests := []struct {
		name        string
		arrange     func(h *harness)
		wantCreated int
	}{
		{
			name:        "painting write rejected at third item",
			arrange:     func(h *harness) { h.paintingDB.failSaveOn = 3 },
			wantCreated: 2,
		},
		{
			name:        "idea write rejected at second item",
			arrange:     func(h *harness) { h.ideaDB.failSaveOn = 2 },
			wantCreated: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t)
			ctx := context.Background()
			title := h.createTitle(t, "Lighthouse")
			tt.arrange(h)

			// Act
			result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 5)

			// Assert
			require.Error(t, err)
			appErr := pkgerrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, pkgerrors.ErrorTypePersistence, appErr.Type)
			assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
			assert.Equal(t, tt.wantCreated, appErr.Details["created"])
			assert.Equal(t, 5, appErr.Details["requested"])
			require.NotNil(t, result)
			assert.Len(t, result.Paintings, tt.wantCreated)
			assert.Equal(t, tt.wantCreated, h.queue.len())

			h.queue.drain(ctx)
			for _, p := range result.Paintings {
				assert.Equal(t, valueobjects.StatusCompleted, h.painting(t, p.ID()).Status())
			}
		})
	}
}

func TestGenerateBatch_QueueRefusalMarksPaintingFailed(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Forest")
	h.queue.err = errors.New("image queue is full")

	// Act
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 2)

	// Assert
	require.NoError(t, err)
	for _, p := range result.Paintings {
		stored := h.painting(t, p.ID())
		assert.Equal(t, valueobjects.StatusFailed, stored.Status())
		assert.Contains(t, stored.ErrorMessage(), "image queue is full")
	}
}

func TestImagePhase_CompletesWithReferences(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "River")
	refSvc := NewReferenceService(h.titles, h.references, nil, zap.NewNop())
	titleRef, err := refSvc.Upload(ctx, testUser, title.ID(), "data:image/png;base64,AAAA", false)
	require.NoError(t, err)
	globalRef, err := refSvc.Upload(ctx, testUser, valueobjects.TitleID{}, "data:image/png;base64,BBBB", true)
	require.NoError(t, err)
	_, err = refSvc.Upload(ctx, "someone-else", valueobjects.TitleID{}, "data:image/png;base64,CCCC", true)
	require.NoError(t, err)

	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 1)
	require.NoError(t, err)

	// Act
	h.queue.drain(ctx)

	// Assert
	p := h.painting(t, result.Paintings[0].ID())
	assert.Equal(t, valueobjects.StatusCompleted, p.Status())
	assert.Equal(t, "/uploads/"+p.ID().String()+".png", p.ImageURL())
	assert.ElementsMatch(t, []valueobjects.ReferenceID{titleRef.ID(), globalRef.ID()}, p.UsedReferenceIDs())

	var statuses []string
	for _, e := range h.publisher.events {
		if changed, ok := e.(events.PaintingStatusChanged); ok {
			statuses = append(statuses, string(changed.To))
		}
	}
	assert.Equal(t, []string{"generating_image", "completed"}, statuses)
}

func TestImagePhase_TerminalWriteSurvivesCancellation(t *testing.T) {
	// Arrange
	h := newHarness(t)
	title := h.createTitle(t, "Storm")
	result, err := h.batch.GenerateBatch(context.Background(), testUser, title.ID(), 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	h.queue.drain(ctx)

	// Assert
	p := h.painting(t, result.Paintings[0].ID())
	assert.Equal(t, valueobjects.StatusFailed, p.Status())
	assert.NotEmpty(t, p.ErrorMessage())
}

func TestImagePhase_OutcomeWriteIsRetriedOnce(t *testing.T) {
	tests := []struct {
		name         string
		failTerminal int
		want         valueobjects.PaintingStatus
	}{
		{"first write rejected", 1, valueobjects.StatusCompleted},
		{"both writes rejected", 2, valueobjects.StatusGeneratingImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t)
			ctx := context.Background()
			title := h.createTitle(t, "Orchard")
			result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 1)
			require.NoError(t, err)
			h.paintingDB.failTerminal = tt.failTerminal

			// Act
			h.queue.drain(ctx)

			// Assert
			assert.Equal(t, tt.want, h.painting(t, result.Paintings[0].ID()).Status())
		})
	}
}

func TestRetry_FailedPaintingRunsAgainWithSamePrompt(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Garden")
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 1)
	require.NoError(t, err)
	h.imageGen.Err = pkgerrors.NewUpstreamError("images", errors.New("quota exceeded"))
	h.queue.drain(ctx)
	id := result.Paintings[0].ID()
	require.Equal(t, valueobjects.StatusFailed, h.painting(t, id).Status())
	h.imageGen.Err = nil

	// Act
	retried, err := h.retries.Retry(ctx, testUser, id)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, valueobjects.StatusPending, retried.Status())
	assert.Equal(t, 1, retried.RetryCount())
	assert.Equal(t, result.Ideas[0].ID(), retried.IdeaID())
	assert.Len(t, h.ideaGen.Requests(), 1, "retry reuses the prompt")

	h.queue.drain(ctx)
	p := h.painting(t, id)
	assert.Equal(t, valueobjects.StatusCompleted, p.Status())
	assert.Empty(t, p.ErrorMessage())
}

func TestRetry_RejectedOutsideFailed(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Bridge")
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 1)
	require.NoError(t, err)
	id := result.Paintings[0].ID()

	// Act
	_, errPending := h.retries.Retry(ctx, testUser, id)
	h.queue.drain(ctx)
	_, errCompleted := h.retries.Retry(ctx, testUser, id)

	// Assert
	assert.True(t, pkgerrors.IsConflict(errPending))
	assert.True(t, pkgerrors.IsConflict(errCompleted))
	p := h.painting(t, id)
	assert.Equal(t, valueobjects.StatusCompleted, p.Status())
	assert.Equal(t, 0, p.RetryCount())
}

func TestRetry_MissingPromptLeavesPaintingUntouched(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Tower")
	p, err := entities.NewPainting(title.ID(), valueobjects.NewIdeaID())
	require.NoError(t, err)
	require.NoError(t, p.StartGeneration())
	require.NoError(t, p.Fail("boom"))
	require.NoError(t, h.paintings.Save(ctx, p))

	// Act
	_, err = h.retries.Retry(ctx, testUser, p.ID())

	// Assert
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Contains(t, err.Error(), "idea is missing prompt data")
	stored := h.painting(t, p.ID())
	assert.Equal(t, valueobjects.StatusFailed, stored.Status())
	assert.Equal(t, "boom", stored.ErrorMessage())
	assert.Zero(t, h.queue.len())
}

func TestRetry_OtherUsersPaintingIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Canyon")
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 1)
	require.NoError(t, err)

	_, err = h.retries.Retry(ctx, "intruder", result.Paintings[0].ID())

	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRegeneratePrompt_ReplacesIdeaAndSecondRejectionFails(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Battle "+mock.SafetyMarker)
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 1)
	require.NoError(t, err)
	h.queue.drain(ctx)
	id := result.Paintings[0].ID()
	require.Equal(t, valueobjects.StatusSafetyViolation, h.painting(t, id).Status())
	oldIdea := result.Ideas[0]

	// Act
	regenerated, newIdea, err := h.retries.RegeneratePrompt(ctx, testUser, id)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, valueobjects.StatusPending, regenerated.Status())
	assert.Equal(t, newIdea.ID(), regenerated.IdeaID())
	assert.NotEqual(t, oldIdea.FullPrompt(), newIdea.FullPrompt())

	requests := h.ideaGen.Requests()
	require.Len(t, requests, 2)
	assert.True(t, requests[1].Safer)
	assert.Equal(t, []string{oldIdea.Summary()}, requests[1].PriorSummaries)

	ideas, err := h.ideas.ListByTitle(ctx, title.ID())
	require.NoError(t, err)
	assert.Len(t, ideas, 2, "the rejected idea stays in the log")

	// The title still carries the marker, so the safer prompt is rejected too.
	h.queue.drain(ctx)
	p := h.painting(t, id)
	assert.Equal(t, valueobjects.StatusFailed, p.Status())
	assert.True(t, strings.HasPrefix(p.ErrorMessage(), "safety rejection after retry: "))
}

func TestRegeneratePrompt_RejectedOutsideSafetyViolation(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	title := h.createTitle(t, "Meadow")
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 1)
	require.NoError(t, err)
	h.imageGen.Err = pkgerrors.NewUpstreamError("images", errors.New("timeout"))
	h.queue.drain(ctx)
	id := result.Paintings[0].ID()

	// Act
	_, _, err = h.retries.RegeneratePrompt(ctx, testUser, id)

	// Assert
	assert.True(t, pkgerrors.IsConflict(err))
	assert.Len(t, h.ideaGen.Requests(), 1, "no idea generated")
	assert.Equal(t, valueobjects.StatusFailed, h.painting(t, id).Status())
}

func TestRegeneratePrompt_RepeatedPromptIsUpstreamError(t *testing.T) {
	// Arrange
	h := newHarness(t)
	ctx := context.Background()
	h.ideaGen.Repeat = true
	title := h.createTitle(t, "Ruins "+mock.SafetyMarker)
	result, err := h.batch.GenerateBatch(ctx, testUser, title.ID(), 1)
	require.NoError(t, err)
	h.queue.drain(ctx)
	id := result.Paintings[0].ID()

	// Act
	_, _, err = h.retries.RegeneratePrompt(ctx, testUser, id)

	// Assert
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUpstream(err))
	assert.Equal(t, valueobjects.StatusSafetyViolation, h.painting(t, id).Status())
}
