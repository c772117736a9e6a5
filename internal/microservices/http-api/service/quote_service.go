package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"mobius/internal/microservices/http-api/models"
	"mobius/internal/microservices/http-api/repository"
	"mobius/internal/progress"
	"mobius/internal/providers"
)

// QuoteService answers price questions by driving the provider dispatcher
// and caching what the providers said.
type QuoteService interface {
	// GetQuotes returns one terminal WorkerState per provider for the model.
	GetQuotes(ctx context.Context, userID string, modelID int64, params providers.QuoteParams) ([]providers.WorkerState, error)
	// PushToProviders uploads the stored model to every provider. Upload
	// progress is published on the progress bus as it happens.
	PushToProviders(ctx context.Context, userID string, modelID int64) ([]providers.WorkerState, error)
	// History returns persisted quotes for the model, newest first. With a
	// provider filter only that provider's latest quote is returned.
	History(ctx context.Context, modelID int64, provider string) ([]models.Quote, error)
}

type quoteService struct {
	dispatcher *providers.Dispatcher
	quoteRepo  repository.QuoteRepository
	cache      providers.KeyValue
	cacheTTL   time.Duration
	bus        progress.Bus
	log        *slog.Logger
}

func NewQuoteService(
	dispatcher *providers.Dispatcher,
	quoteRepo repository.QuoteRepository,
	cache providers.KeyValue,
	cacheTTL time.Duration,
	bus progress.Bus,
	log *slog.Logger,
) QuoteService {
	return &quoteService{
		dispatcher: dispatcher,
		quoteRepo:  quoteRepo,
		cache:      cache,
		cacheTTL:   cacheTTL,
		bus:        bus,
		log:        log,
	}
}

func (s *quoteService) GetQuotes(ctx context.Context, userID string, modelID int64, params providers.QuoteParams) ([]providers.WorkerState, error) {
	// Serve entirely from cache when every provider has a fresh answer.
	if cached, ok := s.cachedQuotes(ctx, modelID, params); ok {
		return cached, nil
	}

	req := providers.Request{
		Command:  providers.CommandQuote,
		MobiusID: modelID,
		UserID:   userID,
		Params:   params,
	}
	finals, err := s.collect(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	for _, state := range finals {
		if state.State != providers.StateResult {
			continue
		}
		if err := s.quoteRepo.Create(ctx, &models.Quote{
			ModelID:  modelID,
			Provider: state.Provider,
			Payload:  string(state.Response),
		}); err != nil {
			s.log.Warn("failed to persist quote", "provider", state.Provider, "model", modelID, "error", err)
		}
		if err := s.cache.Set(ctx, quoteKey(state.Provider, modelID, params), []byte(state.Response), s.cacheTTL).Err(); err != nil {
			s.log.Warn("failed to cache quote", "provider", state.Provider, "model", modelID, "error", err)
		}
	}
	return finals, nil
}

func (s *quoteService) PushToProviders(ctx context.Context, userID string, modelID int64) ([]providers.WorkerState, error) {
	req := providers.Request{
		Command:  providers.CommandUpload,
		MobiusID: modelID,
		UserID:   userID,
	}
	return s.collect(ctx, userID, req)
}

func (s *quoteService) History(ctx context.Context, modelID int64, provider string) ([]models.Quote, error) {
	if provider != "" {
		quote, err := s.quoteRepo.LatestByModelAndProvider(ctx, modelID, provider)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []models.Quote{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []models.Quote{*quote}, nil
	}
	return s.quoteRepo.ListByModel(ctx, modelID)
}

// collect dispatches the request and blocks until every provider has
// produced a terminal state, forwarding intermediate progress to the bus.
func (s *quoteService) collect(ctx context.Context, userID string, req providers.Request) ([]providers.WorkerState, error) {
	want := len(s.dispatcher.Providers())
	terminals := make(chan providers.WorkerState, want)

	s.dispatcher.Dispatch(req, func(state providers.WorkerState) {
		if state.State == providers.StateUploading {
			if err := s.bus.Publish(ctx, userID, progress.Update{
				Provider: state.Provider,
				Progress: state.Progress,
			}); err != nil {
				s.log.Warn("failed to publish provider progress", "provider", state.Provider, "error", err)
			}
			return
		}
		terminals <- state
	})

	finals := make([]providers.WorkerState, 0, want)
	for len(finals) < want {
		select {
		case state := <-terminals:
			finals = append(finals, state)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return finals, nil
}

// cachedQuotes returns synthesized RESULT states when all providers are
// cached for these exact parameters; a single miss falls through to a full
// dispatch.
func (s *quoteService) cachedQuotes(ctx context.Context, modelID int64, params providers.QuoteParams) ([]providers.WorkerState, bool) {
	names := s.dispatcher.Providers()
	finals := make([]providers.WorkerState, 0, len(names))
	for _, name := range names {
		payload, err := s.cache.Get(ctx, quoteKey(name, modelID, params)).Bytes()
		if err != nil {
			return nil, false
		}
		finals = append(finals, providers.WorkerState{
			Provider: name,
			State:    providers.StateResult,
			Response: json.RawMessage(payload),
		})
	}
	return finals, true
}

func quoteKey(provider string, modelID int64, params providers.QuoteParams) string {
	return fmt.Sprintf("mobius:quote:%s:%d:%d:%g:%s:%s:%s",
		provider, modelID, params.Quantity, params.Scale, params.Unit, params.Currency, params.Material)
}
