package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"mobius/internal/microservices/http-api/models"
)

// EmitFunc receives worker state transitions for a dispatched request. It may
// be called from worker goroutines; callers synchronize their own sinks.
type EmitFunc func(state WorkerState)

// ModelSource hands the dispatcher the stored model for a mobius id.
type ModelSource interface {
	FindByID(ctx context.Context, id int64) (*models.Model, error)
}

// KeyValue is the slice of the redis client the dispatcher needs for the
// provider model id mapping. *redis.Client satisfies it.
type KeyValue interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Dispatcher routes provider requests to every registered provider through
// the worker pool and fans worker states back to the issuer.
type Dispatcher struct {
	providers map[string]Provider
	order     []string
	pool      *WorkerPool
	source    ModelSource
	cache     KeyValue
	cacheTTL  time.Duration
	log       *slog.Logger
}

func NewDispatcher(pool *WorkerPool, source ModelSource, cache KeyValue, cacheTTL time.Duration, log *slog.Logger, provs ...Provider) *Dispatcher {
	d := &Dispatcher{
		providers: make(map[string]Provider, len(provs)),
		pool:      pool,
		source:    source,
		cache:     cache,
		cacheTTL:  cacheTTL,
		log:       log,
	}
	for _, p := range provs {
		d.providers[p.Name()] = p
		d.order = append(d.order, p.Name())
	}
	return d
}

// Providers lists registered provider names in registration order.
func (d *Dispatcher) Providers() []string {
	return append([]string(nil), d.order...)
}

// Dispatch submits the request to every registered provider. Each provider
// produces exactly one terminal RESULT or ERROR state on emit; UPLOADING
// states may precede it.
func (d *Dispatcher) Dispatch(req Request, emit EmitFunc) {
	for _, name := range d.order {
		provider := d.providers[name]
		d.pool.Submit(func(ctx context.Context) error {
			d.run(ctx, provider, req, emit)
			return nil
		})
	}
}

func (d *Dispatcher) run(ctx context.Context, provider Provider, req Request, emit EmitFunc) {
	model, err := d.source.FindByID(ctx, req.MobiusID)
	if err != nil {
		d.emitError(emit, provider.Name(), req, fmt.Errorf("model %d: %w", req.MobiusID, err))
		return
	}
	// The raw model bytes leave the system here, so the requester must own
	// the model it names.
	if model.UserID != req.UserID {
		d.emitError(emit, provider.Name(), req, fmt.Errorf("model %d: %w", req.MobiusID, ErrNotModelOwner))
		return
	}

	switch req.Command {
	case CommandUpload:
		result, err := d.upload(ctx, provider, model, req, emit)
		if err != nil {
			d.emitError(emit, provider.Name(), req, err)
			return
		}
		emit(WorkerState{
			RequestID: req.ID,
			Provider:  provider.Name(),
			State:     StateResult,
			Response:  result.Raw,
		})

	case CommandQuote:
		providerModelID, err := d.providerModelID(ctx, provider, model, req, emit)
		if err != nil {
			d.emitError(emit, provider.Name(), req, err)
			return
		}
		raw, err := provider.Quote(ctx, providerModelID, req.Params)
		if err != nil {
			d.emitError(emit, provider.Name(), req, err)
			return
		}
		emit(WorkerState{
			RequestID: req.ID,
			Provider:  provider.Name(),
			State:     StateResult,
			Response:  raw,
		})

	default:
		d.emitError(emit, provider.Name(), req, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command))
	}
}

// upload pushes the model to the provider, forwarding progress as UPLOADING
// states, and records the provider's model id for later quote requests.
func (d *Dispatcher) upload(ctx context.Context, provider Provider, model *models.Model, req Request, emit EmitFunc) (*UploadResult, error) {
	result, err := provider.Upload(ctx, model.Name, model.Data, func(percent int) {
		emit(WorkerState{
			RequestID: req.ID,
			Provider:  provider.Name(),
			State:     StateUploading,
			Progress:  percent,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := d.cache.Set(ctx, providerModelKey(provider.Name(), model.ID), result.ProviderModelID, 0).Err(); err != nil {
		// Mapping loss only costs a re-upload on the next quote.
		d.log.Warn("failed to store provider model id", "provider", provider.Name(), "model", model.ID, "error", err)
	}
	return result, nil
}

// providerModelID resolves the provider-side id of a model, uploading the
// model first if this provider has never seen it.
func (d *Dispatcher) providerModelID(ctx context.Context, provider Provider, model *models.Model, req Request, emit EmitFunc) (string, error) {
	id, err := d.cache.Get(ctx, providerModelKey(provider.Name(), model.ID)).Result()
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && err != redis.Nil {
		d.log.Warn("provider model id lookup failed", "provider", provider.Name(), "model", model.ID, "error", err)
	}

	result, err := d.upload(ctx, provider, model, req, emit)
	if err != nil {
		return "", err
	}
	return result.ProviderModelID, nil
}

func (d *Dispatcher) emitError(emit EmitFunc, provider string, req Request, err error) {
	d.log.Error("provider request failed", "provider", provider, "command", string(req.Command), "mobius_id", req.MobiusID, "error", err)
	emit(WorkerState{
		RequestID: req.ID,
		Provider:  provider,
		State:     StateError,
		Error:     err.Error(),
	})
}

func providerModelKey(provider string, modelID int64) string {
	return fmt.Sprintf("mobius:provider_model:%s:%d", provider, modelID)
}
