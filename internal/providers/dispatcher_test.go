package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"mobius/internal/microservices/http-api/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is an in-memory Provider that reports two progress ticks per
// upload and answers quotes with a fixed payload.
type fakeProvider struct {
	name      string
	uploadErr error
	quoteErr  error

	uploads atomic.Int32
	quotes  atomic.Int32

	mu          sync.Mutex
	lastQuoteID string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Upload(ctx context.Context, filename string, data []byte, progress ProgressFunc) (*UploadResult, error) {
	p.uploads.Add(1)
	if p.uploadErr != nil {
		return nil, p.uploadErr
	}
	progress(50)
	progress(100)
	return &UploadResult{
		ProviderModelID: p.name + "-model-1",
		Raw:             json.RawMessage(`{"accepted":true}`),
	}, nil
}

func (p *fakeProvider) Quote(ctx context.Context, providerModelID string, params QuoteParams) (json.RawMessage, error) {
	p.quotes.Add(1)
	p.mu.Lock()
	p.lastQuoteID = providerModelID
	p.mu.Unlock()
	if p.quoteErr != nil {
		return nil, p.quoteErr
	}
	return json.RawMessage(`{"price":12.5}`), nil
}

func (p *fakeProvider) quotedID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastQuoteID
}

// fakeKV is an in-memory stand-in for the redis client slice the dispatcher
// uses.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeKV) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

type fakeModelSource struct {
	model *models.Model
	err   error
}

func (f *fakeModelSource) FindByID(ctx context.Context, id int64) (*models.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

// stateRecorder collects emitted worker states; the dispatcher may emit from
// several worker goroutines.
type stateRecorder struct {
	mu     sync.Mutex
	states []WorkerState
}

func (r *stateRecorder) emit(state WorkerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) all() []WorkerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WorkerState(nil), r.states...)
}

func testModel() *models.Model {
	return &models.Model{
		ID:     7,
		UserID: "user-123",
		Name:   "ring.stl",
		Data:   []byte("solid ring"),
		Size:   10,
	}
}

func dispatchAndWait(d *Dispatcher, pool *WorkerPool, req Request, rec *stateRecorder) {
	d.Dispatch(req, rec.emit)
	pool.Wait()
}

func TestDispatcherUploadEmitsProgressThenResult(t *testing.T) {
	pool := NewWorkerPool(1, testLogger())
	pool.Start()

	provider := &fakeProvider{name: "IMATERIALISE"}
	kv := newFakeKV()
	d := NewDispatcher(pool, &fakeModelSource{model: testModel()}, kv, time.Minute, testLogger(), provider)

	rec := &stateRecorder{}
	dispatchAndWait(d, pool, Request{ID: "req-1", Command: CommandUpload, MobiusID: 7, UserID: "user-123"}, rec)

	states := rec.all()
	if assert.Len(t, states, 3) {
		assert.Equal(t, StateUploading, states[0].State)
		assert.Equal(t, 50, states[0].Progress)
		assert.Equal(t, StateUploading, states[1].State)
		assert.Equal(t, 100, states[1].Progress)
		assert.Equal(t, StateResult, states[2].State)
		assert.Equal(t, "req-1", states[2].RequestID)
	}

	// The provider's model id is recorded for later quotes.
	stored, ok := kv.get(providerModelKey("IMATERIALISE", 7))
	assert.True(t, ok)
	assert.Equal(t, "IMATERIALISE-model-1", stored)
}

func TestDispatcherQuoteUploadsOnCacheMiss(t *testing.T) {
	pool := NewWorkerPool(1, testLogger())
	pool.Start()

	provider := &fakeProvider{name: "SCULPTEO"}
	kv := newFakeKV()
	d := NewDispatcher(pool, &fakeModelSource{model: testModel()}, kv, time.Minute, testLogger(), provider)

	rec := &stateRecorder{}
	dispatchAndWait(d, pool, Request{Command: CommandQuote, MobiusID: 7, UserID: "user-123"}, rec)

	assert.EqualValues(t, 1, provider.uploads.Load())
	assert.EqualValues(t, 1, provider.quotes.Load())
	assert.Equal(t, "SCULPTEO-model-1", provider.quotedID())

	states := rec.all()
	if assert.Len(t, states, 3) {
		assert.Equal(t, StateUploading, states[0].State)
		assert.Equal(t, StateResult, states[2].State)
		assert.JSONEq(t, `{"price":12.5}`, string(states[2].Response))
	}
}

func TestDispatcherQuoteUsesStoredProviderModelID(t *testing.T) {
	pool := NewWorkerPool(1, testLogger())
	pool.Start()

	provider := &fakeProvider{name: "SCULPTEO"}
	kv := newFakeKV()
	kv.data[providerModelKey("SCULPTEO", 7)] = "cached-uuid-9"
	d := NewDispatcher(pool, &fakeModelSource{model: testModel()}, kv, time.Minute, testLogger(), provider)

	rec := &stateRecorder{}
	dispatchAndWait(d, pool, Request{Command: CommandQuote, MobiusID: 7, UserID: "user-123"}, rec)

	assert.EqualValues(t, 0, provider.uploads.Load())
	assert.Equal(t, "cached-uuid-9", provider.quotedID())

	states := rec.all()
	if assert.Len(t, states, 1) {
		assert.Equal(t, StateResult, states[0].State)
	}
}

func TestDispatcherOneTerminalPerProvider(t *testing.T) {
	pool := NewWorkerPool(2, testLogger())
	pool.Start()

	good := &fakeProvider{name: "IMATERIALISE"}
	bad := &fakeProvider{name: "SCULPTEO", uploadErr: fmt.Errorf("service unavailable")}
	kv := newFakeKV()
	d := NewDispatcher(pool, &fakeModelSource{model: testModel()}, kv, time.Minute, testLogger(), good, bad)

	rec := &stateRecorder{}
	dispatchAndWait(d, pool, Request{Command: CommandQuote, MobiusID: 7, UserID: "user-123"}, rec)

	terminals := map[string][]State{}
	for _, state := range rec.all() {
		if state.State == StateResult || state.State == StateError {
			terminals[state.Provider] = append(terminals[state.Provider], state.State)
		}
	}
	assert.Equal(t, []State{StateResult}, terminals["IMATERIALISE"])
	assert.Equal(t, []State{StateError}, terminals["SCULPTEO"])
}

func TestDispatcherRejectsForeignModel(t *testing.T) {
	pool := NewWorkerPool(1, testLogger())
	pool.Start()

	provider := &fakeProvider{name: "IMATERIALISE"}
	d := NewDispatcher(pool, &fakeModelSource{model: testModel()}, newFakeKV(), time.Minute, testLogger(), provider)

	rec := &stateRecorder{}
	dispatchAndWait(d, pool, Request{Command: CommandQuote, MobiusID: 7, UserID: "someone-else"}, rec)

	// The model never reaches the provider.
	assert.EqualValues(t, 0, provider.uploads.Load())
	assert.EqualValues(t, 0, provider.quotes.Load())

	states := rec.all()
	if assert.Len(t, states, 1) {
		assert.Equal(t, StateError, states[0].State)
		assert.Contains(t, states[0].Error, "does not belong")
	}
}

func TestDispatcherUnknownCommand(t *testing.T) {
	pool := NewWorkerPool(1, testLogger())
	pool.Start()

	provider := &fakeProvider{name: "IMATERIALISE"}
	d := NewDispatcher(pool, &fakeModelSource{model: testModel()}, newFakeKV(), time.Minute, testLogger(), provider)

	rec := &stateRecorder{}
	dispatchAndWait(d, pool, Request{Command: Command("RENDER"), MobiusID: 7, UserID: "user-123"}, rec)

	states := rec.all()
	if assert.Len(t, states, 1) {
		assert.Equal(t, StateError, states[0].State)
	}
}
