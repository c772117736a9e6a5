package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mobius/internal/microservices/http-api/dto"
	"mobius/internal/microservices/http-api/service"
	"mobius/internal/providers"
)

// QuoteHandler serves the synchronous quote endpoints. The websocket channel
// is the richer interface; these exist for the plain HTTP path.
type QuoteHandler struct {
	quoteService  service.QuoteService
	uploadService service.UploadService
	timeout       time.Duration
	log           *slog.Logger
}

func NewQuoteHandler(quoteService service.QuoteService, uploadService service.UploadService, log *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		quoteService:  quoteService,
		uploadService: uploadService,
		timeout:       2 * time.Minute,
		log:           log,
	}
}

// GetQuotes handles GET /quote?mobius_id=N. Blocks until every provider has
// answered (or errored) and returns one entry per provider.
func (h *QuoteHandler) GetQuotes(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.GetString("userID")

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	states, err := h.quoteService.GetQuotes(ctx, userID, req.MobiusID, providers.QuoteParams{
		Quantity: req.Quantity,
		Scale:    req.Scale,
		Unit:     req.Unit,
		Currency: req.Currency,
		Material: req.Material,
	})
	if err != nil {
		h.log.Error("quote retrieval failed", "model", req.MobiusID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve quotes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"quotes": toProviderStates(states)})
}

// PushToProviders handles GET /provider_upload?mobius_id=N.
func (h *QuoteHandler) PushToProviders(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.GetString("userID")

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	states, err := h.quoteService.PushToProviders(ctx, userID, req.MobiusID)
	if err != nil {
		h.log.Error("provider upload failed", "model", req.MobiusID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload to providers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": toProviderStates(states)})
}

// ListModels handles GET /models.
func (h *QuoteHandler) ListModels(c *gin.Context) {
	userID := c.GetString("userID")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	list, err := h.uploadService.ListModels(ctx, userID)
	if err != nil {
		h.log.Error("model listing failed", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list models"})
		return
	}

	out := make([]dto.ModelResponse, 0, len(list))
	for _, m := range list {
		out = append(out, dto.ModelResponse{
			ID:        m.ID,
			Name:      m.Name,
			Size:      m.Size,
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// QuoteHistory handles GET /quote_history?mobius_id=N[&provider=X]. Serves
// persisted quotes without touching any provider.
func (h *QuoteHandler) QuoteHistory(c *gin.Context) {
	var req dto.QuoteHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	quotes, err := h.quoteService.History(ctx, req.MobiusID, req.Provider)
	if err != nil {
		h.log.Error("quote history lookup failed", "model", req.MobiusID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quote history"})
		return
	}

	out := make([]dto.QuoteRecord, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, dto.QuoteRecord{
			ID:        q.ID,
			ModelID:   q.ModelID,
			Provider:  q.Provider,
			Payload:   json.RawMessage(q.Payload),
			FetchedAt: q.FetchedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"quotes": out})
}

// DeleteModel handles DELETE /models/:id.
func (h *QuoteHandler) DeleteModel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model id"})
		return
	}
	userID := c.GetString("userID")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.uploadService.DeleteModel(ctx, userID, id); err != nil {
		if errors.Is(err, service.ErrModelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
			return
		}
		h.log.Error("model deletion failed", "model", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete model"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "model deleted"})
}

func toProviderStates(states []providers.WorkerState) []dto.ProviderState {
	out := make([]dto.ProviderState, 0, len(states))
	for _, s := range states {
		entry := dto.ProviderState{
			Provider: s.Provider,
			State:    string(s.State),
			Error:    s.Error,
		}
		if len(s.Response) > 0 {
			entry.Response = s.Response
		}
		out = append(out, entry)
	}
	return out
}
