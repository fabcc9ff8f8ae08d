package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ec-store-sync/internal/reconcile"
	"github.com/example/ec-store-sync/internal/scheduler"
)

// ProductPipeline is the product reconciler surface exposed to operators.
type ProductPipeline interface {
	Run(ctx context.Context, opts reconcile.Options) (*reconcile.Result, error)
	Validate(ctx context.Context) (*reconcile.Validation, error)
	Stats(ctx context.Context) (*reconcile.Stats, error)
}

// CartPipeline is the cart reconciler surface exposed to operators.
type CartPipeline interface {
	Run(ctx context.Context, opts reconcile.Options) (*reconcile.Result, error)
	SyncUserCarts(ctx context.Context, userID string) (*reconcile.Result, error)
	Validate(ctx context.Context, userID string) (*reconcile.Validation, error)
	Stats(ctx context.Context) (*reconcile.Stats, error)
}

// SchedulerControl is the scheduler surface exposed to operators.
type SchedulerControl interface {
	Start() error
	Stop()
	TriggerManualSync(name string) error
	Status() scheduler.Status
}

type Handlers struct {
	products ProductPipeline
	carts    CartPipeline
	sched    SchedulerControl
}

func NewHandlers(products ProductPipeline, carts CartPipeline, sched SchedulerControl) *Handlers {
	return &Handlers{
		products: products,
		carts:    carts,
		sched:    sched,
	}
}

type syncRequest struct {
	DryRun    bool     `json:"dryRun"`
	BatchSize int      `json:"batchSize"`
	Pipelines []string `json:"pipelines"`
}

type pipelineOutcome struct {
	Success bool              `json:"success"`
	Result  *reconcile.Result `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// TriggerSync runs the requested pipelines synchronously and reports each
// outcome separately. A pipeline that fails does not stop the others; the
// top-level success flag is true only when every pipeline ran clean.
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.BatchSize != 0 {
		if err := reconcile.ValidateBatchSize(req.BatchSize); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	pipelines := req.Pipelines
	if len(pipelines) == 0 {
		pipelines = []string{reconcile.PipelineProduct, reconcile.PipelineCart}
	}

	opts := reconcile.Options{BatchSize: req.BatchSize, DryRun: req.DryRun}
	results := make(map[string]pipelineOutcome, len(pipelines))
	success := true

	for _, name := range pipelines {
		var (
			result *reconcile.Result
			err    error
		)
		switch name {
		case reconcile.PipelineProduct:
			result, err = h.products.Run(r.Context(), opts)
		case reconcile.PipelineCart:
			result, err = h.carts.Run(r.Context(), opts)
		default:
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown pipeline: " + name})
			return
		}

		outcome := pipelineOutcome{Success: err == nil && (result == nil || len(result.Errors) == 0), Result: result}
		if err != nil {
			outcome.Error = err.Error()
		}
		if !outcome.Success {
			success = false
		}
		results[name+"Sync"] = outcome
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": success, "results": results})
}

type userSyncRequest struct {
	UserID string `json:"userId"`
}

// SyncUserCarts repairs one user's snapshots on demand (the checkout path).
func (h *Handlers) SyncUserCarts(w http.ResponseWriter, r *http.Request) {
	var req userSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	result, err := h.carts.SyncUserCarts(r.Context(), req.UserID)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": len(result.Errors) == 0, "result": result})
}

type pipelineStatus struct {
	Stats      *reconcile.Stats      `json:"stats"`
	Validation *reconcile.Validation `json:"validation"`
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	productStats, err := h.products.Stats(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	productValidation, err := h.products.Validate(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	cartStats, err := h.carts.Stats(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	cartValidation, err := h.carts.Validate(r.Context(), "")
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]pipelineStatus{
		reconcile.PipelineProduct: {Stats: productStats, Validation: productValidation},
		reconcile.PipelineCart:    {Stats: cartStats, Validation: cartValidation},
	})
}

func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	productValidation, err := h.products.Validate(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	cartValidation, err := h.carts.Validate(r.Context(), "")
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"isValid":                 productValidation.IsValid && cartValidation.IsValid,
		reconcile.PipelineProduct: productValidation,
		reconcile.PipelineCart:    cartValidation,
	})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	productStats, err := h.products.Stats(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	cartStats, err := h.carts.Stats(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]*reconcile.Stats{
		reconcile.PipelineProduct: productStats,
		reconcile.PipelineCart:    cartStats,
	})
}

// Scheduler control

func (h *Handlers) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handlers) StartScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Start(); err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "scheduler started"})
}

func (h *Handlers) StopScheduler(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	respondJSON(w, http.StatusOK, map[string]string{"message": "scheduler stopped"})
}

type triggerRequest struct {
	Task string `json:"task"`
}

// TriggerTask starts one background run of a scheduled task. The run
// continues after the response; 202 means accepted, not finished.
func (h *Handlers) TriggerTask(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sched.TriggerManualSync(req.Task); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, scheduler.ErrUnknownTask):
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"message": "sync triggered: " + req.Task})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
