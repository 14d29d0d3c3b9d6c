package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/akashi/internal/engine"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/storage"
)

// Handlers holds HTTP handler dependencies: the engine core, the HTTP-level
// idempotency layer, and the SSE broker.
type Handlers struct {
	engine              *engine.Engine
	idem                *storage.IdempotencyStore
	broker              *Broker
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
	startedAt           time.Time
}

// HandlersDeps bundles the constructor arguments for NewHandlers.
type HandlersDeps struct {
	Engine              *engine.Engine
	Idempotency         *storage.IdempotencyStore
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(deps HandlersDeps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		engine:              deps.Engine,
		idem:                deps.Idempotency,
		broker:              deps.Broker,
		logger:              logger,
		version:             deps.Version,
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
		startedAt:           time.Now(),
	}
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.HealthResponse{Status: "ok", Version: h.version})
}

// HandleCreateState handles POST /v1/states.
func (h *Handlers) HandleCreateState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string   `json:"name"`
		BaseState string   `json:"base_state,omitempty"`
		BaseHeads []string `json:"base_heads,omitempty"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}

	idem, ok := h.beginIdempotentWrite(w, r, "POST:/v1/states", req)
	if !ok {
		return
	}

	st, err := h.engine.CreateState(req.Name, req.BaseState, req.BaseHeads)
	if err != nil {
		h.clearIdempotentWrite(r, idem)
		writeAPIError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, st)
	h.completeIdempotentWriteBestEffort(r, idem, http.StatusCreated, st)
}

// HandleListStates handles GET /v1/states.
func (h *Handlers) HandleListStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.engine.ListStates())
}

// HandleGetState handles GET /v1/states/{state}.
func (h *Handlers) HandleGetState(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("state")
	st, ok := h.engine.GetState(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeStateMissing, "state not found")
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// HandleListConflicts handles GET /v1/states/{state}/conflicts.
func (h *Handlers) HandleListConflicts(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("state")
	if _, ok := h.engine.GetState(name); !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeStateMissing, "state not found")
		return
	}
	openOnly := r.URL.Query().Get("open") == "true"
	writeJSON(w, r, http.StatusOK, h.engine.ListConflicts(name, openOnly))
}

// HandlePromote handles POST /v1/states/{state}/promote.
func (h *Handlers) HandlePromote(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("state")

	var req struct {
		SourceState string   `json:"source_state"`
		OpIDs       []string `json:"op_ids"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.SourceState == "" || len(req.OpIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "source_state and op_ids are required")
		return
	}

	idem, ok := h.beginIdempotentWrite(w, r, "POST:/v1/states/"+target+"/promote", req)
	if !ok {
		return
	}

	outcome, err := h.engine.Promote(req.SourceState, target, req.OpIDs)
	if err != nil {
		h.clearIdempotentWrite(r, idem)
		writeAPIError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, outcome)
	h.completeIdempotentWriteBestEffort(r, idem, http.StatusOK, outcome)
}

// HandleSubmitChangeSet handles POST /v1/change-sets.
func (h *Handlers) HandleSubmitChangeSet(w http.ResponseWriter, r *http.Request) {
	var cs model.ChangeSet
	if err := decodeJSON(w, r, &cs, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	idem, ok := h.beginIdempotentWrite(w, r, "POST:/v1/change-sets", cs)
	if !ok {
		return
	}

	outcome, err := h.engine.Submit(cs)
	if err != nil {
		h.clearIdempotentWrite(r, idem)
		writeAPIError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if outcome.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, r, status, outcome)
	h.completeIdempotentWriteBestEffort(r, idem, status, outcome)
}

// HandleListChangeSets handles GET /v1/change-sets?state=<s>.
func (h *Handlers) HandleListChangeSets(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "state query parameter is required")
		return
	}
	if _, ok := h.engine.GetState(state); !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeStateMissing, "state not found")
		return
	}
	writeJSON(w, r, http.StatusOK, h.engine.ListChangeSets(state))
}

// HandleGetChangeSet handles GET /v1/change-sets/{id}.
func (h *Handlers) HandleGetChangeSet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := h.engine.GetChangeSetRecord(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "change set not found")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleSubmitOps handles POST /v1/ops: a convenience wrapper that submits
// a single-change-set envelope of ops against one state.
func (h *Handlers) HandleSubmitOps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string     `json:"state"`
		Ops   []model.Op `json:"ops"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	cs := model.ChangeSet{State: req.State, Ops: req.Ops}

	idem, ok := h.beginIdempotentWrite(w, r, "POST:/v1/ops", req)
	if !ok {
		return
	}

	outcome, err := h.engine.Submit(cs)
	if err != nil {
		h.clearIdempotentWrite(r, idem)
		writeAPIError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if outcome.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, r, status, outcome)
	h.completeIdempotentWriteBestEffort(r, idem, status, outcome)
}

// HandleGetOp handles GET /v1/ops/{id}.
func (h *Handlers) HandleGetOp(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	op, ok := h.engine.GetOp(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "op not found")
		return
	}
	writeJSON(w, r, http.StatusOK, op)
}

// HandleGetConflict handles GET /v1/conflicts/{id}.
func (h *Handlers) HandleGetConflict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, state := range h.engine.ListStates() {
		for _, c := range h.engine.ListConflicts(state.Name, false) {
			if c.ID == id {
				writeJSON(w, r, http.StatusOK, c)
				return
			}
		}
	}
	writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "conflict not found")
}

// HandleResolveConflict handles POST /v1/conflicts/{id}/resolve.
func (h *Handlers) HandleResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		ResolvedBy string `json:"resolved_by,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
			return
		}
	}

	idem, ok := h.beginIdempotentWrite(w, r, "POST:/v1/conflicts/"+id+"/resolve", req)
	if !ok {
		return
	}

	c, err := h.engine.ResolveConflict(id, req.ResolvedBy)
	if err != nil {
		h.clearIdempotentWrite(r, idem)
		writeAPIError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, c)
	h.completeIdempotentWriteBestEffort(r, idem, http.StatusOK, c)
}

// HandleStreamState handles GET /v1/stream/states/{state}: an SSE stream
// of state_update events for one state, framed byte-for-byte the way the
// teacher's broker formats notifications.
func (h *Handlers) HandleStreamState(w http.ResponseWriter, r *http.Request) {
	state := r.PathValue("state")
	if _, ok := h.engine.GetState(state); !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeStateMissing, "state not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeInternalError(w, r, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := h.broker.Subscribe(state)
	defer h.broker.Unsubscribe(ch)

	// Send the current state immediately so a subscriber never waits on the
	// next mutation to learn where the state currently stands.
	if st, ok := h.engine.GetState(state); ok {
		if payload, err := json.Marshal(st); err == nil {
			w.Write(formatSSE(string(engine.EventStateUpdate), string(payload)))
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if _, err := w.Write(ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

