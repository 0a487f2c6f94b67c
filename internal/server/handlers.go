package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/taqastore/storefront/internal/httputil"
	"github.com/taqastore/storefront/internal/queue"
	"github.com/taqastore/storefront/pkg/logger"
)

// probeTimeout bounds each readiness probe so a hung dependency cannot
// stall the whole /readyz response.
const probeTimeout = 2 * time.Second

type handler struct {
	deps Deps
	log  *logger.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"name":    h.deps.Config.App.Name,
		"version": h.deps.Config.App.Version,
		"uptime":  time.Since(h.deps.StartedAt).Round(time.Second).String(),
	})
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.deps.ReadyProbes))
	for name := range h.deps.ReadyProbes {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		probeCtx, cancel := contextWithProbeTimeout(r)
		err := h.deps.ReadyProbes[name](probeCtx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"checks": checks,
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

func (h *handler) version(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"name":    h.deps.Config.App.Name,
		"version": h.deps.Config.App.Version,
		"env":     h.deps.Config.App.Env,
		"role":    h.deps.Config.App.Role,
		"go":      runtime.Version(),
	})
}

func (h *handler) enqueueTask(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name       string          `json:"name"`
		Queue      string          `json:"queue"`
		Payload    json.RawMessage `json:"payload"`
		MaxRetries *int            `json:"max_retries"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest,
			httputil.CodeBadRequest, "invalid request body: "+err.Error(),
			"Send a JSON object with name, and optionally queue, payload and max_retries")
		return
	}

	if h.deps.Registry == nil || !h.deps.Registry.Has(strings.TrimSpace(payload.Name)) {
		httputil.WriteError(w, http.StatusBadRequest,
			httputil.CodeBadRequest, "unknown task name",
			"Use one of the registered task names from GET /api/v1/schedule or the deployment docs")
		return
	}

	queueName := payload.Queue
	if queueName == "" {
		queueName = h.deps.Config.Worker.Queue
	}
	task, err := queue.NewTask(payload.Name, queueName, payload.Payload)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest,
			httputil.CodeBadRequest, err.Error(),
			"Fix the task envelope and retry")
		return
	}

	maxRetries := h.deps.Config.Worker.MaxRetries
	if payload.MaxRetries != nil {
		if *payload.MaxRetries < 1 || *payload.MaxRetries > 10 {
			httputil.WriteError(w, http.StatusBadRequest,
				httputil.CodeBadRequest, "max_retries out of range",
				"Use a value between 1 and 10, or omit it for the default")
			return
		}
		maxRetries = *payload.MaxRetries
	}
	task.MaxRetries = maxRetries

	if h.deps.Results != nil {
		if err := h.deps.Results.SetResult(r.Context(), queue.NewPendingResult(task)); err != nil {
			h.log.WithError(err).Warn("record pending status failed")
		}
	}
	if err := h.deps.Broker.Enqueue(r.Context(), task); err != nil {
		h.log.WithError(err).WithField("task", task.Name).Error("enqueue failed")
		httputil.WriteError(w, http.StatusServiceUnavailable,
			httputil.CodeServiceUnavailable, "could not enqueue task",
			"Check broker availability and retry")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id": task.ID,
		"name":    task.Name,
		"queue":   task.Queue,
		"status":  queue.StatusPending,
	})
}

func (h *handler) taskStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, err := h.deps.Results.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrResultNotFound) {
			httputil.WriteError(w, http.StatusNotFound,
				httputil.CodeNotFound, "no result for task "+id,
				"The task may not exist, or its result has expired")
			return
		}
		h.log.WithError(err).Error("load task result failed")
		httputil.WriteError(w, http.StatusInternalServerError,
			httputil.CodeServerError, "could not load task result", "")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) queueDepth(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	depth, err := h.deps.Broker.Depth(r.Context(), name)
	if err != nil {
		h.log.WithError(err).WithField("queue", name).Error("queue depth failed")
		httputil.WriteError(w, http.StatusServiceUnavailable,
			httputil.CodeServiceUnavailable, "could not inspect queue",
			"Check broker availability and retry")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queue": name,
		"depth": depth,
	})
}

func (h *handler) purgeQueue(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	purged, err := h.deps.Broker.Purge(r.Context(), name)
	if err != nil {
		h.log.WithError(err).WithField("queue", name).Error("queue purge failed")
		httputil.WriteError(w, http.StatusServiceUnavailable,
			httputil.CodeServiceUnavailable, "could not purge queue",
			"Check broker availability and retry")
		return
	}
	h.log.WithField("queue", name).WithField("purged", purged).Warn("queue purged")
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queue":  name,
		"purged": purged,
	})
}

func (h *handler) schedule(w http.ResponseWriter, r *http.Request) {
	entries := []interface{}{}
	if h.deps.Schedule != nil {
		for _, entry := range h.deps.Schedule.Entries {
			entries = append(entries, entry)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

func contextWithProbeTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), probeTimeout)
}
