package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/hugh/taruvi/internal/api/dto"
)

type TaskHandler struct {
	inspector *asynq.Inspector
}

func NewTaskHandler(inspector *asynq.Inspector) *TaskHandler {
	return &TaskHandler{inspector: inspector}
}

// Queues the dispatcher consumes, in lookup order.
var taskQueues = []string{"critical", "default", "low"}

type TaskStatusResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Queue     string `json:"queue"`
	State     string `json:"state"`
	Retried   int    `json:"retried"`
	MaxRetry  int    `json:"max_retry"`
	LastError string `json:"last_error,omitempty"`
	NextRetry string `json:"next_retry,omitempty"`
}

// Get handles GET /api/v1/tasks/{id}. Task IDs are not queue-qualified,
// so lookup walks the known queues.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Task ID is required"})
		return
	}

	for _, queue := range taskQueues {
		info, err := h.inspector.GetTaskInfo(queue, taskID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Task lookup failed"})
			return
		}

		resp := TaskStatusResponse{
			ID:        info.ID,
			Type:      info.Type,
			Queue:     info.Queue,
			State:     info.State.String(),
			Retried:   info.Retried,
			MaxRetry:  info.MaxRetry,
			LastError: info.LastErr,
		}
		if !info.NextProcessAt.IsZero() {
			resp.NextRetry = info.NextProcessAt.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Task not found"})
}
