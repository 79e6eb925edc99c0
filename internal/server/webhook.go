package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/payperwork/payperwork/internal/manus"
	"github.com/payperwork/payperwork/internal/protocol"
	"github.com/payperwork/payperwork/internal/store"
)

// handleWebhook receives task events from the provider. The raw body is
// verified against the shared secret before anything is parsed.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	// Verification is skipped when no secret is configured (local dev).
	if s.webhookSecret != "" {
		sig := r.Header.Get(manus.SignatureHeader)
		if sig == "" {
			respondError(w, http.StatusUnauthorized, "Missing signature")
			return
		}
		if !manus.VerifySignature(body, s.webhookSecret, sig) {
			respondError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	var ev protocol.TaskEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "malformed event")
		return
	}
	if ev.TaskID == "" {
		respondError(w, http.StatusBadRequest, "Missing task_id")
		return
	}

	switch ev.EventType {
	case protocol.TaskEventStopped:
		out, err := s.slides.HandleTaskStopped(r.Context(), &ev)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Task not found")
				return
			}
			log.Printf("[Server] webhook task %s: %v", ev.TaskID, err)
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to process task result: %v", err))
			return
		}
		if out.Duplicate {
			respondMessage(w, http.StatusOK, "acknowledged")
			return
		}
		if ev.StopReason != protocol.StopReasonFinish {
			respondMessage(w, http.StatusOK, "Task failure recorded")
			return
		}
		respondData(w, http.StatusOK, map[string]interface{}{
			"presentation_id": out.PresentationID,
			"slides_count":    out.SlidesCount,
		})

	case protocol.TaskEventProgress, protocol.TaskEventThinking:
		if err := s.slides.HandleProgress(r.Context(), &ev); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Task not found")
				return
			}
			log.Printf("[Server] webhook task %s: %v", ev.TaskID, err)
			respondError(w, http.StatusInternalServerError, "failed to apply progress")
			return
		}
		respondMessage(w, http.StatusOK, "acknowledged")

	default:
		// Unknown provider events are acknowledged so the provider does not
		// retry them forever.
		respondMessage(w, http.StatusOK, "Event acknowledged")
	}
}
