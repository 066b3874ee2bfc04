package users

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/database"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/gateway"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/services"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/utils"
)

// cardWebhookPayload is the processor's event envelope. Only the event type
// and the intent id are read; the claimed status inside the payload is never
// trusted (reconciliation re-fetches the authoritative status itself).
type cardWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// CardWebhookHandler handles card-processor events.
// POST /api/webhooks/card
//
// Always answers 2xx once the request is authentic, including for events we
// cannot act on: a non-2xx would make the processor redeliver forever, and the
// reconciliation engine is already idempotent against replays.
func CardWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	if secret := strings.TrimSpace(os.Getenv("CARD_WEBHOOK_SECRET")); secret != "" {
		if err := gateway.VerifyWebhookSignature(body, r.Header.Get("Gateway-Signature"), secret); err != nil {
			log.Printf("[WEBHOOK] rejected card event: %v", err)
			utils.WriteError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	var payload cardWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	eventType := strings.TrimSpace(payload.Type)
	intentID := strings.TrimSpace(payload.Data.Object.ID)

	writeReceived := func() {
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Received"})
	}

	switch eventType {
	case services.EventTypeIntentSucceeded, services.EventTypeIntentFailed:
	default:
		// Unhandled event types are acknowledged and dropped.
		writeReceived()
		return
	}

	client, err := gateway.NewClientFromEnv()
	if err != nil {
		log.Printf("[WEBHOOK] gateway config: %v", err)
		writeReceived()
		return
	}

	rec := services.NewReconciler(database.DB, client, services.DefaultNotifier)
	if _, err := rec.HandleCardEvent(r.Context(), eventType, intentID); err != nil {
		if errors.Is(err, services.ErrGatewayUnavailable) {
			// Transient: a non-2xx makes the processor redeliver, which is
			// exactly the retry we want here.
			log.Printf("[WEBHOOK] %s intent=%s deferred: %v", eventType, intentID, err)
			utils.WriteError(w, http.StatusServiceUnavailable, "Temporary failure, please retry")
			return
		}
		// Anything else (unknown intent, validation) is logged and swallowed.
		log.Printf("[WEBHOOK] %s intent=%s not applied: %v", eventType, intentID, err)
	}
	writeReceived()
}

// ExpirePendingHandler fails stale pending card investments that never
// produced a payment outcome. Protected by the scheduler's shared key.
// POST /api/cron/expire-pending
func ExpirePendingHandler(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-CRON-KEY")
	if key == "" || key != os.Getenv("CRON_KEY") {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	window := services.PendingExpiryWindowFromEnv()
	rec := services.NewReconciler(database.DB, nil, services.DefaultNotifier)
	expired, err := rec.ExpireStalePending(r.Context(), window)
	if err != nil {
		log.Printf("[CRON] expire-pending: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Cron executed", Data: map[string]interface{}{"expired": expired}})
}
