package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/dtos"
	"github.com/justinndidit/eventPipeline/internal/notification"
	"github.com/justinndidit/eventPipeline/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

type NotificationHandler struct {
	logger      *zerolog.Logger
	redisClient *redis.Client
	svc         *notification.Service
}

func NewNotificationHandler(log *zerolog.Logger, rdb *redis.Client, svc *notification.Service) *NotificationHandler {
	return &NotificationHandler{
		logger:      log,
		redisClient: rdb,
		svc:         svc,
	}
}

// claimIdempotencyKey stores value under the X-Idempotency-Key header.
// Returns the previously stored value when the request is a replay, or ""
// when this request claimed the key (or no key was sent).
func (h *NotificationHandler) claimIdempotencyKey(r *http.Request, value string) (string, error) {
	key := r.Header.Get("X-Idempotency-Key")
	if key == "" || h.redisClient == nil {
		return "", nil
	}

	ok, err := h.redisClient.SetNX(r.Context(), "idempotency:"+key, value, idempotencyTTL).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	return h.redisClient.Get(r.Context(), "idempotency:"+key).Result()
}

func (h *NotificationHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var body dtos.SendNotificationRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Error().Err(err).Msg("Error decoding request body")
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	n, err := h.svc.Send(r.Context(), &body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to admit notification")
		writeError(w, err, "Failed to admit notification")
		return
	}

	if prior, err := h.claimIdempotencyKey(r, n.ID.String()); err != nil {
		h.logger.Warn().Err(err).Msg("Idempotency check failed")
	} else if prior != "" && prior != n.ID.String() {
		// A replayed key after admission: the earlier row wins; the new
		// one is cancelled before dispatch.
		if err := h.svc.CancelNotification(r.Context(), n.ID); err != nil {
			h.logger.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to cancel duplicate admission")
		}
		data := map[string]any{"id": prior, "correlation_id": correlationID}
		utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(data, "", "Duplicate request detected", nil))
		return
	}

	w.Header().Set("X-Correlation-ID", correlationID)
	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(n, "", "Notification admitted", nil))
}

func (h *NotificationHandler) HandleSendBatch(w http.ResponseWriter, r *http.Request) {
	var body dtos.SendBatchRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	status, err := h.svc.SendBatch(r.Context(), &body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to admit batch")
		writeError(w, err, "Failed to admit batch")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(status, "", "Batch admitted", nil))
}

func (h *NotificationHandler) HandleGetNotification(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err, "Invalid notification id")
		return
	}

	n, err := h.svc.GetNotification(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to get notification")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(n, "", "OK", nil))
}

func (h *NotificationHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err, "Invalid notification id")
		return
	}

	if err := h.svc.CancelNotification(r.Context(), id); err != nil {
		writeError(w, err, "Failed to cancel notification")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(nil, "", "Notification cancelled", nil))
}

func (h *NotificationHandler) HandleDeliveryReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err, "Invalid notification id")
		return
	}

	if err := h.svc.ConfirmDelivery(r.Context(), id); err != nil {
		writeError(w, err, "Failed to confirm delivery")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(nil, "", "Delivery confirmed", nil))
}

func (h *NotificationHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err, "Invalid notification id")
		return
	}

	if err := h.svc.RecordClick(r.Context(), id, r.URL.Query().Get("user_id")); err != nil {
		writeError(w, err, "Failed to record click")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(nil, "", "Click recorded", nil))
}

func (h *NotificationHandler) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body dtos.CreateTemplateRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	template, err := h.svc.CreateTemplate(r.Context(), &body)
	if err != nil {
		writeError(w, err, "Failed to create template")
		return
	}

	utils.WriteJson(w, http.StatusCreated, utils.WriteResponseSuccess(template, "", "Template created", nil))
}

func (h *NotificationHandler) HandleListInApp(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	items, total, err := h.svc.ListInApp(r.Context(), userID, unreadOnly, limit, offset)
	if err != nil {
		writeError(w, err, "Failed to list inbox")
		return
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	meta := &dtos.PaginationMeta{
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		HasNext:     offset+len(items) < total,
		HasPrevious: offset > 0,
	}
	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(items, "", "OK", meta))
}

func (h *NotificationHandler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.UnreadCount(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, err, "Failed to count unread")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(map[string]int64{"unread_count": count}, "", "OK", nil))
}

func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err, "Invalid notification id")
		return
	}
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		utils.WriteJson(w, http.StatusBadRequest, utils.WriteResponseFailed(nil, "user_id is required", "Invalid Request", nil))
		return
	}

	if err := h.svc.MarkInAppRead(r.Context(), userID, id); err != nil {
		writeError(w, err, "Failed to mark read")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(nil, "", "Marked read", nil))
}

func (h *NotificationHandler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.svc.MarkAllInAppRead(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, err, "Failed to mark all read")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(map[string]int64{"updated": updated}, "", "Marked all read", nil))
}

func (h *NotificationHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err, "Invalid notification id")
		return
	}
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		utils.WriteJson(w, http.StatusBadRequest, utils.WriteResponseFailed(nil, "user_id is required", "Invalid Request", nil))
		return
	}

	if err := h.svc.ArchiveInApp(r.Context(), userID, id); err != nil {
		writeError(w, err, "Failed to archive")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(nil, "", "Archived", nil))
}

func (h *NotificationHandler) HandlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	var body dtos.RegisterPushSubscriptionRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	sub, err := h.svc.RegisterPushSubscription(r.Context(), &body)
	if err != nil {
		writeError(w, err, "Failed to register push subscription")
		return
	}

	utils.WriteJson(w, http.StatusCreated, utils.WriteResponseSuccess(sub, "", "Subscription registered", nil))
}

func (h *NotificationHandler) HandlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	deviceToken := r.URL.Query().Get("device_token")

	if err := h.svc.UnsubscribePush(r.Context(), userID, deviceToken); err != nil {
		writeError(w, err, "Failed to unsubscribe")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(nil, "", "Unsubscribed", nil))
}

func (h *NotificationHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		utils.WriteJson(w, http.StatusBadRequest, utils.WriteResponseFailed(nil, "user_id is required", "Invalid Request", nil))
		return
	}

	stats, err := h.svc.GetStats(r.Context(), userID, r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err, "Failed to aggregate stats")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(stats, "", "OK", nil))
}
