package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeledger/kledo-sync/internal/eventbus"
	"github.com/storeledger/kledo-sync/internal/invoice"
	"github.com/storeledger/kledo-sync/internal/kledo"
	"github.com/storeledger/kledo-sync/internal/store"
	syncctl "github.com/storeledger/kledo-sync/internal/sync"
)

// Handlers carries the API handlers and their dependencies.
type Handlers struct {
	conn        *kledo.Connection
	client      *kledo.Client
	settings    *store.SettingsStore
	records     *store.SyncRecords
	bus         eventbus.EventBus
	settingsURL string
	logger      *zap.Logger
}

// NewHandlers creates the handler set. settingsURL is where OAuth callbacks
// redirect the admin browser; when empty the callback answers with JSON.
func NewHandlers(conn *kledo.Connection, client *kledo.Client, settings *store.SettingsStore, records *store.SyncRecords, bus eventbus.EventBus, settingsURL string, logger *zap.Logger) *Handlers {
	return &Handlers{
		conn:        conn,
		client:      client,
		settings:    settings,
		records:     records,
		bus:         bus,
		settingsURL: settingsURL,
		logger:      logger,
	}
}

// Connect sends the admin browser to the Kledo authorization page.
func (h *Handlers) Connect(c *gin.Context) {
	url, err := h.conn.AuthorizationURL(c.Request.Context())
	if err != nil {
		if errors.Is(err, kledo.ErrNotConfigured) {
			c.JSON(http.StatusConflict, gin.H{"error": "oauth client is not configured"})
			return
		}
		h.logger.Error("Failed to build authorization URL", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build authorization URL"})
		return
	}

	c.Redirect(http.StatusFound, url)
}

// OAuthCallback consumes the provider redirect carrying code and state. The
// outcome travels back to the settings page as a query parameter, the
// one-redirect admin notice.
func (h *Handlers) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")

	err := h.conn.ExchangeCode(c.Request.Context(), code, state)
	switch {
	case err == nil:
		h.finishCallback(c, http.StatusOK, "connected", "")
	case errors.Is(err, kledo.ErrStateMismatch):
		h.finishCallback(c, http.StatusForbidden, "", "invalid_state")
	case errors.Is(err, kledo.ErrEmptyCode):
		h.finishCallback(c, http.StatusBadRequest, "", "missing_code")
	case errors.Is(err, kledo.ErrNotConfigured):
		h.finishCallback(c, http.StatusConflict, "", "not_configured")
	default:
		h.logger.Error("Authorization code exchange failed", zap.Error(err))
		h.finishCallback(c, http.StatusBadGateway, "", "exchange_failed")
	}
}

func (h *Handlers) finishCallback(c *gin.Context, status int, ok, errCode string) {
	if h.settingsURL != "" {
		target := h.settingsURL
		if errCode != "" {
			target += "?error=" + errCode
		} else {
			target += "?connected=1"
		}
		c.Redirect(http.StatusFound, target)
		return
	}

	if errCode != "" {
		c.JSON(status, gin.H{"error": errCode})
		return
	}
	c.JSON(status, gin.H{"status": ok})
}

// RefreshToken refreshes the access token on demand.
func (h *Handlers) RefreshToken(c *gin.Context) {
	ctx := c.Request.Context()
	err := h.conn.Refresh(ctx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":       "refreshed",
			"token_expiry": h.conn.ExpiryDescription(ctx),
		})
	case errors.Is(err, kledo.ErrNoRefreshToken):
		c.JSON(http.StatusConflict, gin.H{"error": "no refresh token stored"})
	case errors.Is(err, kledo.ErrNotConfigured):
		c.JSON(http.StatusConflict, gin.H{"error": "oauth client is not configured"})
	default:
		h.logger.Error("Token refresh failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "token refresh failed"})
	}
}

// Disconnect clears the stored token set.
func (h *Handlers) Disconnect(c *gin.Context) {
	if err := h.conn.Disconnect(c.Request.Context()); err != nil {
		h.logger.Error("Disconnect failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disconnect failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// ConnectionStatus reports the connection state for the admin UI.
func (h *Handlers) ConnectionStatus(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"configured":   h.conn.IsConfigured(ctx),
		"connected":    h.conn.IsConnected(ctx),
		"token_expiry": h.conn.ExpiryDescription(ctx),
	})
}

// lookupItem is the {id, text} shape the admin selectors consume.
type lookupItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Accounts serves the payment account selector: a paginated, searchable list
// of account suggestions rendered as "code | name".
func (h *Handlers) Accounts(c *gin.Context) {
	keyword := c.Query("keyword")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	result, err := h.client.AccountSuggestions(c.Request.Context(), keyword, page, 10)
	if err != nil {
		h.respondLookupError(c, err, "account lookup failed")
		return
	}
	if result == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "account lookup rejected"})
		return
	}

	items := make([]lookupItem, 0, len(result.Accounts))
	for _, account := range result.Accounts {
		value := account.Value()
		items = append(items, lookupItem{ID: value, Text: value})
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    items,
		"page":     result.CurrentPage,
		"per_page": result.PerPage,
		"total":    result.Total,
	})
}

// Warehouses serves the warehouse selector.
func (h *Handlers) Warehouses(c *gin.Context) {
	warehouses, err := h.client.Warehouses(c.Request.Context())
	if err != nil {
		h.respondLookupError(c, err, "warehouse lookup failed")
		return
	}
	if warehouses == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "warehouse lookup rejected"})
		return
	}

	items := make([]lookupItem, 0, len(warehouses))
	for _, warehouse := range warehouses {
		items = append(items, lookupItem{ID: warehouse.Name, Text: warehouse.Name})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handlers) respondLookupError(c *gin.Context, err error, msg string) {
	if errors.Is(err, kledo.ErrNotConnected) {
		c.JSON(http.StatusConflict, gin.H{"error": "not connected"})
		return
	}
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": msg})
}

// OrderCompletedWebhook accepts an order-completed payload from the store
// and queues it for sync. Always 202 once accepted: invoice sync failures
// must never bubble back into order processing.
func (h *Handlers) OrderCompletedWebhook(c *gin.Context) {
	var order invoice.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order payload"})
		return
	}
	if order.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order id is required"})
		return
	}

	event := syncctl.OrderCompletedEvent{
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Order:      order,
	}
	if err := h.bus.Publish(c.Request.Context(), eventbus.TopicOrderCompleted, event); err != nil {
		h.logger.Error("Failed to publish order event",
			zap.Int64("order_id", order.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue order"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "event_id": event.EventID})
}

// GetConnectionSettings returns the connection screen values. The client
// secret is redacted.
func (h *Handlers) GetConnectionSettings(c *gin.Context) {
	cs, err := h.settings.ConnectionSettings(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load connection settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}

	secret := ""
	if cs.ClientSecret != "" {
		secret = "********"
	}
	c.JSON(http.StatusOK, gin.H{
		"client_id":     cs.ClientID,
		"client_secret": secret,
		"api_endpoint":  cs.APIEndpoint,
		"sync_enabled":  cs.SyncEnabled,
	})
}

// PutConnectionSettings validates and saves the connection screen values.
func (h *Handlers) PutConnectionSettings(c *gin.Context) {
	var cs store.ConnectionSettings
	if err := c.ShouldBindJSON(&cs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}

	if err := h.settings.SaveConnectionSettings(c.Request.Context(), cs); err != nil {
		if errors.Is(err, store.ErrInvalidSetting) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to save connection settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// GetInvoiceSettings returns the invoice screen values.
func (h *Handlers) GetInvoiceSettings(c *gin.Context) {
	is, err := h.settings.InvoiceSettings(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load invoice settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, is)
}

// PutInvoiceSettings validates and saves the invoice screen values.
func (h *Handlers) PutInvoiceSettings(c *gin.Context) {
	var is store.InvoiceSettings
	if err := c.ShouldBindJSON(&is); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}

	if err := h.settings.SaveInvoiceSettings(c.Request.Context(), is); err != nil {
		if errors.Is(err, store.ErrInvalidSetting) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to save invoice settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// SyncRecords lists recent sync attempts, optionally filtered by order.
func (h *Handlers) SyncRecords(c *gin.Context) {
	ctx := c.Request.Context()

	if orderParam := c.Query("order_id"); orderParam != "" {
		orderID, err := strconv.ParseInt(orderParam, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order_id"})
			return
		}
		records, err := h.records.ListByOrder(ctx, orderID)
		if err != nil {
			h.logger.Error("Failed to list sync records", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sync records"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.records.List(ctx, limit)
	if err != nil {
		h.logger.Error("Failed to list sync records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sync records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// Health is the liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
