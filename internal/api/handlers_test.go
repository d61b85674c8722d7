package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/storeledger/kledo-sync/internal/eventbus"
	"github.com/storeledger/kledo-sync/internal/kledo"
	"github.com/storeledger/kledo-sync/internal/store"
)

type capturingBus struct {
	published []interface{}
}

func (b *capturingBus) Publish(ctx context.Context, topic string, event interface{}) error {
	b.published = append(b.published, event)
	return nil
}

func (b *capturingBus) Subscribe(ctx context.Context, topic string, handler eventbus.EventHandler) error {
	return nil
}

func (b *capturingBus) Close() error { return nil }

type handlerFixture struct {
	router   *gin.Engine
	settings *store.SettingsStore
	tokens   *store.TokenStore
	records  *store.SyncRecords
	bus      *capturingBus
}

func setupHandlers(t *testing.T, backend, settingsURL string) *handlerFixture {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to open test database")
	require.NoError(t, db.AutoMigrate(&store.Setting{}, &store.SyncRecord{}))

	logger := zap.NewNop()
	settings := store.NewSettingsStore(db, nil)
	tokens := store.NewTokenStore(db)
	records := store.NewSyncRecords(db)
	bus := &capturingBus{}

	if backend != "" {
		require.NoError(t, settings.SaveConnectionSettings(context.Background(), store.ConnectionSettings{
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			APIEndpoint:  backend,
			SyncEnabled:  true,
		}))
	}

	conn := kledo.NewConnection(settings, tokens, store.NewMemoryStateStore(), "https://sync.example.com/api/v1/oauth/callback", nil, logger)
	client := kledo.NewClient(conn, settings, nil, logger)
	handlers := NewHandlers(conn, client, settings, records, bus, settingsURL, logger)

	router := gin.New()
	router.GET("/connect", handlers.Connect)
	router.GET("/oauth/callback", handlers.OAuthCallback)
	router.POST("/connection/refresh", handlers.RefreshToken)
	router.POST("/connection/disconnect", handlers.Disconnect)
	router.GET("/connection/status", handlers.ConnectionStatus)
	router.GET("/lookup/accounts", handlers.Accounts)
	router.GET("/lookup/warehouses", handlers.Warehouses)
	router.POST("/webhooks/order-completed", handlers.OrderCompletedWebhook)
	router.GET("/settings/connection", handlers.GetConnectionSettings)
	router.PUT("/settings/connection", handlers.PutConnectionSettings)
	router.GET("/settings/invoice", handlers.GetInvoiceSettings)
	router.PUT("/settings/invoice", handlers.PutInvoiceSettings)
	router.GET("/sync/records", handlers.SyncRecords)

	return &handlerFixture{
		router:   router,
		settings: settings,
		tokens:   tokens,
		records:  records,
		bus:      bus,
	}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestConnectRedirectsToAuthorize(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")

	w := f.do(http.MethodGet, "/connect", "")
	require.Equal(t, http.StatusFound, w.Code)

	location := w.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://app.kledo.com/api/v1/oauth/authorize?"))
	assert.Contains(t, location, "client_id=client-1")
	assert.Contains(t, location, "response_type=code")
	assert.Contains(t, location, "state=")
}

func TestConnectNotConfigured(t *testing.T) {
	f := setupHandlers(t, "", "")

	w := f.do(http.MethodGet, "/connect", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOAuthCallbackInvalidStateRedirects(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "https://shop.example.com/settings")

	// Stores a state.
	w := f.do(http.MethodGet, "/connect", "")
	require.Equal(t, http.StatusFound, w.Code)

	w = f.do(http.MethodGet, "/oauth/callback?code=abc&state=forged", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example.com/settings?error=invalid_state", w.Header().Get("Location"))
}

func TestOAuthCallbackInvalidStateJSON(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")

	w := f.do(http.MethodGet, "/connect", "")
	require.Equal(t, http.StatusFound, w.Code)

	w = f.do(http.MethodGet, "/oauth/callback?code=abc&state=forged", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_state")
}

func TestOAuthCallbackSuccessRedirects(t *testing.T) {
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer token.Close()

	f := setupHandlers(t, token.URL, "https://shop.example.com/settings")

	w := f.do(http.MethodGet, "/connect", "")
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	state := location[strings.Index(location, "state=")+len("state="):]

	w = f.do(http.MethodGet, "/oauth/callback?code=abc&state="+state, "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example.com/settings?connected=1", w.Header().Get("Location"))

	ts, err := f.tokens.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", ts.AccessToken)
}

func TestConnectionStatus(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")

	w := f.do(http.MethodGet, "/connection/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["configured"])
	assert.Equal(t, false, status["connected"])

	require.NoError(t, f.tokens.Save(context.Background(), store.TokenSet{AccessToken: "access-1"}))

	w = f.do(http.MethodGet, "/connection/status", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, "Does not expire", status["token_expiry"])
}

func TestDisconnect(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")
	require.NoError(t, f.tokens.Save(context.Background(), store.TokenSet{AccessToken: "access-1"}))

	w := f.do(http.MethodPost, "/connection/disconnect", "")
	require.Equal(t, http.StatusOK, w.Code)

	ts, err := f.tokens.Tokens(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ts.AccessToken)
}

func TestRefreshWithoutToken(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")

	w := f.do(http.MethodPost, "/connection/refresh", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAccountsLookup(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/finance/accounts/suggestionPerPage", r.URL.Path)
		assert.Equal(t, "kas", r.URL.Query().Get("search"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"data":[
			{"name":"Kas","ref_code":"1-10001"}
		],"current_page":1,"per_page":10,"total":1}}`))
	}))
	defer backend.Close()

	f := setupHandlers(t, backend.URL, "")
	require.NoError(t, f.tokens.Save(context.Background(), store.TokenSet{AccessToken: "access-1"}))

	w := f.do(http.MethodGet, "/lookup/accounts?keyword=kas", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"items"`
		Page    int `json:"page"`
		PerPage int `json:"per_page"`
		Total   int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "1-10001 | Kas", body.Items[0].ID)
	assert.Equal(t, "1-10001 | Kas", body.Items[0].Text)
	assert.Equal(t, 1, body.Total)
}

func TestAccountsLookupNotConnected(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")

	w := f.do(http.MethodGet, "/lookup/accounts", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWarehousesLookup(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"data":[{"id":1,"name":"Main"}]}}`))
	}))
	defer backend.Close()

	f := setupHandlers(t, backend.URL, "")
	require.NoError(t, f.tokens.Save(context.Background(), store.TokenSet{AccessToken: "access-1"}))

	w := f.do(http.MethodGet, "/lookup/warehouses", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Main")
}

func TestOrderCompletedWebhookQueues(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")

	order := `{"id":1042,"billing_first_name":"Siti","created_at":"2026-02-01T09:30:00Z","completed_at":"2026-02-03T14:00:00Z"}`
	w := f.do(http.MethodPost, "/webhooks/order-completed", order)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.bus.published, 1)
}

func TestOrderCompletedWebhookRejectsMissingID(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")

	w := f.do(http.MethodPost, "/webhooks/order-completed", `{"billing_first_name":"Siti"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.bus.published)
}

func TestConnectionSettingsRedactsSecret(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")

	w := f.do(http.MethodGet, "/settings/connection", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "client-1", body["client_id"])
	assert.Equal(t, "********", body["client_secret"])
	assert.NotContains(t, w.Body.String(), "secret-1")
}

func TestPutConnectionSettingsValidation(t *testing.T) {
	f := setupHandlers(t, "", "")

	w := f.do(http.MethodPut, "/settings/connection", `{"client_id":"id","client_secret":"s","api_endpoint":"not a url"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(http.MethodPut, "/settings/connection", `{"client_id":"id","client_secret":"s","api_endpoint":"https://app.kledo.com/api/v1","sync_enabled":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPutInvoiceSettingsValidation(t *testing.T) {
	f := setupHandlers(t, "", "")

	w := f.do(http.MethodPut, "/settings/invoice", `{"payment_account":"1-10001 Kas"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(http.MethodPut, "/settings/invoice", `{"prefix":"WC","status":"paid","payment_account":"1-10001 | Kas"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/settings/invoice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1-10001 | Kas")
}

func TestSyncRecordsEndpoint(t *testing.T) {
	f := setupHandlers(t, "https://app.kledo.com/api/v1", "")
	ctx := context.Background()

	require.NoError(t, f.records.Create(ctx, &store.SyncRecord{
		OrderID:   1042,
		Status:    store.SyncStatusCreated,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, f.records.Create(ctx, &store.SyncRecord{
		OrderID:   1043,
		Status:    store.SyncStatusFailed,
		Error:     "connect timeout",
		CreatedAt: time.Now(),
	}))

	w := f.do(http.MethodGet, "/sync/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "created")
	assert.Contains(t, w.Body.String(), "failed")

	w = f.do(http.MethodGet, "/sync/records?order_id=1042", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1042")
	assert.NotContains(t, w.Body.String(), "1043")

	w = f.do(http.MethodGet, "/sync/records?order_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
