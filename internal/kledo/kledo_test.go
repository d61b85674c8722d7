package kledo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/storeledger/kledo-sync/internal/store"
)

// testFixture bundles the stores a connection test needs.
type testFixture struct {
	db       *gorm.DB
	settings *store.SettingsStore
	tokens   *store.TokenStore
	states   *store.MemoryStateStore
}

func setupFixture(t *testing.T) *testFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to open test database")
	require.NoError(t, db.AutoMigrate(&store.Setting{}))

	return &testFixture{
		db:       db,
		settings: store.NewSettingsStore(db, nil),
		tokens:   store.NewTokenStore(db),
		states:   store.NewMemoryStateStore(),
	}
}

func (f *testFixture) configure(t *testing.T, endpoint string) {
	require.NoError(t, f.settings.SaveConnectionSettings(context.Background(), store.ConnectionSettings{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		APIEndpoint:  endpoint,
		SyncEnabled:  true,
	}))
}

func (f *testFixture) connect(t *testing.T, token string) {
	require.NoError(t, f.tokens.Save(context.Background(), store.TokenSet{
		AccessToken:  token,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))
}

func newTestConnection(f *testFixture, redirectURI string) *Connection {
	return NewConnection(f.settings, f.tokens, f.states, redirectURI, nil, zap.NewNop())
}
