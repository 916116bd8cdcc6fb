package factory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcoot/mclink/internal/chat"
	"github.com/mcoot/mclink/internal/dependencies/mocks"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/storage/memory"
	"github.com/mcoot/mclink/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	MockChat   *chat.StaticClient
	Memory     *memory.Storage
	Registry   *prometheus.Registry
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp(guilds *guildconfig.Config) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	mockChat := chat.NewStaticClient()
	reg := prometheus.NewRegistry()

	app := newWithDependencies(store, guilds, mockChat, mockClock, mockRandom, metrics.New(reg), time.Second, testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		MockChat:   mockChat,
		Memory:     store,
		Registry:   reg,
	}
}
