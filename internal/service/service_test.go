package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/cache"
	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/repository"
	"github.com/spec-kit/protocol-service/internal/repository/memory"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

const testBcryptCost = 4

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	t          *testing.T
	clock      *fakeClock
	repos      repository.Repositories
	dispatcher events.Dispatcher
	cache      *cache.Memory

	tickets  *TicketService
	timeline *TimelineService
	taxonomy *TaxonomyService
	clients  *ClientService
	reports  *ReportService
	auth     *AuthService

	admin    domain.Actor
	operator domain.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithRepos(t, nil)
}

// newTestEnvWithRepos lets a test swap individual repositories before the services are built.
func newTestEnvWithRepos(t *testing.T, override func(*repository.Repositories)) *testEnv {
	t.Helper()
	clock := newFakeClock()
	store := memory.NewStore()
	store.SetClock(clock.Now)
	repos := store.Repositories()
	if override != nil {
		override(&repos)
	}

	dispatcher := events.NewInMemoryDispatcher()
	deps := Dependencies{Repos: repos, Dispatcher: dispatcher, Logger: zap.NewNop(), Clock: clock.Now}
	dashboardCache := cache.NewMemory()

	env := &testEnv{
		t:          t,
		clock:      clock,
		repos:      repos,
		dispatcher: dispatcher,
		cache:      dashboardCache,
		tickets:    NewTicketService(deps),
		taxonomy:   NewTaxonomyService(deps),
		clients:    NewClientService(deps, testBcryptCost),
		reports:    NewReportService(deps, ReportOptions{Cache: dashboardCache, DashboardTTL: time.Minute}),
		auth: NewAuthService(config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            testBcryptCost,
		}, deps),
	}
	env.timeline = env.tickets.Timeline()
	env.reports.RegisterHandlers(dispatcher)

	ctx := context.Background()
	admin, _, err := env.auth.EnsureUser(ctx, UserInput{Username: "admin", Password: "admin-password", Superuser: true})
	require.NoError(t, err)
	operator, _, err := env.auth.EnsureUser(ctx, UserInput{Username: "U", Password: "operator-password"})
	require.NoError(t, err)
	env.admin = domain.ActorOf(admin)
	env.operator = domain.ActorOf(operator)
	return env
}

func (e *testEnv) problemType(name string) *domain.ProblemType {
	e.t.Helper()
	pt, err := e.taxonomy.Create(context.Background(), e.admin, ProblemTypeInput{Name: name})
	require.NoError(e.t, err)
	return pt
}

func (e *testEnv) client(name, email string) *domain.Client {
	e.t.Helper()
	c, err := e.clients.Register(context.Background(), e.operator, ClientInput{Name: name, Email: email, Secret: "client-secret"})
	require.NoError(e.t, err)
	return c
}

func (e *testEnv) ticket(pt *domain.ProblemType, client *domain.Client) *domain.Ticket {
	e.t.Helper()
	ticket, err := e.tickets.Create(context.Background(), e.operator, TicketCreateInput{
		ClientIDs:     []string{client.ID},
		DeviceID:      "BUIC-001",
		ProblemTypeID: pt.ID,
		Description:   "no link",
	})
	require.NoError(e.t, err)
	return ticket
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, code, domainErr.Code, "error: %v", err)
	return domainErr
}
