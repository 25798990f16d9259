package entitlements

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasiviral/kasiviral-backend/pkg/db/models"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
)

func newTestService(t *testing.T, store Store, clock *testClock) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Store:       store,
		Logger:      testLogger(),
		DefaultPlan: enums.PlanMonthly,
		GraceWindow: 30 * 24 * time.Hour,
		Now:         clock.Now,
	})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Store: &stubStore{}})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Store: &stubStore{}, Logger: testLogger(), DefaultPlan: "weekly"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestIsEntitledPredicateMatrix(t *testing.T) {
	clock := newTestClock()
	now := clock.Now()

	cases := []struct {
		status    enums.EntitlementStatus
		expiresAt time.Time
		want      bool
	}{
		{enums.EntitlementStatusActive, now.Add(time.Hour), true},
		{enums.EntitlementStatusActive, now.Add(-time.Hour), false},
		{enums.EntitlementStatusInactive, now.Add(time.Hour), false},
		{enums.EntitlementStatusInactive, now.Add(-time.Hour), false},
		{enums.EntitlementStatusCanceled, now.Add(time.Hour), false},
		{enums.EntitlementStatusCanceled, now.Add(-time.Hour), false},
	}

	for _, tc := range cases {
		name := string(tc.status) + "_future"
		if tc.expiresAt.Before(now) {
			name = string(tc.status) + "_past"
		}
		t.Run(name, func(t *testing.T) {
			store := &stubStore{row: &models.Entitlement{SubjectID: "u1", Status: tc.status, ExpiresAt: tc.expiresAt}}
			svc := newTestService(t, store, clock)

			got, err := svc.IsEntitled(context.Background(), "u1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want, svc.View(*store.row).IsActive)
			assert.Zero(t, store.writes, "predicate must not write")
		})
	}
}

func TestIsEntitledExpiryBoundaryIsExclusive(t *testing.T) {
	clock := newTestClock()
	row := models.Entitlement{Status: enums.EntitlementStatusActive, ExpiresAt: clock.Now()}
	assert.False(t, Entitled(row, clock.Now()))
	assert.True(t, Entitled(row, clock.Now().Add(-time.Nanosecond)))
}

func TestIsEntitledMissingRecordDoesNotProvision(t *testing.T) {
	db := setupEntitlementsDB(t)
	svc := newTestService(t, NewRepository(db), newTestClock())

	ok, err := svc.IsEntitled(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), countEntitlements(t, db, "nobody"))
}

func TestIsEntitledStoreFailureIsNotABoolean(t *testing.T) {
	store := &stubStore{err: errors.New("connection refused")}
	svc := newTestService(t, store, newTestClock())

	ok, err := svc.IsEntitled(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStoreUnavailable))
}

func TestIsEntitledRejectsBlankSubject(t *testing.T) {
	svc := newTestService(t, &stubStore{}, newTestClock())
	_, err := svc.IsEntitled(context.Background(), "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestExpiryIsLive(t *testing.T) {
	clock := newTestClock()
	svc := newTestService(t, NewRepository(setupEntitlementsDB(t)), clock)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "u1", ActivateInput{Plan: "monthly", ExpiresAt: clock.Now().Add(time.Second)})
	require.NoError(t, err)

	ok, err := svc.IsEntitled(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Second)

	ok, err = svc.IsEntitled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureDefaultSequentialIsIdempotent(t *testing.T) {
	clock := newTestClock()
	db := setupEntitlementsDB(t)
	svc := newTestService(t, NewRepository(db), clock)
	ctx := context.Background()

	first, created, err := svc.EnsureDefault(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, enums.EntitlementStatusInactive, first.Status)
	assert.Equal(t, enums.PlanMonthly, first.Plan)
	assert.WithinDuration(t, clock.Now().Add(30*24*time.Hour), first.ExpiresAt, time.Second)

	clock.Advance(time.Hour)
	second, created, err := svc.EnsureDefault(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.ExpiresAt.Equal(second.ExpiresAt))
	assert.Equal(t, int64(1), countEntitlements(t, db, "u1"))
}

func TestEnsureDefaultConcurrentIsIdempotent(t *testing.T) {
	db := setupEntitlementsDB(t)
	svc := newTestService(t, NewRepository(db), newTestClock())
	ctx := context.Background()

	const callers = 8
	results := make([]*models.Entitlement, callers)
	createdCount := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row, created, err := svc.EnsureDefault(ctx, "u1")
			assert.NoError(t, err)
			results[i] = row
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Equal(t, int64(1), countEntitlements(t, db, "u1"))
	for _, row := range results {
		require.NotNil(t, row)
		assert.Equal(t, results[0].ID, row.ID)
		assert.Equal(t, results[0].Status, row.Status)
		assert.True(t, results[0].ExpiresAt.Equal(row.ExpiresAt))
	}
}

func TestEnsureDefaultUniqueViolationFallsBackToExisting(t *testing.T) {
	existing := &models.Entitlement{SubjectID: "u1", Status: enums.EntitlementStatusInactive}
	store := &stubStore{
		row:       existing,
		createErr: errors.New(`ERROR: duplicate key value violates unique constraint "entitlements_subject_id_key" (SQLSTATE 23505)`),
	}
	svc := newTestService(t, store, newTestClock())

	row, created, err := svc.EnsureDefault(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, existing, row)
}

func TestEnsureDefaultStoreFailure(t *testing.T) {
	store := &stubStore{createErr: errors.New("i/o timeout")}
	svc := newTestService(t, store, newTestClock())

	_, _, err := svc.EnsureDefault(context.Background(), "u1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStoreUnavailable))
}

func TestActivateValidatesBeforeTouchingStore(t *testing.T) {
	clock := newTestClock()
	cases := []struct {
		name  string
		input ActivateInput
	}{
		{name: "unknown plan", input: ActivateInput{Plan: "weekly", ExpiresAt: clock.Now().Add(time.Hour)}},
		{name: "empty plan", input: ActivateInput{ExpiresAt: clock.Now().Add(time.Hour)}},
		{name: "past expiry", input: ActivateInput{Plan: "monthly", ExpiresAt: clock.Now().Add(-time.Hour)}},
		{name: "expiry equals now", input: ActivateInput{Plan: "annual", ExpiresAt: clock.Now()}},
		{name: "zero expiry", input: ActivateInput{Plan: "annual"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &stubStore{}
			svc := newTestService(t, store, clock)
			_, err := svc.Activate(context.Background(), "u1", tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			assert.Zero(t, store.calls)
		})
	}
}

func TestActivateConcurrentConverges(t *testing.T) {
	clock := newTestClock()
	db := setupEntitlementsDB(t)
	svc := newTestService(t, NewRepository(db), clock)
	ctx := context.Background()

	_, _, err := svc.EnsureDefault(ctx, "u1")
	require.NoError(t, err)

	inputs := []ActivateInput{
		{Plan: "monthly", ExpiresAt: clock.Now().Add(30 * 24 * time.Hour)},
		{Plan: "annual", ExpiresAt: clock.Now().Add(365 * 24 * time.Hour)},
	}
	var wg sync.WaitGroup
	for _, input := range inputs {
		wg.Add(1)
		go func(input ActivateInput) {
			defer wg.Done()
			_, err := svc.Activate(ctx, "u1", input)
			assert.NoError(t, err)
		}(input)
	}
	wg.Wait()

	assert.Equal(t, int64(1), countEntitlements(t, db, "u1"))

	final, err := NewRepository(db).Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, enums.EntitlementStatusActive, final.Status)

	matched := false
	for _, input := range inputs {
		if string(final.Plan) == input.Plan && final.ExpiresAt.Equal(input.ExpiresAt) {
			matched = true
		}
	}
	assert.True(t, matched, "final row must equal one input set, got plan=%s expiresAt=%s", final.Plan, final.ExpiresAt)

	ok, err := svc.IsEntitled(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancelTransitionsToNotEntitled(t *testing.T) {
	clock := newTestClock()
	svc := newTestService(t, NewRepository(setupEntitlementsDB(t)), clock)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "u1", ActivateInput{Plan: "annual", ExpiresAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	row, err := svc.Cancel(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, enums.EntitlementStatusCanceled, row.Status)

	ok, err := svc.IsEntitled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := svc.Cancel(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	reactivated, err := svc.Activate(ctx, "u1", ActivateInput{Plan: "monthly", ExpiresAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, enums.EntitlementStatusActive, reactivated.Status)
}

func TestEntitlementLifecycleScenario(t *testing.T) {
	clock := newTestClock()
	db := setupEntitlementsDB(t)
	svc := newTestService(t, NewRepository(db), clock)
	ctx := context.Background()

	row, created, err := svc.EnsureDefault(ctx, "u1")
	require.NoError(t, err)
	require.True(t, created)
	view := svc.View(*row)
	assert.Equal(t, enums.EntitlementStatusInactive, view.Status)
	assert.False(t, view.IsActive)
	assert.WithinDuration(t, clock.Now().Add(30*24*time.Hour), view.ExpiresAt, time.Second)
	assert.Equal(t, int64(1), countEntitlements(t, db, "u1"))

	row, err = svc.Activate(ctx, "u1", ActivateInput{Plan: "monthly", ExpiresAt: clock.Now().Add(30 * 24 * time.Hour)})
	require.NoError(t, err)
	view = svc.View(*row)
	assert.Equal(t, enums.EntitlementStatusActive, view.Status)
	assert.True(t, view.IsActive)

	clock.Advance(31 * 24 * time.Hour)

	ok, err := svc.IsEntitled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuditReportsCounts(t *testing.T) {
	clock := newTestClock()
	svc := newTestService(t, NewRepository(setupEntitlementsDB(t)), clock)
	ctx := context.Background()

	_, _, err := svc.EnsureDefault(ctx, "a")
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "b", ActivateInput{Plan: "monthly", ExpiresAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	counts, err := svc.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.ByStatus[enums.EntitlementStatusInactive])
	assert.Equal(t, int64(1), counts.ByStatus[enums.EntitlementStatusActive])
	assert.Equal(t, int64(1), counts.ActiveLapsed)
}

type stubStore struct {
	row       *models.Entitlement
	err       error
	createErr error
	calls     int
	writes    int
}

func (s *stubStore) Get(context.Context, string) (*models.Entitlement, error) {
	s.calls++
	return s.row, s.err
}

func (s *stubStore) UpsertActive(context.Context, UpsertActiveParams) (*models.Entitlement, error) {
	s.calls++
	s.writes++
	return s.row, s.err
}

func (s *stubStore) CreateInactive(context.Context, CreateInactiveParams) (*models.Entitlement, bool, error) {
	s.calls++
	s.writes++
	if s.createErr != nil {
		return nil, false, s.createErr
	}
	return s.row, s.row != nil, s.err
}

func (s *stubStore) MarkCanceled(context.Context, string, time.Time) (*models.Entitlement, error) {
	s.calls++
	s.writes++
	return s.row, s.err
}

func (s *stubStore) CountByStatus(context.Context, time.Time) (StatusCounts, error) {
	s.calls++
	return StatusCounts{}, s.err
}
