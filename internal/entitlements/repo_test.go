package entitlements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasiviral/kasiviral-backend/pkg/enums"
)

func TestRepositoryGetMissingReturnsNil(t *testing.T) {
	repo := NewRepository(setupEntitlementsDB(t))

	row, err := repo.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRepositoryCreateInactiveInsertOrFetch(t *testing.T) {
	db := setupEntitlementsDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, created, err := repo.CreateInactive(ctx, CreateInactiveParams{
		SubjectID: "u1",
		Plan:      enums.PlanMonthly,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
		Now:       now,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, enums.EntitlementStatusInactive, first.Status)
	assert.Equal(t, enums.PlanMonthly, first.Plan)

	second, created, err := repo.CreateInactive(ctx, CreateInactiveParams{
		SubjectID: "u1",
		Plan:      enums.PlanAnnual,
		ExpiresAt: now.Add(90 * 24 * time.Hour),
		Now:       now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.PlanMonthly, second.Plan, "existing row must be returned unchanged")
	assert.True(t, first.ExpiresAt.Equal(second.ExpiresAt))
	assert.Equal(t, int64(1), countEntitlements(t, db, "u1"))
}

func TestRepositoryUpsertActiveInsertsThenOverwrites(t *testing.T) {
	db := setupEntitlementsDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	inserted, err := repo.UpsertActive(ctx, UpsertActiveParams{
		SubjectID: "u2",
		Plan:      enums.PlanMonthly,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
		Refs: BillingRefs{
			CustomerRef:     strPtr("cus_1"),
			SubscriptionRef: strPtr("sub_1"),
			PriceRef:        strPtr(""),
		},
		Now: now,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EntitlementStatusActive, inserted.Status)
	require.NotNil(t, inserted.ExternalBillingCustomerRef)
	assert.Equal(t, "cus_1", *inserted.ExternalBillingCustomerRef)
	assert.Nil(t, inserted.ExternalPriceRef, "empty refs are stored as absent")

	renewed, err := repo.UpsertActive(ctx, UpsertActiveParams{
		SubjectID: "u2",
		Plan:      enums.PlanAnnual,
		ExpiresAt: now.Add(365 * 24 * time.Hour),
		Refs:      BillingRefs{PriceRef: strPtr("price_year")},
		Now:       now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, renewed.ID)
	assert.Equal(t, enums.PlanAnnual, renewed.Plan)
	assert.True(t, renewed.ExpiresAt.Equal(now.Add(365*24*time.Hour)))
	require.NotNil(t, renewed.ExternalBillingCustomerRef)
	assert.Equal(t, "cus_1", *renewed.ExternalBillingCustomerRef, "absent refs keep the stored value")
	require.NotNil(t, renewed.ExternalPriceRef)
	assert.Equal(t, "price_year", *renewed.ExternalPriceRef)
	assert.Equal(t, int64(1), countEntitlements(t, db, "u2"))
}

func TestRepositoryUpsertActiveReactivatesInactive(t *testing.T) {
	repo := NewRepository(setupEntitlementsDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := repo.CreateInactive(ctx, CreateInactiveParams{SubjectID: "u3", Plan: enums.PlanMonthly, ExpiresAt: now, Now: now})
	require.NoError(t, err)
	_, err = repo.MarkCanceled(ctx, "u3", now)
	require.NoError(t, err)

	row, err := repo.UpsertActive(ctx, UpsertActiveParams{SubjectID: "u3", Plan: enums.PlanMonthly, ExpiresAt: now.Add(time.Hour), Now: now})
	require.NoError(t, err)
	assert.Equal(t, enums.EntitlementStatusActive, row.Status)
}

func TestRepositoryMarkCanceled(t *testing.T) {
	repo := NewRepository(setupEntitlementsDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	missing, err := repo.MarkCanceled(ctx, "ghost", now)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.UpsertActive(ctx, UpsertActiveParams{SubjectID: "u4", Plan: enums.PlanMonthly, ExpiresAt: now.Add(time.Hour), Now: now})
	require.NoError(t, err)

	row, err := repo.MarkCanceled(ctx, "u4", now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, enums.EntitlementStatusCanceled, row.Status)
	assert.True(t, row.ExpiresAt.Equal(now.Add(time.Hour)), "cancel keeps the stored expiry")
}

func TestRepositoryCountByStatus(t *testing.T) {
	repo := NewRepository(setupEntitlementsDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.UpsertActive(ctx, UpsertActiveParams{SubjectID: "live", Plan: enums.PlanMonthly, ExpiresAt: now.Add(time.Hour), Now: now})
	require.NoError(t, err)
	_, err = repo.UpsertActive(ctx, UpsertActiveParams{SubjectID: "lapsed", Plan: enums.PlanAnnual, ExpiresAt: now.Add(-time.Hour), Now: now.Add(-2 * time.Hour)})
	require.NoError(t, err)
	_, _, err = repo.CreateInactive(ctx, CreateInactiveParams{SubjectID: "fresh", Plan: enums.PlanMonthly, ExpiresAt: now.Add(time.Hour), Now: now})
	require.NoError(t, err)

	counts, err := repo.CountByStatus(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.ByStatus[enums.EntitlementStatusActive])
	assert.Equal(t, int64(1), counts.ByStatus[enums.EntitlementStatusInactive])
	assert.Equal(t, int64(0), counts.ByStatus[enums.EntitlementStatusCanceled])
	assert.Equal(t, int64(1), counts.ActiveLapsed)
}
