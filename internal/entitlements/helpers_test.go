package entitlements

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

const entitlementsDDL = `
CREATE TABLE IF NOT EXISTS entitlements (
  id TEXT PRIMARY KEY,
  subject_id TEXT NOT NULL,
  plan TEXT NOT NULL DEFAULT 'monthly',
  status TEXT NOT NULL DEFAULT 'inactive',
  expires_at DATETIME NOT NULL,
  external_billing_customer_ref TEXT,
  external_billing_subscription_ref TEXT,
  external_price_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT entitlements_subject_id_key UNIQUE (subject_id)
);`

func setupEntitlementsDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(entitlementsDDL).Error)
	return db
}

func countEntitlements(t *testing.T, db *gorm.DB, subjectID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Table("entitlements").Where("subject_id = ?", subjectID).Count(&count).Error)
	return count
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "entitlements-test", Output: io.Discard})
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func strPtr(v string) *string {
	return &v
}
