//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/domain/billing"
	"github.com/hospbill/billing/internal/domain/catalog"
	"github.com/hospbill/billing/internal/domain/identity"
	"github.com/hospbill/billing/internal/domain/patient"
	"github.com/hospbill/billing/internal/domain/pricing"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/internal/platform/db"
	"github.com/hospbill/billing/internal/platform/lock"
	"github.com/hospbill/billing/internal/platform/reporting"
)

// adminURL points at a disposable Postgres. Each test gets its own schema.
var adminURL string

func TestMain(m *testing.M) {
	adminURL = os.Getenv("TEST_DATABASE_URL")
	if adminURL == "" {
		fmt.Fprintln(os.Stderr, "TEST_DATABASE_URL not set, skipping integration tests")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// env is a fully wired set of services against one freshly migrated schema.
type env struct {
	pool     *pgxpool.Pool
	catalog  *catalog.Store
	patients *patient.Service
	billing  *billing.Service
	pricing  *pricing.Service
	identity *identity.Service
	reports  *reporting.Service
	applier  *pricing.Applier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	schema := "it_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	admin, err := pgxpool.New(ctx, adminURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(adminURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	cfg.MaxConns = 20
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("schema pool: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		if _, err := admin.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: drop schema %s: %v", schema, err)
		}
		admin.Close()
	})

	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tx := db.NewTransactor(pool)
	rec := audit.NewRecorder(audit.NewRepoPG(pool))
	store := catalog.NewStore(catalog.NewServiceRepoPG(pool), catalog.NewPharmacyRepoPG(pool),
		catalog.NewPriceHistoryRepoPG(pool), tx, rec)
	patients := patient.NewService(patient.NewRepoPG(pool), tx, rec)
	pricingSvc := pricing.NewService(pricing.NewRepoPG(pool), store, tx, rec)
	jwt := auth.JWTConfig{Issuer: "it", SigningKey: []byte("integration-signing-key-0123456789"), TTL: time.Hour}

	return &env{
		pool:     pool,
		catalog:  store,
		patients: patients,
		billing: billing.NewService(billing.NewAccountRepoPG(pool), billing.NewInvoiceRepoPG(pool),
			billing.NewPaymentRepoPG(pool), store, patients, tx, rec),
		pricing:  pricingSvc,
		identity: identity.NewService(identity.NewUserRepo(pool), tx, rec, jwt),
		reports:  reporting.NewService(reporting.NewStorePG(pool)),
		applier:  pricing.NewApplier(pricingSvc, lock.NewLocalLocker(), time.Hour, zerolog.Nop()),
	}
}

var clerk = auth.Principal{UserID: uuid.New(), Email: "clerk@hospital.test", Role: auth.RoleAccountant}
