package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/guildmind/internal/profile"
	"github.com/hrygo/guildmind/store"
	"github.com/hrygo/guildmind/store/db"
)

// NewTestingStore opens a migrated store on the driver named by DRIVER
// (sqlite by default). The store is closed when the test ends.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	driver := getDriverFromEnv()
	profile := getTestingProfileForDriver(t, driver)

	dbDriver, err := db.NewDBDriver(profile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	ts := store.New(dbDriver, profile)
	if err := ts.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		ts.Close()
	})
	return ts
}

func getDriverFromEnv() string {
	driver := strings.ToLower(os.Getenv("DRIVER"))
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}

func getTestingProfileForDriver(t *testing.T, driver string) *profile.Profile {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: driver,
	}

	switch driver {
	case "sqlite":
		p.Data = t.TempDir()
		p.DSN = filepath.Join(p.Data, "guildmind_test.db")
	case "postgres":
		p.DSN = GetPostgresDSN(t)
	case "mongo":
		p.DSN = GetMongoURI(t)
		// One database per test keeps parallel tests isolated on a shared server.
		p.MongoDatabase = fmt.Sprintf("guildmind_test_%s", strings.ToLower(shortuuid.New()))
	default:
		t.Fatalf("unsupported test driver %q", driver)
	}
	return p
}
