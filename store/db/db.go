package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/guildmind/internal/profile"
	"github.com/hrygo/guildmind/store"
	"github.com/hrygo/guildmind/store/db/mongo"
	"github.com/hrygo/guildmind/store/db/postgres"
	"github.com/hrygo/guildmind/store/db/sqlite"
)

// ============================================================================
// DATABASE SUPPORT POLICY
// ============================================================================
// SQLite: default for development and single-process bots.
// PostgreSQL: production, multi-instance.
// MongoDB: document deployments; facts are embedded in the profile document.
//
// Every driver must keep the store.Driver write methods atomic.
// ============================================================================

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	case "mongo":
		driver, err = mongo.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: supported drivers are sqlite, postgres and mongo", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
