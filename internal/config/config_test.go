package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// neutralizeEnv blanks every override this package reads, so the host
// environment cannot leak into assertions.
func neutralizeEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_HOST", "SERVER_PORT",
		"DATABASE_DRIVER", "DATABASE_HOST", "DATABASE_PORT",
		"DATABASE_USER", "DATABASE_PASSWORD", "DATABASE_DBNAME",
		"JWT_SECRET", "DEPLOYER_ADDRESS", "TREASURY_ADDRESS",
		"RECONCILE_SCHEDULE",
	} {
		t.Setenv(key, "")
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DEPLOYER_ADDRESS", "deployer-1")
	t.Setenv("TREASURY_ADDRESS", "treasury-1")
}

func TestLoadConfigDefaults(t *testing.T) {
	neutralizeEnv(t)
	setRequiredEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "carbonscribe_marketplace", cfg.Database.DBName)
	assert.Equal(t, "carbonscribe-marketplace", cfg.Auth.Issuer)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "0 */5 * * * *", cfg.Reconcile.Schedule)
	assert.Equal(t, "deployer-1", cfg.Ledger.DeployerAddress)
	assert.Equal(t, "treasury-1", cfg.Ledger.TreasuryAddress)
}

func TestLoadConfigFromFile(t *testing.T) {
	neutralizeEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"host": "127.0.0.1", "port": 7777},
		"database": {"driver": "postgres", "host": "db.internal", "port": 5433, "user": "mkt", "password": "pw", "db_name": "mktdb", "ssl_mode": "require"},
		"auth": {"jwt_secret": "file-secret"},
		"ledger": {"deployer_address": "file-deployer", "treasury_address": "file-treasury"}
	}`), 0o600))

	// environment overrides beat the file
	t.Setenv("SERVER_PORT", "9999")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "file-deployer", cfg.Ledger.DeployerAddress)
	assert.Equal(t, "file-treasury", cfg.Ledger.TreasuryAddress)

	assert.Equal(t, "postgres://mkt:pw@db.internal:5433/mktdb?sslmode=require", cfg.Database.GetDatabaseURL())
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.GetServerAddr())
}

func TestLoadConfigMissingFileFallsBack(t *testing.T) {
	neutralizeEnv(t)
	setRequiredEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	neutralizeEnv(t)
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	neutralizeEnv(t)
	setRequiredEnv(t)

	t.Setenv("DATABASE_DRIVER", "oracle")
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "unknown database driver")

	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DEPLOYER_ADDRESS", "")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "deployer_address")

	t.Setenv("DEPLOYER_ADDRESS", "deployer-1")
	t.Setenv("TREASURY_ADDRESS", "")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "treasury_address")
}
