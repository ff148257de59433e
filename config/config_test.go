package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearLedgerEnv(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "")
	t.Setenv("LEDGER_URI", "")
	t.Setenv("LEDGER_API_KEY", "")
	t.Setenv("LEDGER_PROJECT_ID", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearLedgerEnv(t)
	t.Setenv("LEDGER_DRIVER", "mongo")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "students", cfg.LedgerStudentsCollection)
	assert.Equal(t, "payments", cfg.LedgerPaymentsCollection)
	assert.Equal(t, "EGP", cfg.Currency)
	assert.Equal(t, time.Minute, cfg.ReferenceClockInterval)
	assert.False(t, cfg.LedgerConfigured())
	assert.ElementsMatch(t, []string{"LEDGER_URI", "LEDGER_API_KEY", "LEDGER_PROJECT_ID"}, cfg.MissingLedgerSettings())
}

func TestMissingLedgerSettings(t *testing.T) {
	t.Run("any absent value keeps setup mode", func(t *testing.T) {
		cfg := Config{LedgerDriver: LedgerDriverMongo, LedgerURI: "mongodb://localhost", LedgerAPIKey: "key"}
		assert.Equal(t, []string{"LEDGER_PROJECT_ID"}, cfg.MissingLedgerSettings())
		assert.False(t, cfg.LedgerConfigured())
	})

	t.Run("whitespace counts as absent", func(t *testing.T) {
		cfg := Config{LedgerDriver: LedgerDriverMongo, LedgerURI: "mongodb://localhost", LedgerAPIKey: "  ", LedgerProjectID: "fees"}
		assert.Equal(t, []string{"LEDGER_API_KEY"}, cfg.MissingLedgerSettings())
	})

	t.Run("fully configured", func(t *testing.T) {
		cfg := Config{LedgerDriver: LedgerDriverMongo, LedgerURI: "mongodb://localhost", LedgerAPIKey: "key", LedgerProjectID: "fees"}
		assert.Empty(t, cfg.MissingLedgerSettings())
		assert.True(t, cfg.LedgerConfigured())
	})

	t.Run("memory driver needs nothing", func(t *testing.T) {
		cfg := Config{LedgerDriver: LedgerDriverMemory}
		assert.True(t, cfg.LedgerConfigured())
	})
}

func TestLocation(t *testing.T) {
	loc, err := Config{TimeZone: "Africa/Cairo"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Cairo", loc.String())

	_, err = Config{TimeZone: "Not/AZone"}.Location()
	assert.Error(t, err)

	loc, err = Config{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestKafkaBrokerList(t *testing.T) {
	cfg := Config{KafkaBrokers: "a:9092, b:9092,,"}
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokerList())
}
