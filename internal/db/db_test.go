package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/medrag/internal/config"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://x", DSN(config.DatabaseConfig{DSN: "postgres://x", Host: "ignored"}))
	require.Equal(t,
		"host=h port=5432 user=u password=p dbname=d sslmode=disable",
		DSN(config.DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "d"}))
}

func TestDriverName(t *testing.T) {
	name, err := driverName("")
	require.NoError(t, err)
	require.Equal(t, "postgres", name)
	name, err = driverName("pgx")
	require.NoError(t, err)
	require.Equal(t, "pgx", name)
	_, err = driverName("mysql")
	require.Error(t, err)
}

func TestMigrationFilesSorted(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "001_init.sql", files[0])
}
