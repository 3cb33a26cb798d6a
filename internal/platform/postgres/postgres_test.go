package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetting/internal/platform/config"
)

func TestDriverName(t *testing.T) {
	name, err := DriverName("pgx")
	require.NoError(t, err)
	assert.Equal(t, "pgx", name)

	name, err = DriverName("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", name)

	_, err = DriverName("sqlite")
	assert.Error(t, err)
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), config.Storage{Driver: "postgres"})
	assert.Error(t, err)
}
