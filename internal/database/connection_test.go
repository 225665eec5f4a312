package database

import (
	"testing"

	"github.com/smarttransit/ticket-bot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolerSafeDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "URL gets binary parameters",
			dsn:  "postgres://bot:secret@db:5432/tickets?sslmode=require",
			want: "postgres://bot:secret@db:5432/tickets?binary_parameters=yes&sslmode=require",
		},
		{
			name: "pgx-only keys removed",
			dsn:  "postgresql://bot@db/tickets?prefer_simple_protocol=true&sslmode=disable",
			want: "postgresql://bot@db/tickets?binary_parameters=yes&sslmode=disable",
		},
		{
			name: "explicit binary parameters kept",
			dsn:  "postgres://bot@db/tickets?binary_parameters=no",
			want: "postgres://bot@db/tickets?binary_parameters=no",
		},
		{
			name: "key value form",
			dsn:  "host=db dbname=tickets prefer_simple_protocol=true sslmode=disable",
			want: "host=db dbname=tickets sslmode=disable binary_parameters=yes",
		},
		{
			name: "quoted key value form",
			dsn:  "host=db password='two words'",
			want: "host=db password='two words' binary_parameters=yes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := poolerSafeDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "prefer_simple_protocol")
		})
	}
}

func TestNewConnectionRequiresURL(t *testing.T) {
	_, err := NewConnection(config.DatabaseConfig{})
	assert.Error(t, err)
}
