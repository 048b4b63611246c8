package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"90s", 90 * time.Second},
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{" 3D ", 3 * 24 * time.Hour},
	}
	for _, tc := range tests {
		got, err := ParseDuration(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseDuration("soon")
	assert.Error(t, err)
}

func lookup(values map[string]string) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := values[key]; ok {
			return v
		}
		return def
	}
}

func TestBuildDefaults(t *testing.T) {
	cfg, err := build(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.StatusDebounce)
	assert.Equal(t, "3000", cfg.Port)
	assert.False(t, cfg.UseRedisCache)
	assert.NoError(t, validateConfig(cfg))
}

func TestBuildRejectsBadNumbers(t *testing.T) {
	_, err := build(lookup(map[string]string{"MAX_FILE_SIZE": "ten"}))
	assert.Error(t, err)

	_, err = build(lookup(map[string]string{"STATUS_DEBOUNCE": "later"}))
	assert.Error(t, err)
}

func TestValidateConfigProduction(t *testing.T) {
	cfg, err := build(lookup(map[string]string{
		"APP_ENV":     "production",
		"DB_PASSWORD": "secret",
		"JWT_SECRET":  "short",
	}))
	require.NoError(t, err)
	assert.Error(t, validateConfig(cfg))

	cfg.JWTSecret = "a-much-longer-secret-value"
	assert.NoError(t, validateConfig(cfg))

	cfg.DBPassword = " "
	assert.Error(t, validateConfig(cfg))
}

func TestStageTemplates(t *testing.T) {
	set, err := StageTemplates()
	require.NoError(t, err)
	assert.Equal(t, "Profile Assessment", set.Application[0])
	assert.Equal(t, "Visa Decision", set.Visa[len(set.Visa)-1])
}

func TestParseStageTemplatesValidation(t *testing.T) {
	_, err := ParseStageTemplates([]byte("application: [A]\n"))
	assert.Error(t, err)

	_, err = ParseStageTemplates([]byte("application: [A, A]\nvisa: [B]\n"))
	assert.Error(t, err)

	set, err := ParseStageTemplates([]byte("application: [A]\nvisa: [B, C]\n"))
	require.NoError(t, err)
	assert.Len(t, set.Visa, 2)
}
