package qdrant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	valid := Config{URL: "http://qdrant:6333", Collection: "coursegen", VectorDim: 1536}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   ConfigErrorCode
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "lowercase dot", mutate: func(c *Config) { c.Distance = "dot" }},
		{name: "missing url", mutate: func(c *Config) { c.URL = " " }, want: ConfigErrorMissingURL},
		{name: "relative url", mutate: func(c *Config) { c.URL = "qdrant:6333" }, want: ConfigErrorInvalidURL},
		{name: "missing collection", mutate: func(c *Config) { c.Collection = " " }, want: ConfigErrorMissingCollection},
		{name: "missing dim", mutate: func(c *Config) { c.VectorDim = 0 }, want: ConfigErrorInvalidVectorDim},
		{name: "negative dim", mutate: func(c *Config) { c.VectorDim = -4 }, want: ConfigErrorInvalidVectorDim},
		{name: "euclid", mutate: func(c *Config) { c.Distance = "Euclid" }, want: ConfigErrorInvalidDistance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tc.want, cfgErr.Code)
			require.NotEmpty(t, cfgErr.Error())
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Distance: " COSINE "}.withDefaults()
	require.Equal(t, "Cosine", cfg.Distance)
	require.Equal(t, "cg", cfg.NamespacePrefix)
	require.Equal(t, 10*time.Second, cfg.Timeout)
}
