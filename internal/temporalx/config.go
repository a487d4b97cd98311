package temporalx

import (
	"strings"

	"github.com/yungbote/coursegen/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	// AutoRegisterNamespace creates the namespace on first use. Meant for
	// local and self-hosted clusters only.
	AutoRegisterNamespace bool
}

// LoadConfig reads the TEMPORAL_* environment. The app config overrides it
// field by field when set.
func LoadConfig() Config {
	return Config{
		Address:               envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace:             envutil.String("TEMPORAL_NAMESPACE", "coursegen"),
		TaskQueue:             envutil.String("TEMPORAL_TASK_QUEUE", "coursegen"),
		ClientCertPath:        envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:         envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:          envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),
		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
	}
}

// Merge fills the empty fields of c from def.
func (c Config) Merge(def Config) Config {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = def.Address
	}
	if strings.TrimSpace(c.Namespace) == "" {
		c.Namespace = def.Namespace
	}
	if strings.TrimSpace(c.TaskQueue) == "" {
		c.TaskQueue = def.TaskQueue
	}
	if c.ClientCertPath == "" {
		c.ClientCertPath = def.ClientCertPath
	}
	if c.ClientKeyPath == "" {
		c.ClientKeyPath = def.ClientKeyPath
	}
	if c.ClientCAPath == "" {
		c.ClientCAPath = def.ClientCAPath
	}
	c.AutoRegisterNamespace = c.AutoRegisterNamespace || def.AutoRegisterNamespace
	return c
}

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
