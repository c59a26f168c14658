package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/marmos91/bucketcache/internal/logger"
	"github.com/marmos91/bucketcache/pkg/benchconfig"
)

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// InitLogger configures the global structured logger from cfg.Logging.
func InitLogger(cfg *benchconfig.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if benchconfig.DefaultConfigExists() {
		return benchconfig.GetDefaultConfigPath()
	}
	return "defaults"
}
