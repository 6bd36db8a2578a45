package cachingproxy

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file. Every field is
// optional; CLI flags take precedence.
type FileConfig struct {
	MaxConns           int    `yaml:"max_conns"`
	ManagementAddr     string `yaml:"management_addr"`
	AccessLog          string `yaml:"access_log"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds"`
}

// LoadConfigFile reads and parses the YAML config at filename.
func LoadConfigFile(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
