package utils

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/kuberlab/mlspec/pkg/schema"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	OutputYAML = "yaml"
	OutputJSON = "json"
)

// Configuration of the command line compiler.
type Configuration struct {
	MinVersion int    `json:"min_version"`
	MaxVersion int    `json:"max_version"`
	Output     string `json:"output"`
	LogLevel   string `json:"log_level"`
}

func (c Configuration) String() string {
	date, err := json.MarshalIndent(&c, "", "    ")
	if err != nil {
		return ""
	}
	return string(date)
}

func (c *Configuration) setDefaults() {
	if c.MinVersion == 0 {
		c.MinVersion = schema.MinVersion
	}
	if c.MaxVersion == 0 {
		c.MaxVersion = schema.MaxVersion
	}
	if len(c.Output) < 1 {
		c.Output = OutputYAML
	}
}

func (c *Configuration) Validate() error {
	if c.MinVersion > c.MaxVersion {
		return fmt.Errorf("Invalid version range [%d,%d]", c.MinVersion, c.MaxVersion)
	}
	if c.Output != OutputYAML && c.Output != OutputJSON {
		return fmt.Errorf("Unknown output format %q", c.Output)
	}
	return nil
}

// GetConfiguration reads a JSON configuration file. An empty path falls back
// to MLSPEC_CONFIG; without either the defaults are returned.
func GetConfiguration(path string) (*Configuration, error) {
	if len(path) < 1 {
		path = GetConfigPath()
	}
	conf := Configuration{}
	if len(path) > 0 {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("Failed read configuration: %v", err)
		}
		defer file.Close()
		dec := json.NewDecoder(file)
		if err := dec.Decode(&conf); err != nil {
			return nil, fmt.Errorf("Failed parse configuration: %v", err)
		}
	}
	conf.setDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
