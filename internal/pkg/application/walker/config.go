package walker

import (
	"io"

	yaml "gopkg.in/yaml.v2"
)

type API struct {
	Name       string            `yaml:"name"`
	BaseURL    string            `yaml:"baseURL"`
	Entrypoint string            `yaml:"entrypoint"`
	Depth      int               `yaml:"depth"`
	Debug      bool              `yaml:"debug"`
	Headers    map[string]string `yaml:"headers"`
	Exclude    []string          `yaml:"exclude"`
}

// Root returns the uri the walk starts from.
func (a *API) Root() string {
	if a.Entrypoint == "" {
		return "/"
	}
	return a.Entrypoint
}

type Config struct {
	APIs []API `yaml:"apis"`
}

// API returns the api with the given name, or the first one if name is empty.
func (c *Config) API(name string) (*API, bool) {
	for i := range c.APIs {
		if name == "" || c.APIs[i].Name == name {
			return &c.APIs[i], true
		}
	}
	return nil, false
}

func LoadConfiguration(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)

	return cfg, err
}
