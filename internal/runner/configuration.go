package runner

// Configuration is one scenario file: an ordered workflow run in a single session.
type Configuration struct {
	Version     string                  `yaml:"version"`
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Workflow    []ConfigurationWorkflow `yaml:"workflow"`
}

type ConfigurationWorkflow struct {
	Index       int                    `yaml:"index"`
	Action      string                 `yaml:"action"`
	Description string                 `yaml:"description"`
	Params      []string               `yaml:"params"`
	Result      string                 `yaml:"result"`
	Retry       int                    `yaml:"retry"`
	Failback    *ConfigurationWorkflow `yaml:"failback"`
}
