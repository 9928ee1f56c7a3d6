package types

// RunConfig is the content of a run configuration file
type RunConfig struct {
	MaxParallelRuns  int          `yaml:"max_parallel_runs" toml:"max_parallel_runs"`
	RetryFailedTests bool         `yaml:"retry_failed_tests" toml:"retry_failed_tests"`
	Tests            []TestConfig `yaml:"tests" toml:"tests"`
}

// TestConfig represents a configured test. A test with categories is split
// into one work item per category.
type TestConfig struct {
	Name       string   `yaml:"name" toml:"name"`
	Fixture    string   `yaml:"fixture,omitempty" toml:"fixture"`
	Categories []string `yaml:"categories,omitempty" toml:"categories"`
}
