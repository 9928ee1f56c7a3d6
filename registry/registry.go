package registry

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// Registry turns a run configuration file into the work items of a run
type Registry struct {
	config Config
	run    *types.RunConfig
	items  []types.WorkItem
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log           log.Logger
	RunConfigFile string
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.RunConfigFile == "" {
		return nil, fmt.Errorf("run config file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.load(cfg.RunConfigFile); err != nil {
		return nil, fmt.Errorf("failed to load run config: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "tests", len(r.run.Tests), "items", len(r.items))

	return r, nil
}

func (r *Registry) load(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := Load(path)
	if err != nil {
		return err
	}

	items, err := BuildWorkItems(run)
	if err != nil {
		return fmt.Errorf("failed to build work items: %w", err)
	}

	r.run = run
	r.items = items
	return nil
}

// WorkItems returns the work items in configuration order
func (r *Registry) WorkItems() []types.WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items
}

// MaxParallelRuns returns the configured parallelism, -1 for unbounded
func (r *Registry) MaxParallelRuns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run.MaxParallelRuns
}

// RetryFailedTests reports whether failed cases should be rerun
func (r *Registry) RetryFailedTests() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run.RetryFailedTests
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// Load reads a run configuration file. The format is chosen by extension:
// .yaml/.yml, .toml or the legacy .xml layout.
func Load(path string) (*types.RunConfig, error) {
	log.Debug("Reading run config file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg *types.RunConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg = &types.RunConfig{}
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		cfg = &types.RunConfig{}
		_, err = toml.Decode(string(data), cfg)
	case ".xml":
		cfg, err = decodeXML(data)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return cfg, nil
}

func validate(cfg *types.RunConfig) error {
	if cfg.MaxParallelRuns < -1 {
		return fmt.Errorf("max parallel runs must be -1 (unbounded) or non-negative, got %d", cfg.MaxParallelRuns)
	}
	if len(cfg.Tests) == 0 {
		return fmt.Errorf("no tests configured")
	}
	for i, test := range cfg.Tests {
		if strings.TrimSpace(test.Name) == "" {
			return fmt.Errorf("test %d has no name", i)
		}
		if strings.ContainsAny(test.Name, `/\`) {
			return fmt.Errorf("test name %q must not contain path separators", test.Name)
		}
	}
	return nil
}

// BuildWorkItems splits each configured test into one work item per category,
// or a single item when it has none. IDs start at 0 and basenames are unique.
func BuildWorkItems(cfg *types.RunConfig) ([]types.WorkItem, error) {
	var items []types.WorkItem
	// The rerun of failed cases writes its own report next to the items' reports
	taken := map[string]bool{types.RerunBasename: true}

	add := func(test types.TestConfig, category string) {
		basename := types.UniqueBasename(test.Name, taken)
		taken[basename] = true
		items = append(items, types.WorkItem{
			ID:       len(items),
			Name:     test.Name,
			Category: category,
			Fixture:  test.Fixture,
			Basename: basename,
		})
	}

	for _, test := range cfg.Tests {
		if len(test.Categories) == 0 {
			add(test, "")
			continue
		}
		for _, category := range test.Categories {
			if strings.TrimSpace(category) == "" {
				return nil, fmt.Errorf("test %q has an empty category", test.Name)
			}
			add(test, category)
		}
	}

	return items, nil
}

type xmlRunConfig struct {
	MaxParallelRuns  string    `xml:"MaxParallelRuns"`
	RetryFailedTests string    `xml:"RetryFailedTests"`
	Tests            []xmlTest `xml:"Tests>Test"`
	RootTests        []xmlTest `xml:"Test"`
}

type xmlTest struct {
	Name       string   `xml:"Name"`
	Fixture    string   `xml:"Fixture"`
	Categories []string `xml:"Categories>Category"`
}

func decodeXML(data []byte) (*types.RunConfig, error) {
	var raw xmlRunConfig
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, err
	}

	cfg := &types.RunConfig{}
	if v := strings.TrimSpace(raw.MaxParallelRuns); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MaxParallelRuns %q: %w", v, err)
		}
		cfg.MaxParallelRuns = n
	}
	if v := strings.TrimSpace(raw.RetryFailedTests); v != "" {
		retry, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RetryFailedTests %q: %w", v, err)
		}
		cfg.RetryFailedTests = retry
	}

	for _, test := range append(raw.Tests, raw.RootTests...) {
		tc := types.TestConfig{
			Name:    strings.TrimSpace(test.Name),
			Fixture: strings.TrimSpace(test.Fixture),
		}
		for _, category := range test.Categories {
			tc.Categories = append(tc.Categories, strings.TrimSpace(category))
		}
		cfg.Tests = append(cfg.Tests, tc)
	}
	return cfg, nil
}
