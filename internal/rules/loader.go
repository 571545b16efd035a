package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/facility-ops/riskwatch/pkg/benchmark"
	"github.com/facility-ops/riskwatch/pkg/scoring"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// catalogFile represents the YAML structure of a catalog file. A file may
// carry rules, standards or both.
type catalogFile struct {
	Rules     []scoring.RuleSpec   `yaml:"rules"`
	Standards []benchmark.Standard `yaml:"standards"`
}

// Load builds a registry from the built-in catalog plus every YAML file in
// dir. dir may be empty. Any invalid file fails the whole load and every
// problem found is reported.
func Load(dir string, logger *logrus.Logger) (*Registry, error) {
	reg := NewRegistry()

	if err := reg.LoadFS(builtinFS, "builtin"); err != nil {
		return nil, fmt.Errorf("loading built-in catalog: %w", err)
	}
	if dir != "" {
		if err := reg.LoadDir(dir); err != nil {
			return nil, err
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"rules":     len(reg.List()),
			"standards": len(reg.Standards()),
			"dir":       dir,
		}).Info("Rule catalog loaded")
	}
	return reg, nil
}

// LoadBuiltin returns a registry holding only the embedded catalog.
func LoadBuiltin() (*Registry, error) {
	return Load("", nil)
}

// LoadDir loads every .yaml and .yml file in dir.
func (r *Registry) LoadDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("reading rules directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("rules path %s is not a directory", dir)
	}
	return r.LoadFS(os.DirFS(dir), ".")
}

// LoadFS loads every YAML file directly under root in fsys.
func (r *Registry) LoadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("reading catalog directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result *multierror.Error
	for _, name := range names {
		data, err := fs.ReadFile(fsys, pathJoin(root, name))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := r.LoadBytes(name, data); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// LoadBytes decodes one catalog document and registers its contents. name is
// used in error messages only.
func (r *Registry) LoadBytes(name string, data []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%s: failed to parse YAML: %w", name, err)
	}

	var result *multierror.Error
	for _, spec := range file.Rules {
		rule, err := scoring.Compile(spec)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := r.Register(rule); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	for _, std := range file.Standards {
		if err := r.RegisterStandard(std); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// pathJoin joins slash-separated fs.FS paths.
func pathJoin(root, name string) string {
	if root == "" || root == "." {
		return name
	}
	return root + "/" + name
}
