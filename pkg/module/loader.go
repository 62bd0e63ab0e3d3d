package module

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest looked up in module directories.
const ManifestFile = "module.yaml"

// Manifest describes a module on disk. File paths are relative to the
// manifest's directory.
type Manifest struct {
	Name          string `yaml:"name"`
	Schema        string `yaml:"schema"`
	Types         string `yaml:"types"`
	Queries       string `yaml:"queries"`
	Mutations     string `yaml:"mutations"`
	Subscriptions string `yaml:"subscriptions"`

	// Resolvers names a registered module whose resolvers the manifest
	// module uses.
	Resolvers string `yaml:"resolvers"`
}

// Validate checks that the manifest refers to at least one source.
//
// Returns:
//   - error: nil if valid, description of the problem otherwise
func (m *Manifest) Validate() error {
	if m.Schema == "" && m.Types == "" && m.Queries == "" && m.Mutations == "" &&
		m.Subscriptions == "" && m.Resolvers == "" {
		return fmt.Errorf("manifest %q names no schema files and no resolvers", m.Name)
	}
	for _, p := range []string{m.Schema, m.Types, m.Queries, m.Mutations, m.Subscriptions} {
		if filepath.IsAbs(p) {
			return fmt.Errorf("manifest %q: path %q must be relative", m.Name, p)
		}
	}
	return nil
}

// Loader resolves module references. Registered module names win over
// filesystem paths.
type Loader struct {
	registry *Registry
	env      Env

	mu    sync.Mutex
	files map[string]struct{}
}

// NewLoader creates a loader.
//
// Parameters:
//   - registry (*Registry): compiled-in modules, the global registry when nil
//   - env (Env): shared services passed to module factories
//
// Returns:
//   - *Loader: initialized loader
func NewLoader(registry *Registry, env Env) *Loader {
	if registry == nil {
		registry = Global()
	}
	return &Loader{
		registry: registry,
		env:      env,
		files:    make(map[string]struct{}),
	}
}

// Load resolves a module path. The path is looked up as a registered module
// name first. Otherwise it is resolved against baseFolder and may point to
// a directory holding module.yaml, a manifest file, or a .graphql file whose
// content becomes the module's annotated schema.
//
// Parameters:
//   - path (string): registered module name or filesystem path
//   - baseFolder (string): base for relative paths, the working directory when empty
//
// Returns:
//   - *Module: loaded and validated module
//   - error: nil on success, ErrNotFound or load error on failure
func (l *Loader) Load(path, baseFolder string) (*Module, error) {
	if l.registry.Has(path) {
		return l.registry.Build(path, l.env)
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(baseFolder, path)
	}
	resolved, err := filepath.Abs(resolved)
	if err != nil {
		return nil, fmt.Errorf("resolving module path %s: %w", path, err)
	}

	info, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("module %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", path, err)
	}

	var mod *Module
	switch {
	case info.IsDir():
		mod, err = l.loadManifest(filepath.Join(resolved, ManifestFile))
	case isManifest(resolved):
		mod, err = l.loadManifest(resolved)
	case isSchemaFile(resolved):
		mod, err = l.loadSchemaFile(resolved)
	default:
		err = fmt.Errorf("unsupported module file type %q", filepath.Ext(resolved))
	}
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", path, err)
	}

	if err := mod.Validate(); err != nil {
		return nil, err
	}

	modulesLoaded.WithLabelValues(mod.Name, "file").Inc()
	log.Debug().Str("module", mod.Name).Str("path", resolved).Msg("loaded module")

	return mod, nil
}

// Files returns every file read so far, sorted.
//
// Returns:
//   - []string: absolute file paths
func (l *Loader) Files() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	files := make([]string, 0, len(l.files))
	for f := range l.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func (l *Loader) loadManifest(path string) (*Module, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	l.track(path)

	var manifest Manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if manifest.Name == "" {
		manifest.Name = filepath.Base(dir)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	mod := &Module{Name: manifest.Name}
	sources := []struct {
		file string
		dst  *string
	}{
		{manifest.Schema, &mod.Schema},
		{manifest.Types, &mod.Types},
		{manifest.Queries, &mod.Queries},
		{manifest.Mutations, &mod.Mutations},
		{manifest.Subscriptions, &mod.Subscriptions},
	}
	for _, src := range sources {
		if src.file == "" {
			continue
		}
		content, err := l.readFile(filepath.Join(dir, src.file))
		if err != nil {
			return nil, err
		}
		*src.dst = content
	}

	if manifest.Resolvers != "" {
		provider, err := l.registry.Build(manifest.Resolvers, l.env)
		if err != nil {
			return nil, fmt.Errorf("resolvers: %w", err)
		}
		mod.Resolvers = provider.Resolvers
	}

	return mod, nil
}

func (l *Loader) loadSchemaFile(path string) (*Module, error) {
	content, err := l.readFile(path)
	if err != nil {
		return nil, err
	}
	return &Module{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Schema: content,
	}, nil
}

func (l *Loader) readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	l.track(path)
	return string(data), nil
}

func (l *Loader) track(path string) {
	l.mu.Lock()
	l.files[path] = struct{}{}
	l.mu.Unlock()
}

func isManifest(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func isSchemaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".graphql" || ext == ".graphqls" || ext == ".gql"
}
