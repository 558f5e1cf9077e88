package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SourceType names where the configuration document lives.
type SourceType string

const (
	SourceFile      SourceType = "file"
	SourceConsul    SourceType = "consul"
	SourceEtcd      SourceType = "etcd"
	SourceZookeeper SourceType = "zookeeper"
)

// ParseSourceType normalizes a CLI flag value.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "file":
		return SourceFile, nil
	case "consul":
		return SourceConsul, nil
	case "etcd":
		return SourceEtcd, nil
	case "zookeeper", "zk":
		return SourceZookeeper, nil
	default:
		return "", fmt.Errorf("invalid config source %q (want file, consul, etcd, or zookeeper)", s)
	}
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Source selects the backend; file is the default.
	Source SourceType

	// Path is the file path, or the key/node path for remote sources.
	Path string

	// Endpoints of the remote source. Defaults per source.
	Endpoints []string

	// Watch re-loads the document when the source changes.
	Watch bool

	// OnChange receives each successfully re-validated config. A nil
	// callback means changes are loaded but nobody is told.
	OnChange func(*Config) error
}

// Loader reads the configuration document from its source and runs it
// through the processing pipeline. One Loader watches one source.
type Loader struct {
	options LoaderOptions
	parser  *yaml.YAML

	mu       sync.Mutex
	zk       *ZookeeperProvider
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewLoader validates options and prepares a loader. Nothing is read
// until Load.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Source == "" {
		opts.Source = SourceFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Source {
		case SourceConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case SourceEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case SourceZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}
	return &Loader{
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads, expands, and validates the document, then starts the
// watcher when requested.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.loadOnce()
	if err != nil {
		return nil, err
	}
	if l.options.Watch {
		if l.options.Source == SourceFile {
			go l.watchFile()
		} else {
			go l.watchRemote()
		}
	}
	return cfg, nil
}

// loadOnce runs the full pipeline against a fresh koanf instance, so
// keys removed from the source do not linger from a prior load.
func (l *Loader) loadOnce() (*Config, error) {
	provider, parser, err := l.buildProvider()
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(provider, parser); err != nil {
		return nil, &ParseError{Source: fmt.Sprintf("%s %s", l.options.Source, l.options.Path), Err: err}
	}

	expanded, err := ExpandEnvVarsInData(k.Raw())
	if err != nil {
		return nil, err
	}
	raw, ok := expanded.(map[string]any)
	if !ok {
		return nil, &ParseError{
			Source: l.options.Path,
			Err:    fmt.Errorf("document is not a mapping"),
		}
	}

	if strictRequested(raw) {
		if err := ValidateStructure(raw); err != nil {
			return nil, err
		}
	}

	flat := koanf.New(".")
	if err := flat.Load(confmap.Provider(raw, "."), nil); err != nil {
		return nil, fmt.Errorf("reload expanded document: %w", err)
	}

	cfg := &Config{}
	if err := flat.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}

	return ProcessConfigPipeline(cfg)
}

// buildProvider constructs the koanf provider for the source. File and
// zookeeper hand back raw bytes and need the YAML parser; consul and
// etcd return parsed maps themselves.
func (l *Loader) buildProvider() (koanf.Provider, koanf.Parser, error) {
	switch l.options.Source {
	case SourceFile:
		return file.Provider(l.options.Path), l.parser, nil

	case SourceConsul:
		consulConfig := api.DefaultConfig()
		consulConfig.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{
			Cfg: consulConfig,
			Key: l.options.Path,
		}), nil, nil

	case SourceEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil, nil

	case SourceZookeeper:
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.zk == nil {
			zk, err := NewZookeeperProvider(l.options.Endpoints, l.options.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("zookeeper provider: %w", err)
			}
			l.zk = zk
		}
		return l.zk, l.parser, nil

	default:
		return nil, nil, fmt.Errorf("unsupported config source %q", l.options.Source)
	}
}

// reload re-runs the pipeline and hands the result to OnChange. A
// document that fails any stage is dropped; the caller keeps whatever
// config it already has.
func (l *Loader) reload() {
	cfg, err := l.loadOnce()
	if err != nil {
		slog.Warn("config reload rejected, keeping previous", "source", string(l.options.Source), "error", err)
		return
	}
	if l.options.OnChange == nil {
		return
	}
	if err := l.options.OnChange(cfg); err != nil {
		slog.Warn("config change callback failed", "error", err)
		return
	}
	slog.Info("configuration reloaded", "source", string(l.options.Source), "path", l.options.Path)
}

// watchFile follows the file with fsnotify. The parent directory is
// watched, not the file: editors and orchestrators replace config
// files by rename, which unwatches a direct file watch. Bursts of
// events for one save are absorbed by a short debounce.
func (l *Loader) watchFile() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watch unavailable", "error", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(l.options.Path)
	if err := watcher.Add(dir); err != nil {
		slog.Warn("config watch unavailable", "dir", dir, "error", err)
		return
	}

	target, err := filepath.Abs(l.options.Path)
	if err != nil {
		target = l.options.Path
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-l.stopChan:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || abs != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, l.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watch error", "error", err)
		}
	}
}

// Watcher is the change-notification surface remote koanf providers
// optionally implement.
type Watcher interface {
	Watch(cb func(event any, err error)) error
}

// watchRemote leans on the provider's own watch channel.
func (l *Loader) watchRemote() {
	provider, _, err := l.buildProvider()
	if err != nil {
		slog.Warn("config watch unavailable", "error", err)
		return
	}
	watcher, ok := provider.(Watcher)
	if !ok {
		slog.Warn("config source does not support watching", "source", string(l.options.Source))
		return
	}

	err = watcher.Watch(func(_ any, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}
		if err != nil {
			slog.Warn("config watch error", "source", string(l.options.Source), "error", err)
			return
		}
		l.reload()
	})
	if err != nil {
		slog.Warn("config watch stopped", "source", string(l.options.Source), "error", err)
	}
}

// Stop ends watching and releases remote connections. Safe to call
// more than once.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		l.mu.Lock()
		if l.zk != nil {
			l.zk.Close()
			l.zk = nil
		}
		l.mu.Unlock()
	})
}

// SetOnChange replaces the change callback; the runtime installs
// itself here after construction.
func (l *Loader) SetOnChange(cb func(*Config) error) {
	l.options.OnChange = cb
}

// LoadConfig is the one-shot path: build a loader, load, done. Used
// by the validate and schema commands where watching makes no sense.
func LoadConfig(opts LoaderOptions) (*Config, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if !opts.Watch {
			loader.Stop()
		}
	}()
	return loader.Load()
}

// LoadConfigWithLoader returns the loader alongside the config so the
// caller can stop watching later.
func LoadConfigWithLoader(opts LoaderOptions) (*Config, *Loader, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		loader.Stop()
		return nil, nil, err
	}
	return cfg, loader, nil
}
