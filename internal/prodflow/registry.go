package prodflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnboundChannel = errors.New("channel not supported")
	ErrBadToken       = errors.New("malformed interaction token")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidConfig  = errors.New("invalid workflow config")
)

type WorkflowType string

const (
	TypeShort WorkflowType = "short"
	TypeLong  WorkflowType = "long"
)

type RecordNames struct {
	Overall string `json:"overall"`
	Short   string `json:"short"`
	Long    string `json:"long"`
}

func (n RecordNames) ForType(t WorkflowType) string {
	switch t {
	case TypeShort:
		return n.Short
	case TypeLong:
		return n.Long
	default:
		return ""
	}
}

type WorkflowConfig struct {
	Category     string                  `json:"category"`
	StoreID      string                  `json:"storeId"`
	RecordNames  RecordNames             `json:"recordNames"`
	Channels     map[WorkflowType]string `json:"channels"`
	HasAggregate bool                    `json:"hasAggregate"`
	DriveFolders map[WorkflowType]string `json:"driveFolders,omitempty"`
}

type Binding struct {
	Category string
	Type     WorkflowType
	Config   WorkflowConfig
}

type Registry struct {
	mu        sync.RWMutex
	configs   []WorkflowConfig
	byChannel map[string]Binding
	byStore   map[string]WorkflowConfig
}

func NewRegistry(configs []WorkflowConfig) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(configs); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Replace(configs []WorkflowConfig) error {
	byChannel := map[string]Binding{}
	byStore := map[string]WorkflowConfig{}
	seenCategories := map[string]bool{}
	for _, cfg := range configs {
		if strings.TrimSpace(cfg.Category) == "" || strings.TrimSpace(cfg.StoreID) == "" {
			return fmt.Errorf("%w: category and storeId are required", ErrInvalidConfig)
		}
		if seenCategories[cfg.Category] {
			return fmt.Errorf("%w: duplicate category %s", ErrInvalidConfig, cfg.Category)
		}
		seenCategories[cfg.Category] = true
		if cfg.HasAggregate && strings.TrimSpace(cfg.RecordNames.Overall) == "" {
			return fmt.Errorf("%w: category %s declares an aggregate record without a name", ErrInvalidConfig, cfg.Category)
		}
		for workflowType, channelID := range cfg.Channels {
			if workflowType != TypeShort && workflowType != TypeLong {
				return fmt.Errorf("%w: category %s binds unknown type %s", ErrInvalidConfig, cfg.Category, workflowType)
			}
			channelID = strings.TrimSpace(channelID)
			if channelID == "" {
				continue
			}
			if existing, ok := byChannel[channelID]; ok {
				return fmt.Errorf("%w: channel %s bound by both %s and %s", ErrInvalidConfig, channelID, existing.Category, cfg.Category)
			}
			if cfg.RecordNames.ForType(workflowType) == "" {
				return fmt.Errorf("%w: category %s has no %s record name", ErrInvalidConfig, cfg.Category, workflowType)
			}
			byChannel[channelID] = Binding{Category: cfg.Category, Type: workflowType, Config: cfg}
		}
		byStore[cfg.StoreID] = cfg
	}

	r.mu.Lock()
	r.configs = append([]WorkflowConfig(nil), configs...)
	r.byChannel = byChannel
	r.byStore = byStore
	r.mu.Unlock()
	return nil
}

func (r *Registry) Resolve(channelID string) (Binding, bool) {
	if r == nil {
		return Binding{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	binding, ok := r.byChannel[strings.TrimSpace(channelID)]
	return binding, ok
}

// ResolveStore re-derives the config for a decoded interaction token, which
// carries the store coordinate but not the aggregate flag or record names.
func (r *Registry) ResolveStore(storeID string) (WorkflowConfig, bool) {
	if r == nil {
		return WorkflowConfig{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byStore[strings.TrimSpace(storeID)]
	return cfg, ok
}

func (r *Registry) Categories() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	categories := make([]string, 0, len(r.configs))
	for _, cfg := range r.configs {
		categories = append(categories, cfg.Category)
	}
	sort.Strings(categories)
	return categories
}

func (r *Registry) Configs() []WorkflowConfig {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]WorkflowConfig(nil), r.configs...)
}

const workflowConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["categories"],
  "properties": {
    "categories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["category", "storeId", "recordNames", "channels"],
        "properties": {
          "category": {"type": "string", "minLength": 1},
          "storeId": {"type": "string", "minLength": 1},
          "recordNames": {
            "type": "object",
            "required": ["short", "long"],
            "properties": {
              "overall": {"type": "string"},
              "short": {"type": "string", "minLength": 1},
              "long": {"type": "string", "minLength": 1}
            }
          },
          "channels": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          },
          "hasAggregate": {"type": "boolean"},
          "driveFolders": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          }
        }
      }
    }
  }
}`

type workflowConfigFile struct {
	Categories []WorkflowConfig `json:"categories"`
}

func LoadWorkflowConfigs(path string) ([]WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseWorkflowConfigs(data)
}

func ParseWorkflowConfigs(data []byte) ([]WorkflowConfig, error) {
	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowConfigSchema))
	if err != nil {
		return nil, err
	}
	if err := compiler.AddResource("workflows.schema.json", schemaDoc); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("workflows.schema.json")
	if err != nil {
		return nil, err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var parsed workflowConfigFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if len(parsed.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories defined", ErrInvalidConfig)
	}
	return parsed.Categories, nil
}

// WatchConfig reloads the registry whenever the config file changes. A reload
// that fails to parse or validate leaves the previous table live.
func WatchConfig(ctx context.Context, path string, registry *Registry, logf func(format string, v ...any)) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				configs, loadErr := LoadWorkflowConfigs(path)
				if loadErr != nil {
					logf("config reload rejected: %v", loadErr)
					continue
				}
				if replaceErr := registry.Replace(configs); replaceErr != nil {
					logf("config reload rejected: %v", replaceErr)
					continue
				}
				logf("workflow config reloaded from %s", path)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logf("config watcher error: %v", watchErr)
			}
		}
	}()
	return nil
}
