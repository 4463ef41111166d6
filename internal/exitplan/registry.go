package exitplan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"blitz/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Rung is one profit trigger in a take-profit ladder. ExitFraction is the
// share of the remaining position sold when the trigger fires.
type Rung struct {
	TriggerProfit float64 `mapstructure:"trigger_profit" yaml:"trigger_profit" json:"trigger_profit"`
	ExitFraction  float64 `mapstructure:"exit_fraction" yaml:"exit_fraction" json:"exit_fraction"`
}

// Ladder is a named, ordered take-profit ladder template.
type Ladder struct {
	ID          string `mapstructure:"id" yaml:"id"`
	Description string `mapstructure:"description" yaml:"description"`
	Version     int    `mapstructure:"version" yaml:"version"`
	Rungs       []Rung `mapstructure:"rungs" yaml:"rungs"`
}

// FileConfig maps the exit_ladders document.
type FileConfig struct {
	ExitLadders map[string]Ladder `mapstructure:"exit_ladders" yaml:"exit_ladders"`
}

// Snapshot is the published ladder set.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Ladders  map[string]Ladder
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Registry loads ladder templates from a YAML file and republishes them on
// file change. A reload that fails validation keeps the previous snapshot.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// ladderSchema constrains each ladder document: rungs must carry a positive
// trigger and an exit fraction in (0,1].
const ladderSchema = `{
	"type": "object",
	"required": ["rungs"],
	"properties": {
		"rungs": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["trigger_profit", "exit_fraction"],
				"properties": {
					"trigger_profit": {"type": "number", "exclusiveMinimum": 0},
					"exit_fraction": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
				}
			}
		}
	}
}`

var compiledLadderSchema = mustCompileSchema(ladderSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ladder.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("ladder.json")
}

// NewRegistry reads the ladder file and watches it for updates.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ladder registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read ladder config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("ladder reload failed, keeping previous set: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Subscribe registers a listener invoked after every successful reload.
func (r *Registry) Subscribe(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Snapshot returns the current ladder set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Ladder returns the ladder with the given ID.
func (r *Registry) Ladder(id string) (Ladder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.snapshot.Ladders[strings.TrimSpace(id)]
	return l, ok
}

// IDs lists the registered ladder IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.snapshot.Ladders))
	for id := range r.snapshot.Ladders {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) reload() error {
	cfg, err := readLadderFile(r.path)
	if err != nil {
		return err
	}
	ladders := make(map[string]Ladder, len(cfg.ExitLadders))
	for name, l := range cfg.ExitLadders {
		norm, err := normalizeLadder(name, l)
		if err != nil {
			return fmt.Errorf("ladder %q invalid: %w", name, err)
		}
		ladders[norm.ID] = norm
	}
	if len(ladders) == 0 {
		return fmt.Errorf("ladder file %s defines no ladders", r.path)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Ladders:  ladders,
	}
	r.mu.Unlock()
	logger.Infof("ladder registry loaded %d ladders from %s", len(ladders), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("ladder listener")
			cb(snap)
		}(fn)
	}
}

// normalizeLadder fills defaults, validates against the schema and sorts
// rungs by ascending trigger so evaluation can scan in order.
func normalizeLadder(name string, l Ladder) (Ladder, error) {
	l.ID = strings.TrimSpace(l.ID)
	if l.ID == "" {
		l.ID = strings.TrimSpace(name)
	}
	if l.Version <= 0 {
		l.Version = 1
	}
	l.Description = strings.TrimSpace(l.Description)
	if err := validateLadder(l); err != nil {
		return Ladder{}, err
	}
	sort.Slice(l.Rungs, func(i, j int) bool {
		return l.Rungs[i].TriggerProfit < l.Rungs[j].TriggerProfit
	})
	return l, nil
}

func validateLadder(l Ladder) error {
	doc := map[string]any{"rungs": rungsAsAny(l.Rungs)}
	return compiledLadderSchema.Validate(doc)
}

// rungsAsAny renders rungs as the generic document shape the schema
// validator expects.
func rungsAsAny(rungs []Rung) []any {
	raw, err := json.Marshal(rungs)
	if err != nil {
		return nil
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Ladders:  make(map[string]Ladder, len(src.Ladders)),
	}
	for id, l := range src.Ladders {
		dst.Ladders[id] = l
	}
	return dst
}

func readLadderFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read ladder config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse ladder config failed: %w", err)
	}
	return cfg, nil
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

// DefaultLadder is the built-in ladder used when no registry is wired or the
// configured ladder ID is missing.
func DefaultLadder() Ladder {
	return Ladder{
		ID:      "standard",
		Version: 1,
		Rungs: []Rung{
			{TriggerProfit: 0.15, ExitFraction: 0.25},
			{TriggerProfit: 0.35, ExitFraction: 0.40},
			{TriggerProfit: 0.60, ExitFraction: 0.50},
			{TriggerProfit: 1.00, ExitFraction: 0.75},
		},
	}
}
