package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	gosync "sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Direction narrows which way a path may sync.
type Direction string

const (
	DirectionBoth   Direction = "both"
	DirectionPush   Direction = "push"
	DirectionPull   Direction = "pull"
	DirectionIgnore Direction = "ignore"
)

func (d *Direction) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*d = DirectionBoth
		return nil
	}
	dir, err := ParseDirection(value.Value)
	if err != nil {
		return err
	}
	*d = dir
	return nil
}

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(DirectionBoth), "":
		return DirectionBoth, nil
	case string(DirectionPush), "push-only", "up":
		return DirectionPush, nil
	case string(DirectionPull), "pull-only", "down":
		return DirectionPull, nil
	case string(DirectionIgnore), "skip":
		return DirectionIgnore, nil
	default:
		return "", fmt.Errorf("invalid direction %q", raw)
	}
}

func (d Direction) AllowsPush() bool {
	return d == DirectionBoth || d == DirectionPush
}

func (d Direction) AllowsPull() bool {
	return d == DirectionBoth || d == DirectionPull
}

type Rule struct {
	Path      string    `yaml:"path"`
	Direction Direction `yaml:"direction"`
}

// Rules is the content of rules.yaml:
//
//	version: 1
//	default: both
//	rules:
//	  - path: "journal/**"
//	    direction: pull
type Rules struct {
	Version int       `yaml:"version"`
	Default Direction `yaml:"default"`
	Rules   []Rule    `yaml:"rules"`
}

func DefaultRules() *Rules {
	return &Rules{Version: 1, Default: DirectionBoth, Rules: []Rule{}}
}

func LoadRules(p string) (*Rules, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, err
	}

	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", p, err)
	}
	if rules.Version == 0 {
		rules.Version = 1
	}
	if rules.Default == "" {
		rules.Default = DirectionBoth
	}
	for _, r := range rules.Rules {
		if !doublestar.ValidatePattern(r.Path) {
			return nil, fmt.Errorf("invalid rule pattern %q", r.Path)
		}
	}
	return &rules, nil
}

// DirectionFor returns the direction of the last rule matching rel, or the
// default when none match.
func (r *Rules) DirectionFor(rel string) Direction {
	if r == nil {
		return DirectionBoth
	}

	dir := r.Default
	rel = strings.TrimPrefix(path.Clean(rel), "/")
	for _, rule := range r.Rules {
		if rule.Path == "" {
			continue
		}
		if ok, _ := doublestar.Match(rule.Path, rel); ok && rule.Direction != "" {
			dir = rule.Direction
		}
	}
	return dir
}

// RulesManager reloads rules.yaml when it changes on disk.
type RulesManager struct {
	path    string
	lastMod time.Time
	rules   *Rules
	mu      gosync.Mutex
}

func NewRulesManager(p string) *RulesManager {
	return &RulesManager{path: p}
}

func (m *RulesManager) Get() *Rules {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return DefaultRules()
	}

	info, err := os.Stat(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.rules = DefaultRules()
			m.lastMod = time.Time{}
			return m.rules
		}
		if m.rules != nil {
			slog.Warn("rules stat failed, using cached rules", "path", m.path, "error", err)
			return m.rules
		}
		m.rules = DefaultRules()
		return m.rules
	}

	if m.rules != nil && !info.ModTime().After(m.lastMod) {
		return m.rules
	}

	rules, err := LoadRules(m.path)
	if err != nil {
		if m.rules != nil {
			slog.Warn("rules load failed, using cached rules", "path", m.path, "error", err)
			return m.rules
		}
		slog.Warn("rules load failed, using default rules", "path", m.path, "error", err)
		m.rules = DefaultRules()
		return m.rules
	}

	m.rules = rules
	m.lastMod = info.ModTime()
	return m.rules
}
