package rules

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/tariffwise/pkg/errors"
)

//go:embed data/*.yaml
var embedded embed.FS

type rawRules struct {
	Chapters      []ChapterRule        `yaml:"chapters"`
	ChapterNames  map[string]string    `yaml:"chapter_names"`
	Overrides     []FunctionalOverride `yaml:"overrides"`
	Ambiguous     []AmbiguousTerm      `yaml:"terms"`
	Terms         *TermDictionary      `yaml:"dictionary"`
	Rerank        *RerankRules         `yaml:"rerank"`
	Differentials *DifferentialRules   `yaml:"differentials"`
}

// Load parses the embedded rule tables into a validated RuleSet.
func Load() (*RuleSet, error) {
	entries, err := embedded.ReadDir("data")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRuleSetInvalid, "reading embedded rules")
	}
	rs := &RuleSet{}
	for _, e := range entries {
		data, err := embedded.ReadFile(filepath.Join("data", e.Name()))
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeRuleSetInvalid, e.Name())
		}
		if err := mergeYAML(rs, data, e.Name()); err != nil {
			return nil, err
		}
	}
	if err := rs.finalize(); err != nil {
		return nil, err
	}
	return rs, nil
}

// LoadFromDir parses every *.yaml file in dir into a RuleSet. Used for tuned
// on-disk overrides that replace the embedded tables wholesale.
func LoadFromDir(dir string) (*RuleSet, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRuleSetInvalid, dir)
	}
	if len(matches) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeRuleSetInvalid,
			fmt.Sprintf("no rule files found in %s", dir))
	}
	rs := &RuleSet{}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeRuleSetInvalid, path)
		}
		if err := mergeYAML(rs, data, filepath.Base(path)); err != nil {
			return nil, err
		}
	}
	if err := rs.finalize(); err != nil {
		return nil, err
	}
	return rs, nil
}

func mergeYAML(rs *RuleSet, data []byte, name string) error {
	var raw rawRules
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeRuleSetInvalid, name)
	}
	rs.Chapters = append(rs.Chapters, raw.Chapters...)
	rs.Overrides = append(rs.Overrides, raw.Overrides...)
	rs.Ambiguous = append(rs.Ambiguous, raw.Ambiguous...)
	if len(raw.ChapterNames) > 0 {
		if rs.ChapterNames == nil {
			rs.ChapterNames = make(map[string]string, len(raw.ChapterNames))
		}
		for k, v := range raw.ChapterNames {
			rs.ChapterNames[k] = v
		}
	}
	if raw.Terms != nil {
		rs.Terms = *raw.Terms
	}
	if raw.Rerank != nil {
		rs.Rerank = *raw.Rerank
	}
	if raw.Differentials != nil {
		rs.Differentials = *raw.Differentials
	}
	return nil
}

// Provider hands out the current RuleSet and supports atomic hot reload.
type Provider struct {
	current atomic.Pointer[RuleSet]
	logger  logging.Logger
	watcher *fsnotify.Watcher
}

// NewProvider wraps an already loaded RuleSet.
func NewProvider(rs *RuleSet, logger logging.Logger) *Provider {
	p := &Provider{logger: logger}
	p.current.Store(rs)
	return p
}

// Get returns the active RuleSet. Callers must not retain it across reloads
// longer than a single request.
func (p *Provider) Get() *RuleSet {
	return p.current.Load()
}

// Watch reloads the rule set whenever a YAML file in dir changes. A reload
// that fails validation is logged and discarded; the previous rules stay
// active.
func (p *Provider) Watch(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "rules watcher")
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, dir)
	}
	p.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				rs, err := LoadFromDir(dir)
				if err != nil {
					p.logger.Warn("rule reload rejected",
						logging.String("file", ev.Name), logging.Err(err))
					continue
				}
				p.current.Store(rs)
				p.logger.Info("rules reloaded",
					logging.String("dir", dir),
					logging.Int("chapters", len(rs.Chapters)))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				p.logger.Warn("rules watcher error", logging.Err(err))
			}
		}
	}()
	return nil
}

// Close stops the watcher if one was started.
func (p *Provider) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}
