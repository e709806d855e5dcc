package taxrules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry holds one rule set per tax year. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	sets map[int]*RuleSet
}

func NewRegistry(sets ...*RuleSet) (*Registry, error) {
	r := &Registry{sets: make(map[int]*RuleSet, len(sets))}
	for _, set := range sets {
		if err := r.Register(set); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns the compiled-in tax years.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Rules2024(), Rules2025())
	if err != nil {
		panic(err)
	}
	return r
}

// Register replaces any rule set already held for the same year.
func (r *Registry) Register(set *RuleSet) error {
	if set == nil {
		return fmt.Errorf("nil rule set")
	}
	if err := set.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[set.Year] = set
	return nil
}

func (r *Registry) Lookup(year int) (*RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sets[year]
	if !ok {
		return nil, fmt.Errorf("%w: tax year %d", ErrMissingTaxTable, year)
	}
	return set, nil
}

func (r *Registry) Years() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	years := make([]int, 0, len(r.sets))
	for year := range r.sets {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

// LoadFile decodes a JSON rule set.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set RuleSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &set, nil
}

// LoadDir registers every *.json rule set in dir, in file name order.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		set, err := LoadFile(filepath.Join(dir, file))
		if err != nil {
			return 0, err
		}
		if err := r.Register(set); err != nil {
			return 0, fmt.Errorf("register %s: %w", file, err)
		}
	}
	return len(files), nil
}
