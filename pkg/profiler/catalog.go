package profiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/costwise/costwise/pkg/allocation"
	"github.com/costwise/costwise/pkg/money"
)

var ErrCatalogInvalid = errors.New("rate catalog is invalid")
var ErrUnknownClass = errors.New("unknown building class")
var ErrUnknownSubclass = errors.New("unknown building subclass")
var ErrUnknownFactor = errors.New("unknown complexity factor")
var ErrUnknownOption = errors.New("unknown complexity option")

// neutralBp is a multiplier of exactly one in basis points.
const neutralBp = 10000

type Subclass struct {
	Label string `yaml:"label"`
	// BaseRate is the construction cost per square metre, in cents.
	BaseRate money.Cents `yaml:"base_rate"`
}

type Class struct {
	Label      string              `yaml:"label"`
	Subclasses map[string]Subclass `yaml:"subclasses"`
}

// StoreyBand scales the base rate by building height. Bands are declared in
// ascending order and the last band is open ended (max_storeys 0).
type StoreyBand struct {
	MaxStoreys   int `yaml:"max_storeys"`
	MultiplierBp int `yaml:"multiplier_bp"`
}

// Factor is one complexity dimension, for example ground conditions. Each
// option carries its rate multiplier in basis points.
type Factor struct {
	Label   string         `yaml:"label"`
	Options map[string]int `yaml:"options"`
}

// Section is a default cost-plan section with its split weight.
type Section struct {
	Key    string `yaml:"key"`
	Label  string `yaml:"label"`
	Weight int64  `yaml:"weight"`
}

// Catalog is the building rate catalog, loaded from YAML.
type Catalog struct {
	Classes     map[string]Class  `yaml:"classes"`
	StoreyBands []StoreyBand      `yaml:"storey_bands"`
	Complexity  map[string]Factor `yaml:"complexity"`
	Sections    []Section         `yaml:"sections"`
}

func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrCatalogInvalid, err)
	}
	if err := catalog.validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func (c Catalog) validate() error {
	if len(c.Classes) == 0 {
		return fmt.Errorf("%w: no classes defined", ErrCatalogInvalid)
	}
	for key, class := range c.Classes {
		if len(class.Subclasses) == 0 {
			return fmt.Errorf("%w: class %q has no subclasses", ErrCatalogInvalid, key)
		}
		for subKey, subclass := range class.Subclasses {
			if subclass.BaseRate <= 0 {
				return fmt.Errorf("%w: subclass %q of %q needs a positive base rate", ErrCatalogInvalid, subKey, key)
			}
		}
	}

	if len(c.StoreyBands) == 0 {
		return fmt.Errorf("%w: no storey bands defined", ErrCatalogInvalid)
	}
	for i, band := range c.StoreyBands {
		if band.MultiplierBp <= 0 {
			return fmt.Errorf("%w: storey band %d needs a positive multiplier", ErrCatalogInvalid, i)
		}
		last := i == len(c.StoreyBands)-1
		if last {
			if band.MaxStoreys != 0 {
				return fmt.Errorf("%w: the last storey band must be open ended", ErrCatalogInvalid)
			}
			continue
		}
		if band.MaxStoreys <= 0 {
			return fmt.Errorf("%w: storey band %d needs a positive max", ErrCatalogInvalid, i)
		}
		if i > 0 && band.MaxStoreys <= c.StoreyBands[i-1].MaxStoreys {
			return fmt.Errorf("%w: storey bands must ascend", ErrCatalogInvalid)
		}
	}

	for key, factor := range c.Complexity {
		if len(factor.Options) == 0 {
			return fmt.Errorf("%w: factor %q has no options", ErrCatalogInvalid, key)
		}
		for option, bp := range factor.Options {
			if bp <= 0 {
				return fmt.Errorf("%w: option %q of factor %q needs a positive multiplier", ErrCatalogInvalid, option, key)
			}
		}
	}

	if len(c.Sections) == 0 {
		return fmt.Errorf("%w: no sections defined", ErrCatalogInvalid)
	}
	seen := make(map[string]struct{}, len(c.Sections))
	for _, section := range c.Sections {
		if section.Key == "" || section.Weight <= 0 {
			return fmt.Errorf("%w: section %q needs a key and a positive weight", ErrCatalogInvalid, section.Key)
		}
		if _, ok := seen[section.Key]; ok {
			return fmt.Errorf("%w: duplicate section %q", ErrCatalogInvalid, section.Key)
		}
		seen[section.Key] = struct{}{}
	}
	return nil
}

// Rate returns the base rate per square metre for a class and subclass.
func (c Catalog) Rate(class, subclass string) (money.Cents, error) {
	cl, ok := c.Classes[class]
	if !ok {
		return 0, fmt.Errorf("%w %q, valid classes: %s", ErrUnknownClass, class, keyList(c.Classes))
	}
	sub, ok := cl.Subclasses[subclass]
	if !ok {
		return 0, fmt.Errorf("%w %q for class %q, valid subclasses: %s",
			ErrUnknownSubclass, subclass, class, keyList(cl.Subclasses))
	}
	return sub.BaseRate, nil
}

// StoreyBp returns the multiplier of the first band covering the storey
// count. The catalog invariant of an open-ended last band guarantees a hit.
func (c Catalog) StoreyBp(storeys int) int {
	for _, band := range c.StoreyBands {
		if band.MaxStoreys == 0 || storeys <= band.MaxStoreys {
			return band.MultiplierBp
		}
	}
	return neutralBp
}

// FactorBp returns the multiplier of one complexity selection.
func (c Catalog) FactorBp(factor, option string) (int, error) {
	f, ok := c.Complexity[factor]
	if !ok {
		return 0, fmt.Errorf("%w %q, valid factors: %s", ErrUnknownFactor, factor, keyList(c.Complexity))
	}
	bp, ok := f.Options[option]
	if !ok {
		return 0, fmt.Errorf("%w %q for factor %q, valid options: %s",
			ErrUnknownOption, option, factor, keyList(f.Options))
	}
	return bp, nil
}

// SectionRows returns the catalog sections as allocation rows alongside
// their default weights.
func (c Catalog) SectionRows() ([]allocation.Row, []int64) {
	rows := make([]allocation.Row, len(c.Sections))
	weights := make([]int64, len(c.Sections))
	for i, section := range c.Sections {
		rows[i] = allocation.Row{Key: section.Key, Label: section.Label}
		weights[i] = section.Weight
	}
	return rows, weights
}

func keyList[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// CatalogStore hands out the currently loaded catalog and can reload it when
// the backing file changes. A failed reload keeps the last good catalog.
type CatalogStore struct {
	path string

	mu      sync.RWMutex
	catalog Catalog
}

func LoadCatalogStore(path string) (*CatalogStore, error) {
	store := &CatalogStore{path: path}
	if err := store.Reload(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewCatalogStoreOf wraps an already built catalog, bypassing the filesystem.
func NewCatalogStoreOf(catalog Catalog) *CatalogStore {
	return &CatalogStore{catalog: catalog}
}

func (s *CatalogStore) Catalog() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

func (s *CatalogStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("could not read rate catalog: %w", err)
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()
	return nil
}

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the catalog when its file changes, coalescing bursts of
// events. Editors tend to replace the file rather than write in place, so
// the parent directory is watched and events are filtered by name. Blocks
// until ctx is done.
func (s *CatalogStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not start rate catalog watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("could not watch rate catalog directory: %w", err)
	}

	name := filepath.Clean(s.path)
	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("rate catalog watcher: %v", err)
		case <-debounce.C:
			if err := s.Reload(); err != nil {
				log.Errorf("rate catalog reload failed, keeping the previous catalog: %v", err)
				continue
			}
			log.Infof("Reloaded rate catalog from %s", s.path)
		}
	}
}
