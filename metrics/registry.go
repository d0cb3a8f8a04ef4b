package metrics

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownMetric is returned by Lookup for names that were never
// registered.
var ErrUnknownMetric = errors.New("unknown metric")

// Registry maps metric names to implementations. It is safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	aliases map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]Metric),
		aliases: make(map[string]string),
	}
}

// Register adds m under its Name and any extra aliases. Names are matched
// case-insensitively. Registering a name twice is an error.
func (r *Registry) Register(m Metric, aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(m.Name())
	keys := append([]string{name}, aliases...)
	for _, key := range keys {
		key = strings.ToLower(key)
		if _, exists := r.metrics[key]; exists {
			return fmt.Errorf("metric %q already registered", key)
		}
		if _, exists := r.aliases[key]; exists {
			return fmt.Errorf("metric %q already registered", key)
		}
	}

	r.metrics[name] = m
	for _, alias := range aliases {
		r.aliases[strings.ToLower(alias)] = name
	}
	return nil
}

// Lookup returns the metric registered under name or one of its aliases.
func (r *Registry) Lookup(name string) (Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	if m, ok := r.metrics[key]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownMetric, name)
}

// Names lists the canonical names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Default holds every metric implemented by this package.
var Default = func() *Registry {
	r := NewRegistry()
	for _, entry := range []struct {
		metric  Metric
		aliases []string
	}{
		{PSNR{}, nil},
		{APSNR{}, nil},
		{PSNRHVS{}, []string{"psnr-hvs", "psnr_hvs"}},
		{SSIM{}, nil},
		{MSSSIM{}, []string{"ms-ssim", "ms_ssim"}},
		{CIEDE2000{}, []string{"ciede", "de2000"}},
	} {
		if err := r.Register(entry.metric, entry.aliases...); err != nil {
			panic(err)
		}
	}
	return r
}()
