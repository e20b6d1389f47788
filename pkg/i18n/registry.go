// Package i18n holds the translation tables and a locale registry with
// explicit subscribe/teardown.
package i18n

import (
	"os"
	"sort"
	"strings"
	"sync"
)

const (
	DefaultLocale = "en"
	EnvLocale     = "PINCHCHAT_LOCALE"
)

// Translator is what renderers need from a registry.
type Translator interface {
	T(key string) string
}

// Listener is called with the new locale after it changed.
type Listener func(locale string)

type Registry struct {
	mu        sync.RWMutex
	locale    string
	listeners map[uint64]Listener
	nextID    uint64
	closed    bool
}

var _ Translator = &Registry{}

// NewRegistry starts at locale, or DefaultLocale when locale is unsupported.
func NewRegistry(locale string) *Registry {
	if !IsSupported(locale) {
		locale = DefaultLocale
	}
	return &Registry{locale: locale, listeners: map[uint64]Listener{}}
}

func (r *Registry) Locale() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locale
}

// T returns the translation for key, falling back to English and then to
// the key itself.
func (r *Registry) T(key string) string {
	return lookup(r.Locale(), key)
}

// Format translates key and substitutes {name} placeholders from vars.
func (r *Registry) Format(key string, vars map[string]string) string {
	s := r.T(key)
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

// SetLocale switches the locale and notifies subscribers. Unsupported
// locales and no-op switches are ignored.
func (r *Registry) SetLocale(locale string) {
	r.mu.Lock()
	if r.closed || !IsSupported(locale) || locale == r.locale {
		r.mu.Unlock()
		return
	}
	r.locale = locale
	ids := make([]uint64, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.listeners[id])
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(locale)
	}
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (r *Registry) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Teardown drops every subscriber. The registry keeps translating but no
// longer changes locale or accepts subscribers.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.listeners = map[uint64]Listener{}
}

func (r *Registry) subscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func lookup(locale, key string) string {
	if s, ok := tables[locale][key]; ok {
		return s
	}
	if s, ok := en[key]; ok {
		return s
	}
	return key
}

func IsSupported(locale string) bool {
	_, ok := tables[locale]
	return ok
}

// SupportedLocales returns the locale codes in sorted order.
func SupportedLocales() []string {
	out := make([]string, 0, len(tables))
	for k := range tables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResolveLocale picks explicit, then PINCHCHAT_LOCALE, then the language
// part of LANG, then DefaultLocale.
func ResolveLocale(explicit string, getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if IsSupported(explicit) {
		return explicit
	}
	if env := strings.TrimSpace(getenv(EnvLocale)); IsSupported(env) {
		return env
	}
	// fr_FR.UTF-8, fr-FR
	parts := strings.FieldsFunc(getenv("LANG"), func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	if len(parts) > 0 {
		if code := strings.ToLower(parts[0]); IsSupported(code) {
			return code
		}
	}
	return DefaultLocale
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use from
// the environment.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(ResolveLocale("", nil))
	}
	return defaultRegistry
}

// ResetDefault tears down the process-wide registry; the next Default call
// builds a fresh one.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry != nil {
		defaultRegistry.Teardown()
		defaultRegistry = nil
	}
}
