// Package envmap holds the environment handed to the install script and a
// scoped overlay for running it against the process environment.
package envmap

import (
	"os"
	"slices"
	"strings"
	"sync"
)

// Map is a set of environment variables. Treat a Map received from another
// package as read-only; use Clone before modifying it.
type Map map[string]string

// Clone returns an independent copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Set assigns value to key.
func (m Map) Set(key, value string) {
	m[key] = value
}

// Delete removes key if present.
func (m Map) Delete(key string) {
	delete(m, key)
}

// Keys returns the variable names in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Masked returns a copy with the values of credential-like keys replaced.
func (m Map) Masked() Map {
	out := m.Clone()
	for k := range out {
		if strings.HasSuffix(k, "_PASS") || strings.HasSuffix(k, "_ACTKEY") {
			out[k] = "********"
		}
	}
	return out
}

var overlayMu sync.Mutex

// Overlay sets every variable of m in the process environment, runs fn and
// then puts the environment back the way it was: changed keys get their old
// value and keys that did not exist are unset again. Restoration happens on
// every exit path, including a panic in fn. Concurrent overlays are serialized.
func Overlay(m Map, fn func() error) (err error) {
	overlayMu.Lock()
	defer overlayMu.Unlock()

	type prior struct {
		value   string
		present bool
	}
	saved := make(map[string]prior, len(m))
	for k := range m {
		v, ok := os.LookupEnv(k)
		saved[k] = prior{value: v, present: ok}
	}

	defer func() {
		for k, p := range saved {
			if p.present {
				_ = os.Setenv(k, p.value)
			} else {
				_ = os.Unsetenv(k)
			}
		}
	}()

	for _, k := range m.Keys() {
		if err := os.Setenv(k, m[k]); err != nil {
			return err
		}
	}
	return fn()
}
