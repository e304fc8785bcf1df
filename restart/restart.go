/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package restart stores simulation state as named arrays so a run can be
// resumed later.
package restart

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Database is a key/value store for restart data.
type Database interface {
	PutFloat64s(key string, v []float64)
	GetFloat64s(key string) ([]float64, error)
	PutInts(key string, v []int)
	GetInts(key string) ([]int, error)
	PutString(key, v string)
	GetString(key string) (string, error)
	IsDefined(key string) bool
	// Keys returns the sorted keys that start with prefix.
	Keys(prefix string) []string
}

// Memory is an in-memory Database.
type Memory struct {
	mu sync.RWMutex

	Floats  map[string][]float64
	Ints    map[string][]int
	Strings map[string]string
}

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{
		Floats:  make(map[string][]float64),
		Ints:    make(map[string][]int),
		Strings: make(map[string]string),
	}
}

// MissingKeyError is returned when a key is not in the database.
type MissingKeyError struct {
	Key  string
	Kind string
}

func (e MissingKeyError) Error() string {
	return fmt.Sprintf("restart: no %s value for key %q", e.Kind, e.Key)
}

func (m *Memory) PutFloat64s(key string, v []float64) {
	m.mu.Lock()
	m.Floats[key] = append([]float64(nil), v...)
	m.mu.Unlock()
}

func (m *Memory) GetFloat64s(key string) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.Floats[key]
	if !ok {
		return nil, MissingKeyError{Key: key, Kind: "float64"}
	}
	return append([]float64(nil), v...), nil
}

func (m *Memory) PutInts(key string, v []int) {
	m.mu.Lock()
	m.Ints[key] = append([]int(nil), v...)
	m.mu.Unlock()
}

func (m *Memory) GetInts(key string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.Ints[key]
	if !ok {
		return nil, MissingKeyError{Key: key, Kind: "int"}
	}
	return append([]int(nil), v...), nil
}

func (m *Memory) PutString(key, v string) {
	m.mu.Lock()
	m.Strings[key] = v
	m.mu.Unlock()
}

func (m *Memory) GetString(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.Strings[key]
	if !ok {
		return "", MissingKeyError{Key: key, Kind: "string"}
	}
	return v, nil
}

func (m *Memory) IsDefined(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, f := m.Floats[key]
	_, i := m.Ints[key]
	_, s := m.Strings[key]
	return f || i || s
}

func (m *Memory) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var o []string
	add := func(k string) {
		if strings.HasPrefix(k, prefix) {
			o = append(o, k)
		}
	}
	for k := range m.Floats {
		add(k)
	}
	for k := range m.Ints {
		add(k)
	}
	for k := range m.Strings {
		add(k)
	}
	sort.Strings(o)
	return o
}
