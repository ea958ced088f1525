package exchange

import (
	"context"
	"path"
	"sort"
	"sync"

	"github.com/kailas-cloud/clarityreplay/internal/db"
)

// memStore is an in-memory store for tests.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	setNXFn func(key string) (bool, error)
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memStore) SetNX(_ context.Context, key string, value []byte) (bool, error) {
	if m.setNXFn != nil {
		return m.setNXFn(key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<smp:sample xmlns:smp="http://genologics.com/ri/sample" uri="http://lims.example.org/api/v2/samples/GAO9862A146" limsid="GAO9862A146">
    <name>Sample one</name>
</smp:sample>
`

const labXML = `<?xml version="1.0" encoding="UTF-8"?>
<lab:lab xmlns:lab="http://genologics.com/ri/lab" uri="http://lims.example.org/api/v2/labs/1">
    <name>CRUK</name>
</lab:lab>
`
