package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestMapSetGetDelete(t *testing.T) {
	m := NewMap[int]()

	if _, ok := m.Get("missing"); ok {
		t.Fatal("empty map should not contain keys")
	}

	m.Set("a", 1)
	m.Set("b", 2)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a)=%v,%v expected 1,true", v, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("Len=%d, expected 2", m.Len())
	}

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Fatal("deleted key should be absent")
	}
}

func TestMapGetOrSet(t *testing.T) {
	m := NewMap[string]()

	v, loaded := m.GetOrSet("k", "first")
	if loaded || v != "first" {
		t.Fatalf("GetOrSet on empty map=%q,%v", v, loaded)
	}
	v, loaded = m.GetOrSet("k", "second")
	if !loaded || v != "first" {
		t.Fatalf("GetOrSet should keep existing value, got %q,%v", v, loaded)
	}
}

func TestMapConcurrentAccess(t *testing.T) {
	m := NewMap[int]()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				m.Set(key, n)
				m.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if m.Len() != 10 {
		t.Fatalf("Len=%d, expected 10", m.Len())
	}
}
