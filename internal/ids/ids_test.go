package ids

import (
	"sort"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewIsValidULID(t *testing.T) {
	id := New()
	if _, err := ulid.Parse(id); err != nil {
		t.Fatalf("Parse(%q): %v", id, err)
	}
}

func TestNewIsSortedAndUnique(t *testing.T) {
	const n = 1000
	ids := make([]string, n)
	for i := range ids {
		ids[i] = New()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("ids issued in sequence must sort in issue order")
	}
	seen := make(map[string]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewConcurrent(t *testing.T) {
	const workers, each = 8, 200
	var (
		mu  sync.Mutex
		all = make(map[string]bool, workers*each)
		wg  sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, each)
			for i := range local {
				local[i] = New()
			}
			mu.Lock()
			for _, id := range local {
				if all[id] {
					t.Error("duplicate id across goroutines")
				}
				all[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
}
