package host

import (
	"sync"
	"testing"
)

func TestSetpointGetReturnsLatest(t *testing.T) {
	sp := NewSetpoint("enabled", false, nil)
	if sp.Get() != false {
		t.Fatalf("expected initial false")
	}
	sp.Set(true)
	if sp.Get() != true {
		t.Fatalf("expected true after Set")
	}
}

func TestSetpointOnChangeFires(t *testing.T) {
	var seen []int
	var mu sync.Mutex
	sp := NewSetpoint("phase", 0, func(s *Setpoint[int]) {
		mu.Lock()
		seen = append(seen, s.Get())
		mu.Unlock()
	})

	sp.Set(1)
	sp.Set(2)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected [1 2], got %v", seen)
	}
}

func TestSetpointConcurrentAccess(t *testing.T) {
	sp := NewSetpoint("counter", 0, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			sp.Set(v)
		}(i)
	}
	wg.Wait()
	_ = sp.Get() // must not race or panic
}
