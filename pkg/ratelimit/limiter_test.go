package ratelimit

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestLimiter_AllowThenDeny(t *testing.T) {
	const limit = 5
	window := time.Minute
	l := NewLimiter(limit, window, testLogger())
	ctx := context.Background()

	// First L calls are admitted
	for i := 0; i < limit; i++ {
		d, err := l.Check(ctx, "user-1")
		if err != nil {
			t.Fatalf("Check %d error: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("call %d denied, want allowed", i+1)
		}
		if d.Remaining != limit-i-1 {
			t.Errorf("call %d remaining = %d, want %d", i+1, d.Remaining, limit-i-1)
		}
	}

	// Calls L+1.. are denied with RetryAfter <= W
	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, "user-1")
		if err != nil {
			t.Fatalf("Check error: %v", err)
		}
		if d.Allowed {
			t.Fatal("call past limit admitted")
		}
		if d.RetryAfter <= 0 || d.RetryAfter > window {
			t.Errorf("RetryAfter = %s, want in (0, %s]", d.RetryAfter, window)
		}
	}
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute, testLogger())
	ctx := context.Background()

	if d, _ := l.Check(ctx, "user-a"); !d.Allowed {
		t.Fatal("user-a first call denied")
	}
	if d, _ := l.Check(ctx, "user-a"); d.Allowed {
		t.Fatal("user-a second call admitted")
	}
	if d, _ := l.Check(ctx, "user-b"); !d.Allowed {
		t.Fatal("user-b blocked by user-a's window")
	}
}

func TestLimiter_WindowRollover(t *testing.T) {
	window := 50 * time.Millisecond
	l := NewLimiter(1, window, testLogger())
	ctx := context.Background()

	if d, _ := l.Check(ctx, "user-1"); !d.Allowed {
		t.Fatal("first call denied")
	}
	if d, _ := l.Check(ctx, "user-1"); d.Allowed {
		t.Fatal("second call in same window admitted")
	}

	time.Sleep(window + 10*time.Millisecond)

	// Lazy rollover: a fresh window opens on the first check after expiry
	if d, _ := l.Check(ctx, "user-1"); !d.Allowed {
		t.Fatal("call after window rollover denied")
	}
}

// Two simultaneous calls when one unit of quota remains must resolve to
// exactly one Allow and one Deny.
func TestLimiter_AtomicLastUnit(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 100; round++ {
		l := NewLimiter(1, time.Minute, testLogger())

		var allowed atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})

		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				d, err := l.Check(ctx, "user-1")
				if err != nil {
					t.Errorf("Check error: %v", err)
					return
				}
				if d.Allowed {
					allowed.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if got := allowed.Load(); got != 1 {
			t.Fatalf("round %d: %d allows, want exactly 1", round, got)
		}
	}
}

func TestLimiter_ConcurrentManyIdentities(t *testing.T) {
	const limit = 10
	l := NewLimiter(limit, time.Minute, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	allows := make([]atomic.Int32, 8)

	for id := 0; id < 8; id++ {
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				identity := string(rune('a' + id))
				for i := 0; i < 10; i++ {
					d, err := l.Check(ctx, identity)
					if err != nil {
						t.Errorf("Check error: %v", err)
						return
					}
					if d.Allowed {
						allows[id].Add(1)
					}
				}
			}(id)
		}
	}
	wg.Wait()

	// 40 attempts per identity against a limit of 10
	for id := range allows {
		if got := allows[id].Load(); got != limit {
			t.Errorf("identity %d: %d allows, want %d", id, got, limit)
		}
	}
}

func TestLimiter_Sweep(t *testing.T) {
	window := time.Minute
	l := NewLimiter(5, window, testLogger())
	ctx := context.Background()

	l.Check(ctx, "user-1")
	l.Check(ctx, "user-2")

	if removed := l.Sweep(time.Now()); removed != 0 {
		t.Errorf("Sweep removed %d live windows, want 0", removed)
	}
	if removed := l.Sweep(time.Now().Add(2 * window)); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
}
