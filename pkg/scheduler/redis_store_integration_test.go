//go:build integration

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pundora/punserve/pkg/notify"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_ClaimIsAtomic(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()

	store.Create(ctx, testDelivery("d-1", "user-1", time.Now().UTC()))

	const claimers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimDispatching(ctx, "d-1", StatusPending)
			if err != nil {
				t.Errorf("claim error: %v", err)
				return
			}
			if claimed {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("claim winners = %d, want exactly 1", won)
	}
}

func TestRedisStore_Integration_DispatchEndToEnd(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	d := testDelivery("d-1", "user-1", now.Add(-time.Minute))
	d.Recurrence = RecurrenceDaily
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	adapter := &fakeAdapter{}
	dp := testDispatcher(store, adapter, resolverFor(d))

	if err := dp.Tick(ctx, now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if adapter.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1", adapter.sendCount())
	}

	after, err := store.Get(ctx, "d-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if after.Status != StatusPending {
		t.Errorf("status = %s, want pending (recurring reschedule)", after.Status)
	}
	wantNext := d.TargetTime.Add(24 * time.Hour)
	if !after.TargetTime.Equal(wantNext) {
		t.Errorf("next target = %v, want %v", after.TargetTime, wantNext)
	}
}

func TestRedisStore_Integration_ConcurrentTicksDispatchOnce(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	resolver := &fakeResolver{payloads: map[string]notify.Payload{}}
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("d-%d", i)
		store.Create(ctx, testDelivery(id, "user-1", now.Add(-time.Minute)))
		resolver.payloads["payload:"+id] = notify.Payload{Content: "joke"}
	}

	adapter := &fakeAdapter{}
	dp := testDispatcher(store, adapter, resolver)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dp.Tick(ctx, now); err != nil {
				t.Errorf("Tick failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if adapter.sendCount() != 20 {
		t.Errorf("sends = %d, want exactly 20 despite concurrent ticks", adapter.sendCount())
	}
}

func TestRedisStore_Integration_CancelRace(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()

	store.Create(ctx, testDelivery("d-1", "user-1", time.Now().UTC()))

	// Exactly one of claim and cancel wins
	claimed, claimErr := store.ClaimDispatching(ctx, "d-1", StatusPending)
	cancelErr := store.Cancel(ctx, "d-1")

	if claimErr != nil {
		t.Fatalf("claim error: %v", claimErr)
	}
	if claimed && !errors.Is(cancelErr, ErrConflict) {
		t.Errorf("claim won but cancel did not conflict: %v", cancelErr)
	}
	if !claimed && cancelErr != nil {
		t.Errorf("cancel won but returned error: %v", cancelErr)
	}
}
