package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-registration/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis starts an in-memory redis server and a client pointing at it.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

// exerciseMutualExclusion runs many goroutines through the same key and
// records the highest number of holders seen at once.
func exerciseMutualExclusion(t *testing.T, l Locker) {
	const workers = 20
	var inside, peak int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), AdmissionKey("evt-1"))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, release())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak, "at most one holder at a time")
}

func TestAdmissionKey(t *testing.T) {
	assert.Equal(t, "admission_lock:abc", AdmissionKey("abc"))
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal()
	exerciseMutualExclusion(t, l)
	assert.Equal(t, 0, l.held(), "entries are dropped once nobody holds them")
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	releaseA, err := l.Acquire(ctx, AdmissionKey("a"))
	require.NoError(t, err)
	releaseB, err := l.Acquire(ctx, AdmissionKey("b"))
	require.NoError(t, err)

	require.NoError(t, releaseA())
	require.NoError(t, releaseB())
}

func TestLocal_ContextCancelWhileWaiting(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, release())
	require.NoError(t, release(), "double release is harmless")
	assert.Equal(t, 0, l.held())
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewRedisLocker(client, logger.Nop(), 5*time.Second, 5*time.Second, time.Millisecond)
	exerciseMutualExclusion(t, l)
}

func TestRedisLocker_TimeoutWhenHeld(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewRedisLocker(client, logger.Nop(), 5*time.Second, 30*time.Millisecond, 5*time.Millisecond)

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedisLocker(client, logger.Nop(), time.Second, 0, time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	// The first holder's TTL lapses and a second holder takes over.
	mr.FastForward(2 * time.Second)
	releaseSecond, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	second, err := mr.Get("k")
	require.NoError(t, err)

	require.NoError(t, release())
	current, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, second, current, "stale release must not remove the new holder")

	require.NoError(t, releaseSecond())
	assert.False(t, mr.Exists("k"))
}

func TestRedisLocker_SetsTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedisLocker(client, logger.Nop(), 10*time.Second, 0, time.Millisecond)

	release, err := l.Acquire(context.Background(), AdmissionKey("evt"))
	require.NoError(t, err)
	defer release()

	assert.Equal(t, 10*time.Second, mr.TTL(AdmissionKey("evt")))
}

// TestRedisLocker_Integration runs against a real redis container.
func TestRedisLocker_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Redis container unavailable: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	l := NewRedisLocker(client, logger.Nop(), 5*time.Second, 5*time.Second, 2*time.Millisecond)
	exerciseMutualExclusion(t, l)
}

func TestRedisLocker_RenewsLeaseWhileHeld(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedisLocker(client, logger.Nop(), 300*time.Millisecond, 0, time.Millisecond)
	key := AdmissionKey("evt")

	release, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)

	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) > 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond, "lease is extended while the holder works")

	// Well past the original TTL the key is still ours.
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) > 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, mr.Exists(key))

	require.NoError(t, release())
	assert.False(t, mr.Exists(key))

	// Renewal stops with the release.
	time.Sleep(250 * time.Millisecond)
	assert.False(t, mr.Exists(key))
}
