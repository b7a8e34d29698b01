package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubExpirer struct {
	calls atomic.Int32
	count int
	err   error
}

func (s *stubExpirer) ExpireStale(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return s.count, s.err
}

type stubRedis struct {
	mu      sync.Mutex
	values  map[string]string
	setErr  error
	evalled []string
}

func newStubRedis() *stubRedis {
	return &stubRedis{values: map[string]string{}}
}

func (s *stubRedis) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return redis.NewBoolResult(false, s.setErr)
	}
	if _, ok := s.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	s.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (s *stubRedis) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evalled = append(s.evalled, keys[0])
	if s.values[keys[0]] == args[0].(string) {
		delete(s.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRunOnceSweepsWhenLeaseFree(t *testing.T) {
	expirer := &stubExpirer{count: 3}
	s := New(expirer, NewLocalLocker(), time.Minute)
	count, err := s.RunOnce(context.Background())
	if err != nil || count != 3 {
		t.Fatalf("expected 3 expired, got %d err %v", count, err)
	}
	if _, err := s.RunOnce(context.Background()); err != nil || expirer.calls.Load() != 2 {
		t.Fatalf("lease must be released after each run, calls=%d err=%v", expirer.calls.Load(), err)
	}
}

func TestRunOnceSkipsWhenLeaseHeld(t *testing.T) {
	locker := NewLocalLocker()
	release, ok, _ := locker.TryLock(context.Background(), lockKey, time.Minute)
	if !ok {
		t.Fatalf("expected to take the lease")
	}
	defer release(context.Background())
	expirer := &stubExpirer{count: 1}
	count, err := New(expirer, locker, time.Minute).RunOnce(context.Background())
	if err != nil || count != 0 || expirer.calls.Load() != 0 {
		t.Fatalf("expected skipped sweep, got count=%d calls=%d err=%v", count, expirer.calls.Load(), err)
	}
}

func TestRunOnceReturnsExpirerError(t *testing.T) {
	expirer := &stubExpirer{err: errors.New("db down")}
	if _, err := New(expirer, nil, time.Minute).RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRedisLockerExclusive(t *testing.T) {
	client := newStubRedis()
	first := NewRedisLocker(client)
	second := NewRedisLocker(client)

	release, ok, err := first.TryLock(context.Background(), lockKey, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock, ok=%v err=%v", ok, err)
	}
	if _, ok, err := second.TryLock(context.Background(), lockKey, time.Minute); err != nil || ok {
		t.Fatalf("expected second lock refused, ok=%v err=%v", ok, err)
	}
	release(context.Background())
	if len(client.values) != 0 {
		t.Fatalf("expected key released, got %v", client.values)
	}
	if _, ok, _ := second.TryLock(context.Background(), lockKey, time.Minute); !ok {
		t.Fatalf("expected lock available after release")
	}
}

func TestRedisLockerDoesNotReleaseForeignLease(t *testing.T) {
	client := newStubRedis()
	locker := NewRedisLocker(client)
	release, ok, _ := locker.TryLock(context.Background(), lockKey, time.Minute)
	if !ok {
		t.Fatalf("expected lock")
	}
	client.values["dust2cash:lock:"+lockKey] = "someone-else"
	release(context.Background())
	if client.values["dust2cash:lock:"+lockKey] != "someone-else" {
		t.Fatalf("foreign lease must survive release")
	}
}

func TestRedisLockerError(t *testing.T) {
	client := newStubRedis()
	client.setErr = errors.New("connection refused")
	expirer := &stubExpirer{}
	if _, err := New(expirer, NewRedisLocker(client), time.Minute).RunOnce(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
	if expirer.calls.Load() != 0 {
		t.Fatalf("sweep must not run without the lease")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	expirer := &stubExpirer{}
	s := New(expirer, nil, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
	if expirer.calls.Load() < 2 {
		t.Fatalf("expected immediate run plus ticks, got %d", expirer.calls.Load())
	}
}
