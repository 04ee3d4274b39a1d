package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect submits tasks from a goroutine and drains results concurrently.
func collect(t *testing.T, pool Pool, ctx context.Context, tasks []Task) []Result {
	t.Helper()

	submitted := make(chan error, 1)
	go func() {
		for _, task := range tasks {
			if err := pool.Submit(ctx, task); err != nil {
				submitted <- err
				return
			}
		}
		submitted <- nil
	}()

	var results []Result
	var mu sync.Mutex
	add := func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	for {
		select {
		case err := <-submitted:
			require.NoError(t, err)
			require.NoError(t, pool.Drain(ctx, add))
			sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
			return results
		case r := <-pool.Results():
			add(r)
		}
	}
}

func TestWorkerPool(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		queue     int
		rateLimit int
		setup     func(*testing.T) []Task
		validate  func(*testing.T, []Result)
	}{
		{
			name:    "basic task processing",
			workers: 4,
			setup: func(t *testing.T) []Task {
				tasks := make([]Task, 8)
				for i := 0; i < 8; i++ {
					i := i
					tasks[i] = Task{
						ID: i,
						Execute: func(ctx context.Context) (Result, error) {
							return Result{Data: i * 2}, nil
						},
					}
				}
				return tasks
			},
			validate: func(t *testing.T, results []Result) {
				require.Len(t, results, 8)
				for i, r := range results {
					assert.Equal(t, i, r.ID)
					assert.Equal(t, i*2, r.Data)
					assert.NoError(t, r.Err)
				}
			},
		},
		{
			name:      "rate limited processing",
			workers:   4,
			rateLimit: 20,
			setup: func(t *testing.T) []Task {
				tasks := make([]Task, 5)
				for i := 0; i < 5; i++ {
					tasks[i] = Task{
						ID: i,
						Execute: func(ctx context.Context) (Result, error) {
							return Result{}, nil
						},
					}
				}
				return tasks
			},
			validate: func(t *testing.T, results []Result) {
				assert.Len(t, results, 5)
			},
		},
		{
			name:    "errors are delivered as results",
			workers: 2,
			setup: func(t *testing.T) []Task {
				return []Task{{
					ID:   1,
					Path: "/broken",
					Execute: func(ctx context.Context) (Result, error) {
						return Result{}, errors.New("planned error")
					},
				}}
			},
			validate: func(t *testing.T, results []Result) {
				require.Len(t, results, 1)
				assert.EqualError(t, results[0].Err, "planned error")
				assert.Equal(t, "/broken", results[0].Path)
				assert.False(t, results[0].TimedOut)
			},
		},
		{
			name:    "panics are recovered",
			workers: 1,
			setup: func(t *testing.T) []Task {
				return []Task{
					{ID: 0, Execute: func(ctx context.Context) (Result, error) { panic("boom") }},
					{ID: 1, Execute: func(ctx context.Context) (Result, error) { return Result{Data: "ok"}, nil }},
				}
			},
			validate: func(t *testing.T, results []Result) {
				require.Len(t, results, 2)
				assert.ErrorContains(t, results[0].Err, "boom")
				assert.Equal(t, "ok", results[1].Data)
			},
		},
		{
			name:    "small queue applies backpressure",
			workers: 1,
			queue:   1,
			setup: func(t *testing.T) []Task {
				tasks := make([]Task, 20)
				for i := range tasks {
					tasks[i] = Task{
						ID: i,
						Execute: func(ctx context.Context) (Result, error) {
							time.Sleep(time.Millisecond)
							return Result{}, nil
						},
					}
				}
				return tasks
			},
			validate: func(t *testing.T, results []Result) {
				assert.Len(t, results, 20)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(Config{
				Workers:   tt.workers,
				RateLimit: tt.rateLimit,
				QueueSize: tt.queue,
			})
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			require.NoError(t, pool.Start(ctx))
			defer pool.Stop()

			results := collect(t, pool, ctx, tt.setup(t))
			tt.validate(t, results)
			assert.Equal(t, int64(0), pool.Pending())
		})
	}
}

func TestTaskTimeout(t *testing.T) {
	pool, err := NewPool(Config{Workers: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	release := make(chan struct{})
	late := make(chan Result, 1)

	tasks := []Task{
		{
			ID:      0,
			Path:    "/slow",
			Timeout: 20 * time.Millisecond,
			Execute: func(ctx context.Context) (Result, error) {
				// ignores its context on purpose
				<-release
				return Result{Data: "eventually"}, nil
			},
			OnLate: func(r Result) { late <- r },
		},
		{
			ID: 1,
			Execute: func(ctx context.Context) (Result, error) {
				return Result{Data: "next"}, nil
			},
		},
	}

	results := collect(t, pool, ctx, tasks)
	require.Len(t, results, 2)

	assert.True(t, results[0].TimedOut)
	assert.ErrorIs(t, results[0].Err, ErrTimeout)
	assert.Equal(t, "next", results[1].Data, "worker moved on after the deadline")

	close(release)
	select {
	case r := <-late:
		assert.True(t, r.Late)
		assert.Equal(t, "eventually", r.Data)
		assert.Equal(t, "/slow", r.Path)
	case <-time.After(time.Second):
		t.Fatal("late result never surfaced")
	}

	assert.Equal(t, int64(1), pool.GetStats().TimedOutTasks)
}

func TestContextAwareTimeout(t *testing.T) {
	pool, err := NewPool(Config{Workers: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	results := collect(t, pool, ctx, []Task{{
		ID:      0,
		Timeout: 10 * time.Millisecond,
		Execute: func(ctx context.Context) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		},
	}})

	require.Len(t, results, 1)
	assert.True(t, results[0].TimedOut)
}

func TestRecreate(t *testing.T) {
	pool, err := NewPool(Config{Workers: 2, QueueSize: 8})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	hang := func(ctx context.Context) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(ctx, Task{ID: i, Execute: hang}))
	}
	assert.Equal(t, int64(5), pool.Pending())

	abandoned, err := pool.Recreate()
	require.NoError(t, err)
	assert.Equal(t, 5, abandoned)
	assert.Equal(t, int64(0), pool.Pending())

	stats := pool.GetStats()
	assert.Equal(t, 2, stats.Generation)
	assert.Equal(t, int64(5), stats.AbandonedTasks)

	// the new generation accepts and completes work
	results := collect(t, pool, ctx, []Task{{
		ID:      99,
		Execute: func(ctx context.Context) (Result, error) { return Result{Data: "fresh"}, nil },
	}})
	require.Len(t, results, 1)
	assert.Equal(t, 99, results[0].ID)
	assert.Equal(t, "fresh", results[0].Data)
}

func TestStopDiscardsInFlight(t *testing.T) {
	pool, err := NewPool(Config{Workers: 1})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	release := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, pool.Submit(ctx, Task{
		ID: 1,
		Execute: func(ctx context.Context) (Result, error) {
			<-release
			finished.Store(true)
			return Result{Data: "too late"}, nil
		},
	}))
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		_ = pool.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a running task")
	}

	close(release)
	assert.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)

	select {
	case r := <-pool.Results():
		t.Fatalf("unexpected result after stop: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	err = pool.Submit(ctx, Task{ID: 2, Execute: func(ctx context.Context) (Result, error) { return Result{}, nil }})
	assert.ErrorIs(t, err, ErrPoolStopped)
	_, err = pool.Recreate()
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestSubmitHonorsContext(t *testing.T) {
	pool, err := NewPool(Config{Workers: 1, QueueSize: 1})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	block := func(ctx context.Context) (Result, error) {
		<-ctx.Done()
		return Result{}, nil
	}
	// one running, one queued
	require.NoError(t, pool.Submit(context.Background(), Task{ID: 1, Execute: block}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, pool.Submit(context.Background(), Task{ID: 2, Execute: block}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = pool.Submit(ctx, Task{ID: 3, Execute: block})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(2), pool.Pending())
}

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid config",
			config: Config{Workers: 4, RateLimit: 10},
		},
		{
			name:    "zero workers",
			config:  Config{Workers: 0},
			wantErr: true,
		},
		{
			name:    "negative workers",
			config:  Config{Workers: -1},
			wantErr: true,
		},
		{
			name:    "negative rate limit",
			config:  Config{Workers: 1, RateLimit: -1},
			wantErr: true,
		},
		{
			name:    "negative queue",
			config:  Config{Workers: 1, QueueSize: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, pool)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, pool)
			}
		})
	}
}

func TestStatsUptime(t *testing.T) {
	pool, err := NewPool(Config{Workers: 1})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	time.Sleep(100 * time.Millisecond)

	stats := pool.GetStats()
	assert.True(t, stats.Uptime >= 100*time.Millisecond,
		"Expected uptime >= 100ms, got %v", stats.Uptime)
	assert.Equal(t, 1, stats.Generation)
}

func TestStatsConcurrency(t *testing.T) {
	pool, err := NewPool(Config{Workers: 4, QueueSize: 16})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	go func() {
		for range pool.Results() {
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)

		go func() {
			defer wg.Done()
			_ = pool.GetStats()
			_ = pool.Status()
		}()

		go func(id int) {
			defer wg.Done()
			_ = pool.Submit(ctx, Task{
				ID: id,
				Execute: func(ctx context.Context) (Result, error) {
					time.Sleep(10 * time.Millisecond)
					return Result{}, nil
				},
			})
		}(i)

		go func() {
			defer wg.Done()
			if i == 5 {
				_, _ = pool.Recreate()
			}
		}()
	}

	wg.Wait()
	// race detector coverage only
}

func TestStatusTransitions(t *testing.T) {
	pool, err := NewPool(Config{Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, StatusStopped, pool.Status())

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.Equal(t, StatusIdle, pool.Status())

	require.NoError(t, pool.Submit(ctx, Task{
		ID: 1,
		Execute: func(ctx context.Context) (Result, error) {
			time.Sleep(100 * time.Millisecond)
			return Result{}, nil
		},
	}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatusProcessing, pool.Status())

	require.NoError(t, pool.Stop())
	assert.Equal(t, StatusStopped, pool.Status())
}
