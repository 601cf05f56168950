package flow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	windowagg "github.com/goliatone/go-windowagg"
)

func TestRunKeyedJoinsAllTasksInOrder(t *testing.T) {
	tasks := []KeyedTask[int, string]{
		{Key: 0, Run: func(context.Context) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return "slow", nil
		}},
		{Key: 1, Run: func(context.Context) (string, error) { return "", errors.New("bad row") }},
		{Key: 2, Run: func(context.Context) (string, error) { return "fast", nil }},
	}

	results := RunKeyed(context.Background(), NewPool(0, nil), tasks)

	require.Len(t, results, 3)
	assert.Equal(t, "slow", results[0].Value)
	assert.NoError(t, results[0].Err)
	assert.EqualError(t, results[1].Err, "bad row")
	assert.Equal(t, 2, results[2].Key)
	assert.Equal(t, "fast", results[2].Value)
}

func TestRunKeyedRespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	task := func(context.Context) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return 0, nil
	}

	tasks := make([]KeyedTask[int, int], 8)
	for i := range tasks {
		tasks[i] = KeyedTask[int, int]{Key: i, Run: task}
	}
	RunKeyed(context.Background(), NewPool(2, nil), tasks)

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunKeyedRecoversPanic(t *testing.T) {
	out := &bytes.Buffer{}
	tasks := []KeyedTask[string, int]{
		{Key: "a", Run: func(context.Context) (int, error) { panic("kaboom") }},
		{Key: "b", Run: func(context.Context) (int, error) { return 7, nil }},
	}

	results := RunKeyed(context.Background(), NewPool(1, NewFmtLogger(out)), tasks)

	assert.Equal(t, "TASK_PANIC", windowagg.Code(results[0].Err))
	assert.Equal(t, 7, results[1].Value)
	assert.Contains(t, out.String(), "kaboom")
	assert.Contains(t, out.String(), "key=a")
}

func TestRunKeyedCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	results := RunKeyed(ctx, nil, []KeyedTask[int, int]{{Key: 0, Run: func(context.Context) (int, error) {
		called = true
		return 1, nil
	}}})

	assert.False(t, called)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestGlogLoggerWritesStructuredFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewGlogLogger(buf, "trace", "json")

	WithFields(logger, map[string]any{"node_id": "n1"}).Info("state changed")

	logged := buf.String()
	require.NotEmpty(t, strings.TrimSpace(logged))
	assert.Contains(t, logged, "state changed")
}

func TestWrapGlogAndFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(glog.WithWriter(buf), glog.WithLoggerTypeJSON(), glog.WithLevel("trace"))

	WrapGlog(base).WithContext(context.Background()).Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")

	_, ok := NormalizeLogger(nil).(*FmtLogger)
	assert.True(t, ok)
}
