package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskLocks_SameTaskBlocks(t *testing.T) {
	locks := newTaskLocks()
	order := make(chan int, 2)

	go func() {
		locks.Lock("task-1")
		order <- 1
		time.Sleep(50 * time.Millisecond)
		locks.Unlock("task-1")
	}()

	time.Sleep(10 * time.Millisecond)

	go func() {
		locks.Lock("task-1")
		order <- 2
		locks.Unlock("task-1")
	}()

	first, second := <-order, <-order
	if first != 1 || second != 2 {
		t.Errorf("expected order [1, 2], got [%d, %d]", first, second)
	}
}

func TestTaskLocks_DifferentTasksConcurrent(t *testing.T) {
	locks := newTaskLocks()
	var wg sync.WaitGroup
	var aLocked, bLocked atomic.Bool

	wg.Add(2)
	go func() {
		defer wg.Done()
		locks.Lock("a")
		aLocked.Store(true)
		time.Sleep(20 * time.Millisecond)
		locks.Unlock("a")
	}()
	go func() {
		defer wg.Done()
		locks.Lock("b")
		bLocked.Store(true)
		time.Sleep(20 * time.Millisecond)
		locks.Unlock("b")
	}()

	time.Sleep(10 * time.Millisecond)
	if !aLocked.Load() || !bLocked.Load() {
		t.Error("locks on different tasks should not block each other")
	}
	wg.Wait()
}

func TestTaskLocks_UnlockUnknownIsNoop(t *testing.T) {
	locks := newTaskLocks()
	locks.Unlock("never-locked")
}
