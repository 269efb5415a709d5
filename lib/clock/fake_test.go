// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))

	ch := fake.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(5 * time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(time.Unix(1005, 0)) {
			t.Errorf("fired at %v, want %v", fired, time.Unix(1005, 0))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))

	done := make(chan struct{})
	go func() {
		fake.Sleep(3 * time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(3 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakePartialAdvance(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))
	ch := fake.After(10 * time.Second)

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}
	if fake.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", fake.PendingCount())
	}

	fake.Advance(6 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at its deadline")
	}
}
