package registry

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDownDebouncer_FiresAfterGrace(t *testing.T) {
	fired := make(chan uuid.UUID, 1)
	d := newDownDebouncer(10*time.Millisecond, func(id uuid.UUID) { fired <- id })

	id := uuid.New()
	d.Arm(id)

	select {
	case got := <-fired:
		if got != id {
			t.Errorf("fired for %s, want %s", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("debouncer did not fire after grace")
	}
}

func TestDownDebouncer_ReconnectCancelsFire(t *testing.T) {
	fired := make(chan uuid.UUID, 1)
	d := newDownDebouncer(20*time.Millisecond, func(id uuid.UUID) { fired <- id })

	id := uuid.New()
	d.Arm(id)
	d.Cancel(id)

	select {
	case <-fired:
		t.Fatal("cancelled timer must not fire: a reconnected instance is not down")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDownDebouncer_RepeatedArmKeepsOneTimer(t *testing.T) {
	fired := make(chan uuid.UUID, 4)
	d := newDownDebouncer(10*time.Millisecond, func(id uuid.UUID) { fired <- id })

	id := uuid.New()
	d.Arm(id)
	d.Arm(id)
	d.Arm(id)

	<-fired
	select {
	case <-fired:
		t.Fatal("repeated drops must collapse into a single down event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDownDebouncer_StopCancelsAll(t *testing.T) {
	fired := make(chan uuid.UUID, 4)
	d := newDownDebouncer(20*time.Millisecond, func(id uuid.UUID) { fired <- id })

	d.Arm(uuid.New())
	d.Arm(uuid.New())
	d.Stop()

	select {
	case <-fired:
		t.Fatal("stopped debouncer must not fire")
	case <-time.After(100 * time.Millisecond):
	}
}
