package kernel

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestParkerUnparkBeforeParkIsRemembered(t *testing.T) {
	p := NewParker()
	k, _ := newTestKernel(t, 1)

	// Unpark with nobody parked deposits a permit for the next Park.
	p.Unpark(k)

	done := make(chan struct{})
	_, err := k.CreateKernel("parker", func(self *Task) {
		p.Park(k, self) // must return immediately, consuming the pending permit
		close(done)
	})
	assert.NilError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("park did not return despite a pending permit")
	}
}

func TestParkerCoalescesConcurrentUnparks(t *testing.T) {
	p := NewParker()
	k, _ := newTestKernel(t, 2)

	var woken int
	done := make(chan struct{})
	_, err := k.CreateKernel("parker", func(self *Task) {
		p.Park(k, self)
		woken++
		close(done)
	})
	assert.NilError(t, err)

	_, err = k.CreateKernel("unparker", func(self *Task) {
		// Several unparks in a row must coalesce into the single permit a
		// one-slot Parker can hold.
		for i := 0; i < 5; i++ {
			p.Unpark(k)
		}
	})
	assert.NilError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("parked task was never woken")
	}
	assert.Equal(t, woken, 1)
	assert.Equal(t, p.UnparkAttempts(), uint64(5))
}
