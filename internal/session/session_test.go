package session

import (
	"sync"
	"testing"
)

func TestStoreLifecycle(t *testing.T) {
	st := NewStore()

	if st.Active(1) {
		t.Error("fresh store has an active session")
	}

	s := st.Begin(1, "exchange", "from")
	if s.Owner != 1 || s.Flow != "exchange" || s.Step != "from" {
		t.Errorf("unexpected session: %+v", s)
	}
	if !st.Active(1) {
		t.Error("session not active after Begin")
	}

	got, ok := st.Get(1)
	if !ok || got != s {
		t.Error("Get did not return the session from Begin")
	}

	// Beginning a new flow replaces the old session entirely.
	s.FromCurrency = "USD"
	replaced := st.Begin(1, "broadcast", "audience")
	if replaced.FromCurrency != "" {
		t.Error("scratch state leaked into the replacement session")
	}

	st.Clear(1)
	if st.Active(1) {
		t.Error("session active after Clear")
	}
}

func TestStoreIsolatesUsers(t *testing.T) {
	st := NewStore()
	st.Begin(1, "exchange", "from")

	if st.Active(2) {
		t.Error("one user's session visible to another")
	}
	st.Clear(2)
	if !st.Active(1) {
		t.Error("clearing another user dropped the session")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	st := NewStore()

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			st.Begin(id, "registration", "contact")
			st.Get(id)
			st.Clear(id)
		}(i)
	}
	wg.Wait()

	for i := int64(0); i < 50; i++ {
		if st.Active(i) {
			t.Errorf("user %d still active", i)
		}
	}
}
