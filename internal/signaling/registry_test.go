package signaling

import (
	"errors"
	"reflect"
	"testing"
)

type recordingSink struct {
	queued [][]byte
	err    error
}

func (s *recordingSink) Enqueue(data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.queued = append(s.queued, data)
	return nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	sink := &recordingSink{}
	if err := r.Register("wombat-1a2b", sink); err != nil {
		t.Fatal(err)
	}
	got, err := r.Lookup("wombat-1a2b")
	if err != nil {
		t.Fatal(err)
	}
	if got != Sink(sink) {
		t.Fatal("lookup returned a different sink")
	}
}

func TestRegistryDuplicateIDKeepsFirst(t *testing.T) {
	r := NewRegistry()
	first := &recordingSink{}
	if err := r.Register("yak-0001", first); err != nil {
		t.Fatal(err)
	}
	err := r.Register("yak-0001", &recordingSink{})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("error = %v, want ErrDuplicateID", err)
	}
	got, err := r.Lookup("yak-0001")
	if err != nil {
		t.Fatal(err)
	}
	if got != Sink(first) {
		t.Fatal("collision displaced the original registration")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("heron-ffff", &recordingSink{}); err != nil {
		t.Fatal(err)
	}
	r.Unregister("heron-ffff")
	if _, err := r.Lookup("heron-ffff"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	// Unregistering twice must not panic or error.
	r.Unregister("heron-ffff")
}

func TestRegistryIDsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"viper-0c", "badger-9f", "lemur-33"} {
		if err := r.Register(id, &recordingSink{}); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"badger-9f", "lemur-33", "viper-0c"}
	if got := r.IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d", r.Len())
	}
}

func TestNewClientIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		id := newClientID()
		if id == "" {
			t.Fatal("empty id")
		}
		seen[id] = true
	}
	// 24 names x 65536 suffixes; 64 draws colliding down to a handful
	// would mean the suffix is not doing its job.
	if len(seen) < 32 {
		t.Fatalf("only %d distinct ids out of 64", len(seen))
	}
}
