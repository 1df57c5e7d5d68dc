package transport

import "testing"

func TestPoolReusesReleasedInstance(t *testing.T) {
	constructed := 0
	factory := func() (LedgerClient, error) {
		constructed++
		return NewMockClient(), nil
	}
	p := NewPool(factory, nil)

	h1, ok := p.Get()
	if !ok {
		t.Fatal("expected instance")
	}
	p.Release(h1)

	h2, ok := p.Get()
	if !ok {
		t.Fatal("expected instance")
	}
	if h2.Client != h1.Client {
		t.Fatal("expected released instance to be reused")
	}
	if constructed != 1 {
		t.Fatalf("expected exactly one construction, got %d", constructed)
	}
}

func TestPoolSaturatesAtMaxSize(t *testing.T) {
	p := NewPool(NewMockFactory(), nil)

	var handles []*Handle
	for i := 0; i < MaxPoolSize; i++ {
		h, ok := p.Get()
		if !ok {
			t.Fatalf("expected instance %d of %d", i, MaxPoolSize)
		}
		handles = append(handles, h)
	}

	if _, ok := p.Get(); ok {
		t.Fatal("expected pool to be saturated and return false")
	}

	p.Release(handles[0])
	if _, ok := p.Get(); !ok {
		t.Fatal("expected a release to free up capacity")
	}
}
