package solanarpc

import "testing"

func TestPoolRoundRobin(t *testing.T) {
	pool := newRPCPool([]string{
		"https://a.example.com",
		"https://b.example.com",
	})

	first := pool.get()
	second := pool.get()
	third := pool.get()

	if first == second {
		t.Error("consecutive gets returned the same client")
	}
	if first != third {
		t.Error("rotation did not wrap around")
	}
}

func TestPoolSingleEndpoint(t *testing.T) {
	pool := newRPCPool([]string{"https://a.example.com"})
	if pool.get() != pool.get() {
		t.Error("single-endpoint pool returned different clients")
	}
}
