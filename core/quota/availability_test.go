package quota

import "testing"

func size(n int64) *int64 { return &n }

func TestCompute(t *testing.T) {
	cases := []struct {
		name      string
		size      *int64
		demand    Demand
		unlimited bool
		count     int64
		exhausted bool
	}{
		{"nil size is unlimited", nil, Demand{Orders: 100}, true, 0, false},
		{"empty quota", size(5), Demand{}, false, 5, false},
		{"orders consume", size(5), Demand{Orders: 3}, false, 2, false},
		{"all kinds consume", size(5), Demand{Orders: 2, BlockingVouchers: 1, LiveCarts: 2}, false, 0, true},
		{"oversubscribed clamps to zero", size(2), Demand{Orders: 3, LiveCarts: 1}, false, 0, true},
		{"zero size always exhausted", size(0), Demand{}, false, 0, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Compute(c.size, c.demand)
			if got.Unlimited != c.unlimited {
				t.Fatalf("unlimited: expected %v, got %v", c.unlimited, got.Unlimited)
			}
			if !got.Unlimited && got.Count != c.count {
				t.Fatalf("count: expected %d, got %d", c.count, got.Count)
			}
			if got.Exhausted() != c.exhausted {
				t.Fatalf("exhausted: expected %v, got %v", c.exhausted, got.Exhausted())
			}
		})
	}
}
