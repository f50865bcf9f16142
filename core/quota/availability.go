package quota

// Demand is the number of consumers counted against a quota at a single
// snapshot time.
type Demand struct {
	Orders           int64
	BlockingVouchers int64
	LiveCarts        int64
}

func (d Demand) total() int64 {
	return d.Orders + d.BlockingVouchers + d.LiveCarts
}

// Availability is the outcome of the ledger for one quota.
type Availability struct {
	Unlimited bool
	Count     int64
}

func (a Availability) Exhausted() bool {
	return !a.Unlimited && a.Count <= 0
}

// Compute derives the availability of a quota of the given size from its
// current demand. A nil size means the quota is unlimited.
func Compute(size *int64, d Demand) Availability {
	if size == nil {
		return Availability{Unlimited: true}
	}

	count := *size - d.total()
	if count < 0 {
		count = 0
	}
	return Availability{Count: count}
}
