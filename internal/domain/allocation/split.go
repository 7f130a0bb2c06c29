package allocation

// Split divides total into k shares that sum to total and differ by at most
// one. The first total mod k shares carry the extra unit. Non-positive k
// yields nil.
func Split(total int64, k int) []int64 {
	if k <= 0 {
		return nil
	}
	shares := make([]int64, k)
	base, rem := total/int64(k), total%int64(k)
	for i := range shares {
		shares[i] = base
		if int64(i) < rem {
			shares[i]++
		}
	}
	return shares
}
