package sim

import "fmt"

// OpRange is an inclusive range of op sequence numbers.
type OpRange struct {
	From uint64
	To   uint64
}

// SplitOps cuts the sequence range [from, to] into batches of at most size ops.
func SplitOps(from, to, size uint64) ([]OpRange, error) {
	if size == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if from == 0 || to < from {
		return nil, fmt.Errorf("invalid op range %d..%d", from, to)
	}

	ranges := make([]OpRange, 0, (to-from)/size+1)
	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to || end < start {
			end = to
		}
		ranges = append(ranges, OpRange{From: start, To: end})
		if end == to {
			break
		}
	}
	return ranges, nil
}
