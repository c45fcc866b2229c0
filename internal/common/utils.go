package common

// SliceToChunks splits values into chunks of at most chunkSize elements.
func SliceToChunks[T any](values []T, chunkSize int) [][]T {
	if chunkSize >= len(values) || chunkSize <= 0 {
		return [][]T{values}
	}
	var chunks [][]T
	for i := 0; i < len(values); i += chunkSize {
		end := i + chunkSize
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[i:end])
	}
	return chunks
}

// BlockNumbersForRange lists every block number in [start, end].
func BlockNumbersForRange(start, end int64) []int64 {
	if start > end {
		return nil
	}
	numbers := make([]int64, 0, end-start+1)
	for n := start; n <= end; n++ {
		numbers = append(numbers, n)
	}
	return numbers
}
