package gitgrep

// Paginate returns at most take items starting at index skip.
// Out-of-range windows are clamped: a skip past the end yields an empty
// slice and negative values count as zero.
func Paginate[T any](items []T, skip, take int) []T {
	skip = max(skip, 0)
	take = max(take, 0)
	if skip >= len(items) {
		return []T{}
	}
	end := len(items)
	if take < end-skip {
		end = skip + take
	}
	return items[skip:end:end]
}
