package form

// Row helpers never modify their input; each returns a fresh slice.

func appendRow[T any](rows []T, row T) []T {
	out := make([]T, len(rows), len(rows)+1)
	copy(out, rows)
	return append(out, row)
}

func removeRow[T any](rows []T, i int) ([]T, error) {
	if i < 0 || i >= len(rows) {
		return nil, ErrRowOutOfRange
	}
	out := make([]T, 0, len(rows)-1)
	out = append(out, rows[:i]...)
	return append(out, rows[i+1:]...), nil
}

func replaceRow[T any](rows []T, i int, row T) ([]T, error) {
	if i < 0 || i >= len(rows) {
		return nil, ErrRowOutOfRange
	}
	out := append([]T(nil), rows...)
	out[i] = row
	return out, nil
}
