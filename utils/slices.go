package utils

// Map applies f to every element of slice. A nil slice maps to nil.
func Map[T1, T2 any](slice []T1, f func(T1) T2) []T2 {
	if slice == nil {
		return nil
	}
	result := make([]T2, len(slice))
	for i, e := range slice {
		result[i] = f(e)
	}
	return result
}
