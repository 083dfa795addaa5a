package source

// Ellipsis marks text shortened by Truncate.
const Ellipsis = "..."

// Truncate keeps the first n characters of s and appends Ellipsis when
// anything was cut. Length is counted in runes, never bytes.
func Truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + Ellipsis
		}
		count++
	}
	return s
}
