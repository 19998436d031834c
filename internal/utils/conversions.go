package utils

// ToStringSet converts a slice into a set, dropping empty strings.
func ToStringSet(slice []string) map[string]struct{} {
	set := make(map[string]struct{}, len(slice))
	for _, v := range slice {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
