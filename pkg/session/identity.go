package session

// ValidUserID reports whether id can name a session: non-empty and made
// only of ASCII letters, digits, '_' and '-'. Such ids are safe as file
// names and table keys.
func ValidUserID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
