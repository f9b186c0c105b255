package types

import "strings"

// isAlnum reports whether r is an ASCII letter or digit.
func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// checkGenericString reports whether str is non-empty, no longer than
// maxSize, and built only from alphanumerics plus the extra charset.
// Mirrors utility.c's checkGenericString.
func checkGenericString(str, extra string, maxSize int) bool {
	if len(str) == 0 || len(str) > maxSize {
		return false
	}
	for _, r := range str {
		if isAlnum(r) || strings.ContainsRune(extra, r) {
			continue
		}
		return false
	}
	return true
}

// ValidName validates a Main-store key (a person's name).
func ValidName(name string) bool {
	return checkGenericString(name, NameCharsetExtra, MaxNameLen)
}

// ValidNum validates a single phone number.
func ValidNum(num string) bool {
	if len(num) == 0 || len(num) > MaxNumLen {
		return false
	}
	for _, r := range num {
		if isDigit(r) || r == '+' {
			continue
		}
		return false
	}
	return true
}

// ValidNums validates a comma-separated phone number list: 1 to MaxNNums
// numbers, each individually valid. An empty string is valid (no numbers
// on file for a name yet).
func ValidNums(nums string) bool {
	if nums == "" {
		return true
	}
	if len(nums) > MaxNumsLen {
		return false
	}
	parts := strings.Split(nums, string(SingleNumSeparator))
	if len(parts) > MaxNNums {
		return false
	}
	for _, p := range parts {
		if !ValidNum(p) {
			return false
		}
	}
	return true
}

// ValidUsername validates a username for either user store.
func ValidUsername(username string) bool {
	return checkGenericString(username, UsernameCharsetExtra, MaxUsernameLen)
}

// ValidPassword validates a cleartext password on the operator side (the
// wire handshake only ever carries a pre-hashed value).
func ValidPassword(psw string) bool {
	if len(psw) < MinPasswordLen {
		return false
	}
	return checkGenericString(psw, PasswordCharsetExtra, MaxPasswordLen)
}

// ValidHash validates the 86-char sha512-crypt hash field.
func ValidHash(hash string) bool {
	return checkGenericString(hash, HashCharsetExtra, HashLen) && len(hash) == HashLen
}

// ValidToken validates the 80-char session token: fixed length plus
// membership in RandCharsetFull only. Request frames locate the token by
// position, never by scanning for the query separator.
func ValidToken(token string) bool {
	if len(token) != SessionTokenLen {
		return false
	}
	for _, r := range token {
		if !strings.ContainsRune(RandCharsetFull, r) {
			return false
		}
	}
	return true
}

// ValidKey validates a key string against the charset/length rules for
// the given store kind.
func ValidKey(kind StoreKind, key string) bool {
	switch kind {
	case MainKind:
		return ValidName(key)
	case UserKind:
		return ValidUsername(key)
	default:
		return false
	}
}

// ValidValue validates a value string against the rules for the given
// store kind. An absent value is represented as "" and is always valid
// for a Main record (no numbers on file yet); for a user record a hash
// must always be present.
func ValidValue(kind StoreKind, value string) bool {
	switch kind {
	case MainKind:
		return ValidNums(value)
	case UserKind:
		return ValidHash(value)
	default:
		return false
	}
}
