package credentials

// Implements the glibc sha512-crypt ($6$) algorithm described in
// Ulrich Drepper's "Unix crypt using SHA-256/SHA-512" note. No library in
// this codebase's dependency set implements crypt(3)-style password
// hashing (the rest of the stack's crypto usage is AES-GCM/RSA for
// secrets and certificates, a different concern), so this is built
// directly on crypto/sha512.

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"strings"
)

const (
	sha512CryptPrefix  = "$6$"
	sha512CryptRounds  = 5000
	sha512CryptSaltLen = 16
	b64Chars           = "./0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// GenerateSalt returns a random salt string suitable for sha512-crypt,
// built from the hash charset (alphanumerics, '.', '/').
func GenerateSalt() (string, error) {
	buf := make([]byte, sha512CryptSaltLen)
	raw := make([]byte, sha512CryptSaltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("credentials: generate salt: %w", err)
	}
	for i, b := range raw {
		buf[i] = b64Chars[int(b)%len(b64Chars)]
	}
	return string(buf), nil
}

// HashPassword computes the sha512-crypt hash of password with a freshly
// generated random salt. It returns only the 86-character final field
// (the part stored and compared on the wire), not the full
// "$6$salt$hash" encoding.
func HashPassword(password string) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	return sha512CryptDigest(password, salt), nil
}

// HashPasswordWithSalt computes the sha512-crypt digest with a caller
// supplied salt, exposed for deterministic testing against known vectors.
func HashPasswordWithSalt(password, salt string) string {
	return sha512CryptDigest(password, salt)
}

// sha512CryptDigest implements the core algorithm from Drepper's
// description and returns only the base64-like 86-char digest field.
func sha512CryptDigest(password, salt string) string {
	pw := []byte(password)
	s := []byte(salt)

	// Step 1-8: digest B.
	b := sha512.New()
	b.Write(pw)
	b.Write(s)
	b.Write(pw)
	sumB := b.Sum(nil)

	// Step 9-16: digest A.
	a := sha512.New()
	a.Write(pw)
	a.Write(s)
	for i := len(pw); i > 0; i -= 64 {
		if i > 64 {
			a.Write(sumB)
		} else {
			a.Write(sumB[:i])
		}
	}
	for i := len(pw); i > 0; i >>= 1 {
		if i&1 != 0 {
			a.Write(sumB)
		} else {
			a.Write(pw)
		}
	}
	sumA := a.Sum(nil)

	// Step 17-18: DP, the password-derived repeated digest.
	dp := sha512.New()
	for i := 0; i < len(pw); i++ {
		dp.Write(pw)
	}
	sumDP := dp.Sum(nil)
	p := repeatToLen(sumDP, len(pw))

	// Step 19-20: DS, the salt-derived repeated digest.
	ds := sha512.New()
	for i := 0; i < 16+int(sumA[0]); i++ {
		ds.Write(s)
	}
	sumDS := ds.Sum(nil)
	saltSeq := repeatToLen(sumDS, len(s))

	// Step 21: the main stretching loop.
	cur := sumA
	for r := 0; r < sha512CryptRounds; r++ {
		c := sha512.New()
		if r%2 != 0 {
			c.Write(p)
		} else {
			c.Write(cur)
		}
		if r%3 != 0 {
			c.Write(saltSeq)
		}
		if r%7 != 0 {
			c.Write(p)
		}
		if r%2 != 0 {
			c.Write(cur)
		} else {
			c.Write(p)
		}
		cur = c.Sum(nil)
	}

	return encodeSha512Crypt(cur)
}

func repeatToLen(seq []byte, n int) []byte {
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = seq[i%len(seq)]
	}
	return out
}

// b64From24bit encodes three input bytes (taken msb-first, the unusual
// byte order Drepper's algorithm uses) into 4 output characters using the
// custom alphabet.
func b64From24bit(b2, b1, b0 byte, n int, out *strings.Builder) {
	w := uint32(b2)<<16 | uint32(b1)<<8 | uint32(b0)
	for i := 0; i < n; i++ {
		out.WriteByte(b64Chars[w&0x3f])
		w >>= 6
	}
}

// encodeSha512Crypt applies the permuted base64-like encoding Drepper's
// algorithm defines to the final 64-byte digest.
func encodeSha512Crypt(digest []byte) string {
	perm := [][3]int{
		{0, 21, 42}, {22, 43, 1}, {44, 2, 23}, {3, 24, 45}, {25, 46, 4},
		{47, 5, 26}, {6, 27, 48}, {28, 49, 7}, {50, 8, 29}, {9, 30, 51},
		{31, 52, 10}, {53, 11, 32}, {12, 33, 54}, {34, 55, 13}, {56, 14, 35},
		{15, 36, 57}, {37, 58, 16}, {59, 17, 38}, {18, 39, 60}, {40, 61, 19},
		{62, 20, 41},
	}
	var out strings.Builder
	for _, p := range perm {
		b64From24bit(digest[p[0]], digest[p[1]], digest[p[2]], 4, &out)
	}
	// The final byte produces the trailing two characters.
	w := uint32(digest[63])
	out.WriteByte(b64Chars[w&0x3f])
	out.WriteByte(b64Chars[(w>>6)&0x3f])

	return out.String()
}
