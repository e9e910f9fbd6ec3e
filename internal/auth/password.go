package auth

import "golang.org/x/crypto/bcrypt"

// dummyHash is compared against when a login names an unknown user, so the
// request spends the same bcrypt cost either way.
var dummyHash []byte

func init() {
	h, err := bcrypt.GenerateFromPassword([]byte("attendance-dummy-credential"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	dummyHash = h
}

// HashPassword derives a bcrypt hash at the default cost.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// compareDummy burns one bcrypt comparison against a fixed hash. The result
// is always a rejection; only the timing matters.
func compareDummy(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}
