package hash

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes account passwords and refresh-session secrets
// alike. bcrypt salts internally, so two hashes of the same input
// never compare equal as strings.
func HashPassword(password string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

// CheckPassword reports whether password matches hash. A malformed
// stored hash compares as false, it never surfaces an error.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
