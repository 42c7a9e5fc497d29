package yespay

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// randomNumber produces the 18-digit request id YesPay expects on every
// API call.
func randomNumber() (string, error) {
	min := big.NewInt(100000000000000000)
	max := big.NewInt(999999999999999999)
	n, err := rand.Int(rand.Reader, new(big.Int).Sub(max, min))
	if err != nil {
		return "", err
	}

	n.Add(n, min)
	return n.String(), nil
}

// Hmac256 is a function to generate HMAC256 hash.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifySignature checks a received hex HMAC against the expected one
// in constant time.
func VerifySignature(body []byte, key []byte, receivedHMAC string) bool {
	expected := Hmac256(body, key)
	return hmac.Equal([]byte(receivedHMAC), []byte(expected))
}

// HashCredential bcrypt-hashes a shared webhook credential for storage.
func HashCredential(credential []byte) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(credential, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareCredential checks a presented webhook credential against its
// stored bcrypt hash.
func CompareCredential(storedHash, presented []byte) bool {
	return bcrypt.CompareHashAndPassword(storedHash, presented) == nil
}
