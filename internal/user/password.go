package user

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"math/big"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultIterations matches the current werkzeug default for pbkdf2:sha256.
const DefaultIterations = 600000

const (
	saltLength    = 16
	maxIterations = 10_000_000
	saltChars     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	pbkdf2Label   = "pbkdf2"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("USER_EMPTY_PASSWORD").Errorf("password cannot be empty")

// Hasher turns plaintext passwords into digests safe to persist.
type Hasher interface {
	// Hash produces a salted digest; two calls with the same input differ.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. Malformed or
	// unsupported digests never match.
	Verify(digest, password string) bool

	// NeedsUpgrade reports whether digest should be re-hashed with the
	// current algorithm and cost.
	NeedsUpgrade(digest string) bool
}

// PBKDF2Hasher produces werkzeug compatible digests:
//
//	pbkdf2:sha256:600000$<salt>$<hex key>
//
// Legacy bcrypt digests are accepted by Verify.
type PBKDF2Hasher struct {
	iterations int
}

func NewPBKDF2Hasher(iterations int) *PBKDF2Hasher {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &PBKDF2Hasher{iterations: iterations}
}

func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt, err := randomSalt(saltLength)
	if err != nil {
		return "", oops.Code("USER_SALT_FAILED").Wrap(err)
	}
	key := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, sha256.Size, sha256.New)
	method := pbkdf2Label + ":sha256:" + strconv.Itoa(h.iterations)
	return method + "$" + salt + "$" + hex.EncodeToString(key), nil
}

func (h *PBKDF2Hasher) Verify(digest, password string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	}
	p, ok := parsePBKDF2(digest)
	if !ok {
		return false
	}
	computed := pbkdf2.Key([]byte(password), []byte(p.salt), p.iterations, len(p.key), p.hashFunc)
	return subtle.ConstantTimeCompare(computed, p.key) == 1
}

func (h *PBKDF2Hasher) NeedsUpgrade(digest string) bool {
	p, ok := parsePBKDF2(digest)
	if !ok {
		return true
	}
	return p.algorithm != "sha256" || p.iterations < h.iterations
}

type pbkdf2Digest struct {
	algorithm  string
	hashFunc   func() hash.Hash
	iterations int
	salt       string
	key        []byte
}

func parsePBKDF2(digest string) (pbkdf2Digest, bool) {
	var p pbkdf2Digest
	parts := strings.Split(digest, "$")
	if len(parts) != 3 || parts[1] == "" {
		return p, false
	}
	method := strings.Split(parts[0], ":")
	if len(method) != 3 || method[0] != pbkdf2Label {
		return p, false
	}
	switch method[1] {
	case "sha256":
		p.hashFunc = sha256.New
	case "sha512":
		p.hashFunc = sha512.New
	default:
		return p, false
	}
	iterations, err := strconv.Atoi(method[2])
	if err != nil || iterations <= 0 || iterations > maxIterations {
		return p, false
	}
	key, err := hex.DecodeString(parts[2])
	if err != nil || len(key) == 0 {
		return p, false
	}
	p.algorithm = method[1]
	p.iterations = iterations
	p.salt = parts[1]
	p.key = key
	return p, true
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func randomSalt(n int) (string, error) {
	max := big.NewInt(int64(len(saltChars)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = saltChars[idx.Int64()]
	}
	return string(out), nil
}
