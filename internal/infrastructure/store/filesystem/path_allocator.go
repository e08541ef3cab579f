package filesystem

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	SourcePrefix = "source_"
	TargetPrefix = "target_"

	tokenLength        = 24
	tokenAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultMaxAttempts = 1 << 16
)

// largest multiple of len(tokenAlphabet) that fits in a byte
var tokenByteLimit = byte(256 / len(tokenAlphabet) * len(tokenAlphabet))

var ErrAllocationExhausted = errors.New("no free file name found")

// PathAllocator hands out unpredictable, collision-free file names.
// A path is reserved by creating it exclusively, so two callers can never
// receive the same name.
type PathAllocator struct {
	rand        io.Reader
	maxAttempts int
}

func NewPathAllocator() *PathAllocator {
	return &PathAllocator{rand: rand.Reader, maxAttempts: defaultMaxAttempts}
}

// Token returns a random string of tokenLength characters from tokenAlphabet.
func (a *PathAllocator) Token() (string, error) {
	out := make([]byte, 0, tokenLength)
	buf := make([]byte, tokenLength+8)
	for len(out) < tokenLength {
		if _, err := io.ReadFull(a.rand, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= tokenByteLimit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == tokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// Allocate reserves dir/<prefix><token> and returns its path. The reserved
// file is empty.
func (a *PathAllocator) Allocate(dir, prefix string) (string, error) {
	return a.allocate(func(token string) string {
		return filepath.Join(dir, prefix+token)
	})
}

func (a *PathAllocator) allocate(candidate func(token string) string) (string, error) {
	for i := 0; i < a.maxAttempts; i++ {
		token, err := a.Token()
		if err != nil {
			return "", err
		}
		path := candidate(token)
		ok, err := reserve(path)
		if err != nil {
			return "", err
		}
		if ok {
			return path, nil
		}
	}
	return "", ErrAllocationExhausted
}

// reserve creates path exclusively. It reports false if path already exists.
func reserve(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", filepath.Base(path), err)
	}
	return true, f.Close()
}
