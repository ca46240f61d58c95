package room

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// newOwnerToken 生成房主凭证，只保存其 bcrypt 哈希。
func newOwnerToken(cost int) (token string, hash []byte, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	token = hex.EncodeToString(buf)
	hash, err = bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", nil, err
	}
	return token, hash, nil
}

func verifyOwnerToken(hash []byte, token string) error {
	if token == "" {
		return ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredential
		}
		return err
	}
	return nil
}
