package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

const (
	refreshPrefix   = "pnv_"
	refreshBytes    = 32
	refreshKeySpace = "pinovara:refresh:"
)

// GenerateRefreshToken cria o token opaco entregue ao cliente e o hash guardado no Redis.
func GenerateRefreshToken() (raw string, hashed string, err error) {
	buf := make([]byte, refreshBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = refreshPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashRefreshToken(raw), nil
}

// ValidRefreshFormat descarta tokens malformados sem consultar o Redis.
func ValidRefreshFormat(raw string) bool {
	body, ok := strings.CutPrefix(raw, refreshPrefix)
	if !ok {
		return false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil && len(decoded) == refreshBytes
}

// HashRefreshToken produz o SHA-256 do token em base64.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RefreshRedisKey monta a chave que guarda o dono do refresh.
func RefreshRedisKey(hash string) string {
	return refreshKeySpace + hash
}
