package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound indica que a chave não existe no armazenamento.
	ErrNotFound = errors.New("storage: objeto não encontrado")
	// ErrInvalidKey rejeita chaves vazias ou que escapam da raiz.
	ErrInvalidKey = errors.New("storage: chave inválida")
)

// Store guarda os binários dos anexos sob chaves relativas.
type Store interface {
	Save(ctx context.Context, key, contentType string, body []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey normaliza a chave e recusa caminhos absolutos ou com "..".
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
