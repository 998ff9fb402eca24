package repo

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound é retornado quando nenhum registro é encontrado.
	ErrNotFound = errors.New("registro não encontrado")
	// ErrConflict indica violação de unicidade (e-mail repetido, papel já atribuído).
	ErrConflict = errors.New("registro já existe")
)

// notFound traduz pgx.ErrNoRows em ErrNotFound e preserva os demais erros.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
