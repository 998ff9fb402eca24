package organizacao

import (
	"fmt"
	"time"

	"github.com/jorgepsendziuk/pinovara/internal/repo"
)

// ErrNotFound indica organização inexistente, removida ou fora do alcance do usuário.
var ErrNotFound = fmt.Errorf("organização: %w", repo.ErrNotFound)

// Organizacao representa cooperativa ou associação acompanhada.
type Organizacao struct {
	ID           int64      `json:"id"`
	Nome         string     `json:"nome"`
	CNPJ         *string    `json:"cnpj,omitempty"`
	Telefone     *string    `json:"telefone,omitempty"`
	Email        *string    `json:"email,omitempty"`
	Estado       *string    `json:"estado,omitempty"`
	Municipio    *string    `json:"municipio,omitempty"`
	DataVisita   *time.Time `json:"data_visita,omitempty"`
	URI          *string    `json:"uri,omitempty"`
	IDTecnico    *int64     `json:"id_tecnico,omitempty"`
	CriadoEm     time.Time  `json:"criado_em"`
	AtualizadoEm time.Time  `json:"atualizado_em"`
}

// Input contém os campos editáveis de uma organização.
type Input struct {
	Nome       string     `json:"nome"`
	CNPJ       *string    `json:"cnpj"`
	Telefone   *string    `json:"telefone"`
	Email      *string    `json:"email"`
	Estado     *string    `json:"estado"`
	Municipio  *string    `json:"municipio"`
	DataVisita *time.Time `json:"data_visita"`
	URI        *string    `json:"uri"`
	IDTecnico  *int64     `json:"id_tecnico"`
}

// Filter restringe a listagem. TecnicoID limita às organizações do técnico.
type Filter struct {
	Nome      string
	Estado    string
	Municipio string
	TecnicoID *int64
	Page      int
	Limit     int
}

// Page é uma página da listagem.
type Page struct {
	Items      []Organizacao `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func (f *Filter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
}
