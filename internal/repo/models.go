package repo

import (
	"time"

	"github.com/jorgepsendziuk/pinovara/internal/rbac"
)

// Usuario representa conta do sistema.
type Usuario struct {
	ID           int64     `json:"id"`
	Nome         string    `json:"nome"`
	Email        string    `json:"email"`
	SenhaHash    string    `json:"-"`
	Ativo        bool      `json:"ativo"`
	CriadoEm     time.Time `json:"criado_em"`
	AtualizadoEm time.Time `json:"atualizado_em"`
}

// Modulo é uma área funcional do sistema.
type Modulo struct {
	ID        int64   `json:"id"`
	Nome      string  `json:"nome"`
	Descricao *string `json:"descricao,omitempty"`
}

// Role é um papel nomeado dentro de um módulo.
type Role struct {
	ID           int64   `json:"id"`
	Nome         string  `json:"nome"`
	Descricao    *string `json:"descricao,omitempty"`
	ModuloID     int64   `json:"modulo_id"`
	Modulo       string  `json:"modulo"`
	TodosModulos bool    `json:"todos_modulos"`
	Ativo        bool    `json:"ativo"`
}

// Grant converte o papel armazenado em permissão avaliável.
func (r Role) Grant() rbac.Grant {
	return rbac.NewGrant(r.Nome, r.ModuloID, r.Modulo, r.TodosModulos)
}

// UsuarioComRoles agrega a conta e seus papéis para a administração.
type UsuarioComRoles struct {
	Usuario
	Roles []Role `json:"roles"`
}

// CreateUsuarioParams contém os campos de cadastro.
type CreateUsuarioParams struct {
	Nome      string
	Email     string
	SenhaHash string
	Ativo     bool
}

// UpdateUsuarioParams altera apenas os campos presentes.
type UpdateUsuarioParams struct {
	ID        int64
	Nome      *string
	Ativo     *bool
	SenhaHash *string
}
