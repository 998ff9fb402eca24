package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Ações registradas no log de auditoria.
const (
	AcaoCreate     = "CREATE"
	AcaoUpdate     = "UPDATE"
	AcaoDelete     = "DELETE"
	AcaoLogin      = "LOGIN"
	AcaoSync       = "SYNC"
	AcaoAssignRole = "ASSIGN_ROLE"
	AcaoRevokeRole = "REVOKE_ROLE"
)

// Entry é o evento que o chamador quer registrar.
type Entry struct {
	Acao         string
	Entidade     string
	EntidadeID   string
	DadosAntigos any
	DadosNovos   any
	UsuarioID    *int64
	IP           string
	UserAgent    string
}

// Log é a linha persistida, somente anexada.
type Log struct {
	ID           string          `json:"id"`
	Acao         string          `json:"acao"`
	Entidade     string          `json:"entidade"`
	EntidadeID   *string         `json:"entidade_id,omitempty"`
	DadosAntigos json.RawMessage `json:"dados_antigos,omitempty"`
	DadosNovos   json.RawMessage `json:"dados_novos,omitempty"`
	UsuarioID    *int64          `json:"usuario_id,omitempty"`
	UsuarioNome  *string         `json:"usuario_nome,omitempty"`
	IP           *string         `json:"ip,omitempty"`
	UserAgent    *string         `json:"user_agent,omitempty"`
	CriadoEm     time.Time       `json:"criado_em"`
}

// Filter restringe consultas e exportação.
type Filter struct {
	Acao      string
	Entidade  string
	UsuarioID *int64
	Inicio    *time.Time
	Fim       *time.Time
	Page      int
	Limit     int
}

// Page é uma página de registros.
type Page struct {
	Items      []Log `json:"items"`
	Total      int   `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// Stats resume o volume do log.
type Stats struct {
	Total       int            `json:"total"`
	Hoje        int            `json:"hoje"`
	PorAcao     map[string]int `json:"por_acao"`
	PorEntidade map[string]int `json:"por_entidade"`
}

// Actor descreve quem fez a requisição.
type Actor struct {
	UserID    int64
	IP        string
	UserAgent string
}

type actorKey struct{}

// ContextWithActor guarda o autor para registros feitos durante a requisição.
func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext recupera o autor da requisição, se houver.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
