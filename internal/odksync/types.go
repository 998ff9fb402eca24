package odksync

import (
	"context"
	"errors"
	"time"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
)

var (
	// ErrInvalidOrganization indica organização inexistente ou removida.
	ErrInvalidOrganization = errors.New("organização inválida para sincronização")
	// ErrRemoteUnavailable indica que o banco ODK não respondeu.
	ErrRemoteUnavailable = errors.New("banco ODK indisponível")
	// ErrSyncInProgress indica outra reconciliação em curso para a mesma organização.
	ErrSyncInProgress = errors.New("sincronização já em andamento para esta organização")
)

// RemoteRecord é um anexo enviado ao ODK, identificado por URI estável.
type RemoteRecord struct {
	URI         string     `json:"uri"`
	ParentURI   string     `json:"parent_uri"`
	FileName    string     `json:"nome_arquivo"`
	ContentType string     `json:"content_type"`
	CreatedAt   *time.Time `json:"criado_em,omitempty"`
	Source      string     `json:"origem"`
}

// Remote consulta o sistema de coleta. Falhas de conexão devem envolver ErrRemoteUnavailable.
type Remote interface {
	ListAttachments(ctx context.Context, tipo anexo.Tipo, parentURI string) ([]RemoteRecord, error)
	FetchContent(ctx context.Context, tipo anexo.Tipo, rec RemoteRecord) ([]byte, error)
}

// LocalStore guarda os anexos já sincronizados.
type LocalStore interface {
	ExistingURIs(ctx context.Context, tipo anexo.Tipo, orgID int64) (map[string]struct{}, error)
	Create(ctx context.Context, in anexo.NewAnexo) (anexo.Anexo, error)
}

// Organizations resolve a chave de correlação das organizações.
// CorrelationKey devolve "" quando a organização nunca foi enviada ao ODK
// e um erro que envolve repo.ErrNotFound quando ela não existe.
type Organizations interface {
	CorrelationKey(ctx context.Context, orgID int64) (string, error)
	ListCorrelated(ctx context.Context) ([]int64, error)
}

// Locker serializa reconciliações por chave.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// ItemError descreve a falha de um anexo específico.
type ItemError struct {
	URI  string `json:"uri"`
	Erro string `json:"erro"`
}

// Result resume uma reconciliação. Total = JaExistentes + Baixadas + Erros.
type Result struct {
	Total        int         `json:"total"`
	JaExistentes int         `json:"ja_existentes"`
	Baixadas     int         `json:"baixadas"`
	Erros        int         `json:"erros"`
	Detalhes     []ItemError `json:"detalhes_erros"`
}

func (r *Result) add(o Result) {
	r.Total += o.Total
	r.JaExistentes += o.JaExistentes
	r.Baixadas += o.Baixadas
	r.Erros += o.Erros
}

// PreviewItem é um candidato remoto com a indicação se já existe localmente.
type PreviewItem struct {
	RemoteRecord
	ExisteLocalmente bool `json:"existe_localmente"`
}

// OrgFailure registra a organização que não pôde ser reconciliada na rodada em massa.
type OrgFailure struct {
	OrganizacaoID int64  `json:"organizacao_id"`
	Erro          string `json:"erro"`
}

// BulkResult agrega a reconciliação de várias organizações.
type BulkResult struct {
	Tipo          anexo.Tipo `json:"tipo"`
	Organizacoes  int        `json:"organizacoes"`
	Sincronizadas int        `json:"sincronizadas"`
	Result
	Falhas []OrgFailure `json:"falhas"`
}
