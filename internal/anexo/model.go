package anexo

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/jorgepsendziuk/pinovara/internal/repo"
)

var (
	// ErrNotFound indica anexo inexistente para a organização.
	ErrNotFound = fmt.Errorf("anexo: %w", repo.ErrNotFound)
	// ErrDuplicateURI indica que a organização já possui anexo com a URI.
	ErrDuplicateURI = fmt.Errorf("anexo já sincronizado: %w", repo.ErrConflict)
	// ErrInvalidTipo rejeita tipos fora de foto/arquivo.
	ErrInvalidTipo = errors.New("tipo de anexo inválido")
	// ErrStorage envolve falhas do armazenamento de binários.
	ErrStorage = errors.New("falha no armazenamento de anexos")
)

// Tipo distingue fotos de arquivos; cada um tem tabela e sequência próprias.
type Tipo string

const (
	TipoFoto    Tipo = "foto"
	TipoArquivo Tipo = "arquivo"
)

// ParseTipo aceita o valor vindo da query string; vazio vira foto.
func ParseTipo(raw string) (Tipo, error) {
	switch Tipo(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TipoFoto:
		return TipoFoto, nil
	case TipoArquivo:
		return TipoArquivo, nil
	default:
		return "", ErrInvalidTipo
	}
}

func (t Tipo) table() (string, error) {
	switch t {
	case TipoFoto:
		return "organizacao_foto", nil
	case TipoArquivo:
		return "organizacao_arquivo", nil
	default:
		return "", ErrInvalidTipo
	}
}

// Anexo é uma foto ou arquivo persistido de uma organização.
type Anexo struct {
	ID            int64     `json:"id"`
	OrganizacaoID int64     `json:"id_organizacao"`
	URI           *string   `json:"uri,omitempty"`
	Ordem         int       `json:"ordem"`
	Arquivo       string    `json:"arquivo"`
	NomeOriginal  *string   `json:"nome_original,omitempty"`
	ContentType   *string   `json:"content_type,omitempty"`
	Tamanho       int64     `json:"tamanho"`
	Obs           *string   `json:"obs,omitempty"`
	CriadoEm      time.Time `json:"criado_em"`
	AtualizadoEm  time.Time `json:"atualizado_em"`
}

// NewAnexo descreve um anexo ainda não persistido. URI vazia indica envio manual.
type NewAnexo struct {
	Tipo          Tipo
	OrganizacaoID int64
	URI           string
	NomeOriginal  string
	ContentType   string
	Obs           string
	Body          []byte
}

var knownExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"image/heic":      "heic",
	"application/pdf": "pdf",
	"text/plain":      "txt",
	"text/csv":        "csv",
	"application/zip": "zip",
}

// Extension escolhe a extensão do arquivo pelo content type, depois pelo nome original.
func Extension(tipo Tipo, contentType, nomeOriginal string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := knownExtensions[ct]; ok {
		return ext
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(nomeOriginal)), "."); ext != "" && len(ext) <= 8 {
		return ext
	}
	if ct != "" {
		if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
			return strings.TrimPrefix(exts[0], ".")
		}
	}
	if tipo == TipoFoto {
		return "jpg"
	}
	return "bin"
}

// FileKey monta a chave do binário: organizacoes/<org>/<tipo>s/organizacao_<org>_<ordem>_<nanos>.<ext>.
func FileKey(tipo Tipo, orgID int64, ordem int, at time.Time, ext string) string {
	return fmt.Sprintf("organizacoes/%d/%ss/organizacao_%d_%d_%d.%s", orgID, tipo, orgID, ordem, at.UnixNano(), ext)
}
