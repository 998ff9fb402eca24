package anexo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/jorgepsendziuk/pinovara/internal/db"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
	"github.com/jorgepsendziuk/pinovara/internal/storage"
)

// Conn é satisfeito por *pgxpool.Pool.
type Conn interface {
	repo.DBTX
	db.TxBeginner
}

// Repository persiste anexos no banco e os binários no storage.
type Repository struct {
	pool  Conn
	blobs storage.Store
	now   func() time.Time
}

// NewRepository cria o repositório de anexos.
func NewRepository(pool Conn, blobs storage.Store) *Repository {
	return &Repository{pool: pool, blobs: blobs, now: time.Now}
}

const anexoColumns = `id, id_organizacao, uri, ordem, arquivo, nome_original, content_type, tamanho, obs, criado_em, atualizado_em`

func scanAnexo(row pgx.Row) (Anexo, error) {
	var a Anexo
	err := row.Scan(&a.ID, &a.OrganizacaoID, &a.URI, &a.Ordem, &a.Arquivo, &a.NomeOriginal, &a.ContentType, &a.Tamanho, &a.Obs, &a.CriadoEm, &a.AtualizadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return Anexo{}, ErrNotFound
	}
	return a, err
}

// ExistingURIs devolve as URIs já persistidas da organização.
func (r *Repository) ExistingURIs(ctx context.Context, tipo Tipo, orgID int64) (map[string]struct{}, error) {
	table, err := tipo.table()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT uri FROM %s WHERE id_organizacao = $1 AND uri IS NOT NULL`, table), orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, err
		}
		out[uri] = struct{}{}
	}
	return out, rows.Err()
}

// List devolve os anexos da organização na ordem de exibição.
func (r *Repository) List(ctx context.Context, tipo Tipo, orgID int64) ([]Anexo, error) {
	table, err := tipo.table()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id_organizacao = $1 ORDER BY ordem, id`, anexoColumns, table), orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Anexo{}
	for rows.Next() {
		a, err := scanAnexo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get busca um anexo garantindo que pertence à organização.
func (r *Repository) Get(ctx context.Context, tipo Tipo, orgID, id int64) (Anexo, error) {
	table, err := tipo.table()
	if err != nil {
		return Anexo{}, err
	}
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND id_organizacao = $2`, anexoColumns, table), id, orgID)
	return scanAnexo(row)
}

// Create reserva a próxima ordem, grava o binário e insere a linha numa única
// transação. Qualquer falha desfaz a ordem reservada e remove o binário gravado.
func (r *Repository) Create(ctx context.Context, in NewAnexo) (Anexo, error) {
	table, err := in.Tipo.table()
	if err != nil {
		return Anexo{}, err
	}

	var (
		created Anexo
		saved   string
	)
	err = db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		ordem, err := nextOrdem(ctx, tx, in.Tipo, table, in.OrganizacaoID)
		if err != nil {
			return fmt.Errorf("reservar ordem: %w", err)
		}

		key := FileKey(in.Tipo, in.OrganizacaoID, ordem, r.now(), Extension(in.Tipo, in.ContentType, in.NomeOriginal))
		if err := r.blobs.Save(ctx, key, in.ContentType, in.Body); err != nil {
			return fmt.Errorf("gravar binário: %w: %w", ErrStorage, err)
		}
		saved = key

		row := tx.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %s (id_organizacao, uri, ordem, arquivo, nome_original, content_type, tamanho, obs)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            RETURNING %s`, table, anexoColumns),
			in.OrganizacaoID, nullable(in.URI), ordem, key, nullable(in.NomeOriginal), nullable(in.ContentType), int64(len(in.Body)), nullable(in.Obs))
		created, err = scanAnexo(row)
		if db.IsUniqueViolation(err) {
			return ErrDuplicateURI
		}
		return err
	})
	if err != nil {
		if saved != "" {
			if delErr := r.blobs.Delete(context.WithoutCancel(ctx), saved); delErr != nil {
				log.Warn().Err(delErr).Str("arquivo", saved).Msg("anexo: falha ao remover binário órfão")
			}
		}
		return Anexo{}, err
	}
	return created, nil
}

// nextOrdem incrementa a sequência da organização; a primeira reserva parte do maior ordem existente.
func nextOrdem(ctx context.Context, tx pgx.Tx, tipo Tipo, table string, orgID int64) (int, error) {
	var ordem int
	err := tx.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO organizacao_sequencia (organizacao_id, tipo, valor)
        VALUES ($1, $2, COALESCE((SELECT MAX(ordem) FROM %s WHERE id_organizacao = $1), 0) + 1)
        ON CONFLICT (organizacao_id, tipo) DO UPDATE SET valor = organizacao_sequencia.valor + 1
        RETURNING valor`, table), orgID, string(tipo)).Scan(&ordem)
	return ordem, err
}

// Delete remove a linha e depois o binário.
func (r *Repository) Delete(ctx context.Context, tipo Tipo, orgID, id int64) (Anexo, error) {
	table, err := tipo.table()
	if err != nil {
		return Anexo{}, err
	}
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND id_organizacao = $2 RETURNING %s`, table, anexoColumns), id, orgID)
	removed, err := scanAnexo(row)
	if err != nil {
		return Anexo{}, err
	}
	if err := r.blobs.Delete(ctx, removed.Arquivo); err != nil {
		log.Warn().Err(err).Str("arquivo", removed.Arquivo).Msg("anexo: binário não removido")
	}
	return removed, nil
}

// Open abre o binário do anexo para leitura.
func (r *Repository) Open(ctx context.Context, a Anexo) (io.ReadCloser, error) {
	rc, err := r.blobs.Open(ctx, a.Arquivo)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("abrir binário: %w: %w", ErrStorage, err)
	}
	return rc, nil
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
