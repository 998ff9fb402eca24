package organizacao

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jorgepsendziuk/pinovara/internal/db"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
)

// Repository provê acesso ao armazenamento de organizações.
type Repository struct {
	pool repo.DBTX
}

// NewRepository cria um novo repositório de organizações.
func NewRepository(pool repo.DBTX) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, nome, cnpj, telefone, email, estado, municipio, data_visita, uri, id_tecnico, criado_em, atualizado_em`

func scanOrganizacao(row pgx.Row) (Organizacao, error) {
	var o Organizacao
	err := row.Scan(&o.ID, &o.Nome, &o.CNPJ, &o.Telefone, &o.Email, &o.Estado, &o.Municipio, &o.DataVisita, &o.URI, &o.IDTecnico, &o.CriadoEm, &o.AtualizadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organizacao{}, ErrNotFound
	}
	return o, err
}

func mapWriteErr(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return fmt.Errorf("uri do ODK já vinculada a outra organização: %w", repo.ErrConflict)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("técnico informado não existe: %w", repo.ErrNotFound)
	default:
		return err
	}
}

// List devolve a página filtrada e o total de registros.
func (r *Repository) List(ctx context.Context, f Filter) ([]Organizacao, int, error) {
	where := []string{"NOT removido"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Nome != "" {
		add("nome ILIKE $%d", "%"+f.Nome+"%")
	}
	if f.Estado != "" {
		add("estado = $%d", strings.ToUpper(f.Estado))
	}
	if f.Municipio != "" {
		add("municipio ILIKE $%d", f.Municipio)
	}
	if f.TecnicoID != nil {
		add("id_tecnico = $%d", *f.TecnicoID)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM organizacoes WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT %s FROM organizacoes WHERE %s ORDER BY nome, id LIMIT $%d OFFSET $%d`, columns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []Organizacao{}
	for rows.Next() {
		o, err := scanOrganizacao(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

// Get busca organização ativa pelo identificador.
func (r *Repository) Get(ctx context.Context, id int64) (Organizacao, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM organizacoes WHERE id = $1 AND NOT removido`, id)
	return scanOrganizacao(row)
}

// Create insere a organização.
func (r *Repository) Create(ctx context.Context, in Input) (Organizacao, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO organizacoes (nome, cnpj, telefone, email, estado, municipio, data_visita, uri, id_tecnico)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+columns,
		in.Nome, in.CNPJ, in.Telefone, in.Email, in.Estado, in.Municipio, in.DataVisita, in.URI, in.IDTecnico)
	o, err := scanOrganizacao(row)
	return o, mapWriteErr(err)
}

// Update substitui os campos editáveis.
func (r *Repository) Update(ctx context.Context, id int64, in Input) (Organizacao, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE organizacoes
        SET nome = $2, cnpj = $3, telefone = $4, email = $5, estado = $6, municipio = $7,
            data_visita = $8, uri = $9, id_tecnico = $10, atualizado_em = now()
        WHERE id = $1 AND NOT removido
        RETURNING `+columns,
		id, in.Nome, in.CNPJ, in.Telefone, in.Email, in.Estado, in.Municipio, in.DataVisita, in.URI, in.IDTecnico)
	o, err := scanOrganizacao(row)
	return o, mapWriteErr(err)
}

// SoftDelete marca a organização como removida.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE organizacoes SET removido = TRUE, atualizado_em = now() WHERE id = $1 AND NOT removido`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CorrelationKey devolve a URI do ODK; "" quando a organização nunca foi enviada.
func (r *Repository) CorrelationKey(ctx context.Context, id int64) (string, error) {
	var uri *string
	err := r.pool.QueryRow(ctx, `SELECT uri FROM organizacoes WHERE id = $1 AND NOT removido`, id).Scan(&uri)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil || uri == nil {
		return "", err
	}
	return *uri, nil
}

// ListCorrelated devolve as organizações ativas com URI do ODK.
func (r *Repository) ListCorrelated(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM organizacoes WHERE NOT removido AND uri IS NOT NULL AND uri <> '' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
