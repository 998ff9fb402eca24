package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxLimit = 100

// Repository persiste e consulta audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria o repositório de auditoria.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectLogs = `
    SELECT a.id, a.acao, a.entidade, a.entidade_id, a.dados_antigos, a.dados_novos,
           a.usuario_id, u.nome, a.ip, a.user_agent, a.criado_em
    FROM audit_logs a
    LEFT JOIN usuarios u ON u.id = a.usuario_id`

// Insert grava uma linha. Linhas nunca são alteradas depois.
func (r *Repository) Insert(ctx context.Context, l Log) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO audit_logs (id, acao, entidade, entidade_id, dados_antigos, dados_novos, usuario_id, ip, user_agent, criado_em)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.Acao, l.Entidade, l.EntidadeID, l.DadosAntigos, l.DadosNovos, l.UsuarioID, l.IP, l.UserAgent, l.CriadoEm)
	return err
}

// List devolve a página filtrada, mais recentes primeiro.
func (r *Repository) List(ctx context.Context, f Filter) (Page, error) {
	f = normalize(f)
	clause, args := whereClause(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs a`+clause, args...).Scan(&total); err != nil {
		return Page{}, err
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`%s%s ORDER BY a.criado_em DESC, a.id DESC LIMIT $%d OFFSET $%d`, selectLogs, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	items, err := collect(rows, nil)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

// Each percorre todos os registros do filtro, sem paginação.
func (r *Repository) Each(ctx context.Context, f Filter, fn func(Log) error) error {
	clause, args := whereClause(f)
	rows, err := r.pool.Query(ctx, selectLogs+clause+` ORDER BY a.criado_em DESC, a.id DESC`, args...)
	if err != nil {
		return err
	}
	_, err = collect(rows, fn)
	return err
}

// Stats agrega totais por ação e entidade.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	s := Stats{PorAcao: map[string]int{}, PorEntidade: map[string]int{}}
	err := r.pool.QueryRow(ctx, `
        SELECT count(*), count(*) FILTER (WHERE criado_em >= date_trunc('day', now()))
        FROM audit_logs`).Scan(&s.Total, &s.Hoje)
	if err != nil {
		return Stats{}, err
	}
	if err := r.groupCount(ctx, "acao", s.PorAcao); err != nil {
		return Stats{}, err
	}
	if err := r.groupCount(ctx, "entidade", s.PorEntidade); err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (r *Repository) groupCount(ctx context.Context, column string, into map[string]int) error {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s, count(*) FROM audit_logs GROUP BY %s`, column, column))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		into[k] = n
	}
	return rows.Err()
}

func normalize(f Filter) Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

func whereClause(f Filter) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Acao != "" {
		add("a.acao = $%d", strings.ToUpper(f.Acao))
	}
	if f.Entidade != "" {
		add("a.entidade = $%d", f.Entidade)
	}
	if f.UsuarioID != nil {
		add("a.usuario_id = $%d", *f.UsuarioID)
	}
	if f.Inicio != nil {
		add("a.criado_em >= $%d", *f.Inicio)
	}
	if f.Fim != nil {
		add("a.criado_em < $%d", *f.Fim)
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func collect(rows pgx.Rows, fn func(Log) error) ([]Log, error) {
	defer rows.Close()
	items := []Log{}
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.Acao, &l.Entidade, &l.EntidadeID, &l.DadosAntigos, &l.DadosNovos,
			&l.UsuarioID, &l.UsuarioNome, &l.IP, &l.UserAgent, &l.CriadoEm); err != nil {
			return nil, err
		}
		if fn != nil {
			if err := fn(l); err != nil {
				return nil, err
			}
			continue
		}
		items = append(items, l)
	}
	return items, rows.Err()
}
