package repo

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jorgepsendziuk/pinovara/internal/db"
)

// DBTX é satisfeito pelo pool e por transações.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries reúne o acesso a usuários, módulos e papéis.
type Queries struct {
	db DBTX
}

// New cria Queries sobre um pool ou transação.
func New(conn DBTX) *Queries {
	return &Queries{db: conn}
}

const usuarioColumns = `id, nome, email, senha_hash, ativo, criado_em, atualizado_em`

func scanUsuario(row pgx.Row) (Usuario, error) {
	var u Usuario
	if err := row.Scan(&u.ID, &u.Nome, &u.Email, &u.SenhaHash, &u.Ativo, &u.CriadoEm, &u.AtualizadoEm); err != nil {
		return Usuario{}, notFound(err)
	}
	return u, nil
}

// GetUsuarioByEmail busca conta pelo e-mail normalizado.
func (q *Queries) GetUsuarioByEmail(ctx context.Context, email string) (Usuario, error) {
	row := q.db.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	return scanUsuario(row)
}

// GetUsuarioByID busca conta pelo identificador.
func (q *Queries) GetUsuarioByID(ctx context.Context, id int64) (Usuario, error) {
	row := q.db.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE id = $1`, id)
	return scanUsuario(row)
}

// ListUsuarios devolve todas as contas ordenadas por nome.
func (q *Queries) ListUsuarios(ctx context.Context) ([]Usuario, error) {
	rows, err := q.db.Query(ctx, `SELECT `+usuarioColumns+` FROM usuarios ORDER BY nome, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateUsuario insere a conta; e-mail repetido vira ErrConflict.
func (q *Queries) CreateUsuario(ctx context.Context, arg CreateUsuarioParams) (Usuario, error) {
	row := q.db.QueryRow(ctx, `
        INSERT INTO usuarios (nome, email, senha_hash, ativo)
        VALUES ($1, $2, $3, $4)
        RETURNING `+usuarioColumns,
		strings.TrimSpace(arg.Nome), strings.ToLower(strings.TrimSpace(arg.Email)), arg.SenhaHash, arg.Ativo)
	u, err := scanUsuario(row)
	if db.IsUniqueViolation(err) {
		return Usuario{}, ErrConflict
	}
	return u, err
}

// UpdateUsuario aplica alterações parciais.
func (q *Queries) UpdateUsuario(ctx context.Context, arg UpdateUsuarioParams) (Usuario, error) {
	row := q.db.QueryRow(ctx, `
        UPDATE usuarios
        SET nome = COALESCE($2, nome),
            ativo = COALESCE($3, ativo),
            senha_hash = COALESCE($4, senha_hash),
            atualizado_em = now()
        WHERE id = $1
        RETURNING `+usuarioColumns,
		arg.ID, arg.Nome, arg.Ativo, arg.SenhaHash)
	return scanUsuario(row)
}

// IsUsuarioAtivo consulta o estado atual da conta, sem cache.
func (q *Queries) IsUsuarioAtivo(ctx context.Context, id int64) (bool, error) {
	var ativo bool
	err := q.db.QueryRow(ctx, `SELECT ativo FROM usuarios WHERE id = $1`, id).Scan(&ativo)
	return ativo, notFound(err)
}

// ListModulos devolve os módulos cadastrados.
func (q *Queries) ListModulos(ctx context.Context) ([]Modulo, error) {
	rows, err := q.db.Query(ctx, `SELECT id, nome, descricao FROM modulos ORDER BY nome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Modulo
	for rows.Next() {
		var m Modulo
		if err := rows.Scan(&m.ID, &m.Nome, &m.Descricao); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const roleSelect = `
        SELECT r.id, r.nome, r.descricao, r.modulo_id, m.nome, r.todos_modulos, r.ativo
        FROM roles r
        JOIN modulos m ON m.id = r.modulo_id`

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	if err := row.Scan(&r.ID, &r.Nome, &r.Descricao, &r.ModuloID, &r.Modulo, &r.TodosModulos, &r.Ativo); err != nil {
		return Role{}, notFound(err)
	}
	return r, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	var out []Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRoles devolve os papéis, opcionalmente de um único módulo.
func (q *Queries) ListRoles(ctx context.Context, moduloID *int64) ([]Role, error) {
	rows, err := q.db.Query(ctx, roleSelect+`
        WHERE ($1::bigint IS NULL OR r.modulo_id = $1)
        ORDER BY m.nome, r.nome`, moduloID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// GetRoleByID busca papel pelo identificador.
func (q *Queries) GetRoleByID(ctx context.Context, id int64) (Role, error) {
	return scanRole(q.db.QueryRow(ctx, roleSelect+` WHERE r.id = $1`, id))
}

// ListRolesByUsuario devolve os papéis ativos do usuário.
func (q *Queries) ListRolesByUsuario(ctx context.Context, usuarioID int64) ([]Role, error) {
	rows, err := q.db.Query(ctx, roleSelect+`
        JOIN usuario_roles ur ON ur.role_id = r.id
        WHERE ur.usuario_id = $1 AND r.ativo
        ORDER BY r.todos_modulos DESC, m.nome, r.nome`, usuarioID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// AssignRole vincula papel ao usuário. Vínculo repetido vira ErrConflict e
// usuário ou papel inexistente vira ErrNotFound.
func (q *Queries) AssignRole(ctx context.Context, usuarioID, roleID int64) error {
	_, err := q.db.Exec(ctx, `INSERT INTO usuario_roles (usuario_id, role_id) VALUES ($1, $2)`, usuarioID, roleID)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return ErrConflict
	case db.IsForeignKeyViolation(err):
		return ErrNotFound
	default:
		return err
	}
}

// RevokeRole remove o vínculo; ausência vira ErrNotFound.
func (q *Queries) RevokeRole(ctx context.Context, usuarioID, roleID int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM usuario_roles WHERE usuario_id = $1 AND role_id = $2`, usuarioID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
