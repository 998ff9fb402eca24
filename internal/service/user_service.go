package service

import (
	"context"
	"strings"

	"github.com/jorgepsendziuk/pinovara/internal/auth"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
	"github.com/jorgepsendziuk/pinovara/internal/util"
)

type userRepository interface {
	ListUsuarios(ctx context.Context) ([]repo.Usuario, error)
	GetUsuarioByID(ctx context.Context, id int64) (repo.Usuario, error)
	CreateUsuario(ctx context.Context, arg repo.CreateUsuarioParams) (repo.Usuario, error)
	UpdateUsuario(ctx context.Context, arg repo.UpdateUsuarioParams) (repo.Usuario, error)
	ListModulos(ctx context.Context) ([]repo.Modulo, error)
	ListRoles(ctx context.Context, moduloID *int64) ([]repo.Role, error)
	GetRoleByID(ctx context.Context, id int64) (repo.Role, error)
	ListRolesByUsuario(ctx context.Context, usuarioID int64) ([]repo.Role, error)
	AssignRole(ctx context.Context, usuarioID, roleID int64) error
	RevokeRole(ctx context.Context, usuarioID, roleID int64) error
}

// UserService centraliza a administração de usuários e papéis.
type UserService struct {
	repo userRepository
}

// NewUserService cria nova instância do serviço.
func NewUserService(r *repo.Queries) *UserService {
	return &UserService{repo: r}
}

// CreateUserInput traz os dados de cadastro; a senha chega em texto puro.
type CreateUserInput struct {
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Senha string `json:"senha"`
	Ativo *bool  `json:"ativo"`
}

// UpdateUserInput altera apenas os campos enviados.
type UpdateUserInput struct {
	Nome  *string `json:"nome"`
	Ativo *bool   `json:"ativo"`
	Senha *string `json:"senha"`
}

// ListUsers retorna os usuários com seus papéis.
func (s *UserService) ListUsers(ctx context.Context) ([]repo.UsuarioComRoles, error) {
	users, err := s.repo.ListUsuarios(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]repo.UsuarioComRoles, 0, len(users))
	for _, u := range users {
		roles, err := s.repo.ListRolesByUsuario(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, repo.UsuarioComRoles{Usuario: u, Roles: nonNilRoles(roles)})
	}
	return out, nil
}

// GetUser busca um usuário com seus papéis.
func (s *UserService) GetUser(ctx context.Context, id int64) (repo.UsuarioComRoles, error) {
	u, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		return repo.UsuarioComRoles{}, err
	}
	roles, err := s.repo.ListRolesByUsuario(ctx, id)
	if err != nil {
		return repo.UsuarioComRoles{}, err
	}
	return repo.UsuarioComRoles{Usuario: u, Roles: nonNilRoles(roles)}, nil
}

// CreateUser valida e cadastra o usuário (ativo por padrão).
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (repo.Usuario, error) {
	in.Nome = strings.TrimSpace(in.Nome)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	var verr util.ValidationError
	verr.Add("nome", util.RequireString(in.Nome, "nome"))
	verr.Add("email", util.ValidateEmail(in.Email))
	verr.Add("senha", util.ValidatePassword(in.Senha))
	if err := verr.Err(); err != nil {
		return repo.Usuario{}, err
	}

	hash, err := auth.HashSenha(in.Senha)
	if err != nil {
		return repo.Usuario{}, err
	}
	ativo := true
	if in.Ativo != nil {
		ativo = *in.Ativo
	}
	return s.repo.CreateUsuario(ctx, repo.CreateUsuarioParams{
		Nome:      in.Nome,
		Email:     in.Email,
		SenhaHash: hash,
		Ativo:     ativo,
	})
}

// UpdateUser altera nome, estado ou senha e devolve (antes, depois).
func (s *UserService) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (repo.Usuario, repo.Usuario, error) {
	before, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		return repo.Usuario{}, repo.Usuario{}, err
	}

	params := repo.UpdateUsuarioParams{ID: id, Ativo: in.Ativo}
	var verr util.ValidationError
	if in.Nome != nil {
		nome := strings.TrimSpace(*in.Nome)
		verr.Add("nome", util.RequireString(nome, "nome"))
		params.Nome = &nome
	}
	if in.Senha != nil {
		verr.Add("senha", util.ValidatePassword(*in.Senha))
	}
	if err := verr.Err(); err != nil {
		return repo.Usuario{}, repo.Usuario{}, err
	}
	if in.Senha != nil {
		hash, err := auth.HashSenha(*in.Senha)
		if err != nil {
			return repo.Usuario{}, repo.Usuario{}, err
		}
		params.SenhaHash = &hash
	}

	after, err := s.repo.UpdateUsuario(ctx, params)
	if err != nil {
		return repo.Usuario{}, repo.Usuario{}, err
	}
	return before, after, nil
}

// ListModules lista os módulos do sistema.
func (s *UserService) ListModules(ctx context.Context) ([]repo.Modulo, error) {
	return s.repo.ListModulos(ctx)
}

// ListRoles lista papéis, opcionalmente de um único módulo.
func (s *UserService) ListRoles(ctx context.Context, moduloID *int64) ([]repo.Role, error) {
	return s.repo.ListRoles(ctx, moduloID)
}

// AssignRole vincula o papel ao usuário e devolve o papel vinculado.
func (s *UserService) AssignRole(ctx context.Context, userID, roleID int64) (repo.Role, error) {
	if _, err := s.repo.GetUsuarioByID(ctx, userID); err != nil {
		return repo.Role{}, err
	}
	role, err := s.repo.GetRoleByID(ctx, roleID)
	if err != nil {
		return repo.Role{}, err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return repo.Role{}, err
	}
	return role, nil
}

// RevokeRole remove o vínculo entre usuário e papel.
func (s *UserService) RevokeRole(ctx context.Context, userID, roleID int64) error {
	return s.repo.RevokeRole(ctx, userID, roleID)
}

func nonNilRoles(roles []repo.Role) []repo.Role {
	if roles == nil {
		return []repo.Role{}
	}
	return roles
}
