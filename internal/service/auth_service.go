package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jorgepsendziuk/pinovara/internal/auth"
	"github.com/jorgepsendziuk/pinovara/internal/rbac"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
)

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrAccountDisabled indica conta desativada.
	ErrAccountDisabled = errors.New("conta desativada")
	// ErrRefreshInvalid indica refresh token inválido ou expirado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
)

type authRepository interface {
	GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error)
	GetUsuarioByID(ctx context.Context, id int64) (repo.Usuario, error)
	ListRolesByUsuario(ctx context.Context, usuarioID int64) ([]repo.Role, error)
	UpdateUsuario(ctx context.Context, arg repo.UpdateUsuarioParams) (repo.Usuario, error)
	IsUsuarioAtivo(ctx context.Context, id int64) (bool, error)
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra regras de autenticação e sessões.
type AuthService struct {
	repo       authRepository
	redis      redisCommander
	sessions   *auth.SessionManager
	refreshTTL time.Duration
	verify     func(senha, hash string) (bool, error)
}

// NewAuthService cria novo serviço.
func NewAuthService(r *repo.Queries, redisClient *redis.Client, sessions *auth.SessionManager, refreshTTL time.Duration) *AuthService {
	return &AuthService{repo: r, redis: redisClient, sessions: sessions, refreshTTL: refreshTTL, verify: auth.VerificaSenha}
}

// Sessions expõe o gerenciador de sessões (útil em middlewares).
func (s *AuthService) Sessions() *auth.SessionManager {
	return s.sessions
}

// Profile descreve o usuário autenticado.
type Profile struct {
	ID         int64       `json:"id"`
	Nome       string      `json:"nome"`
	Email      string      `json:"email"`
	Ativo      bool        `json:"ativo"`
	Roles      []repo.Role `json:"roles"`
	Permissoes []string    `json:"permissoes"`
}

// LoginResult representa retorno padrão de autenticações.
type LoginResult struct {
	Token        string   `json:"token"`
	ExpiresIn    int64    `json:"expiresIn"`
	RefreshToken string   `json:"refreshToken"`
	User         *Profile `json:"user"`
}

// Login autentica por e-mail e senha.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUsuarioByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			_, _ = s.verify(password, auth.HashFicticio())
			log.Warn().Msg("login: usuário não encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.verify(password, user.SenhaHash)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("login: hash de senha ilegível")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Int64("user_id", user.ID).Msg("login: senha inválida")
		return nil, ErrInvalidCredentials
	}
	if user.Ativo && auth.PrecisaRehash(user.SenhaHash) {
		s.rehash(ctx, user.ID, password)
	}

	return s.startSession(ctx, user)
}

// rehash migra a senha para os parâmetros atuais; falha apenas gera log.
func (s *AuthService) rehash(ctx context.Context, userID int64, password string) {
	hash, err := auth.HashSenha(password)
	if err == nil {
		_, err = s.repo.UpdateUsuario(ctx, repo.UpdateUsuarioParams{ID: userID, SenhaHash: &hash})
	}
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("login: não foi possível atualizar hash da senha")
		return
	}
	log.Info().Int64("user_id", userID).Msg("login: hash da senha atualizado")
}

// Refresh troca o refresh token por uma nova sessão com papéis atualizados.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if !auth.ValidRefreshFormat(rawToken) {
		return nil, ErrRefreshInvalid
	}

	key := auth.RefreshRedisKey(auth.HashRefreshToken(rawToken))
	owner, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	userID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return nil, ErrRefreshInvalid
	}

	user, err := s.repo.GetUsuarioByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	result, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	// o token anterior não pode ser reutilizado
	if err := s.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return result, nil
}

// Logout revoga o refresh token atual. Token desconhecido não é erro.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if !auth.ValidRefreshFormat(rawToken) {
		return nil
	}
	key := auth.RefreshRedisKey(auth.HashRefreshToken(rawToken))
	if err := s.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Me retorna o perfil com os papéis atuais do banco.
func (s *AuthService) Me(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.repo.GetUsuarioByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Ativo {
		return nil, ErrAccountDisabled
	}
	roles, err := s.repo.ListRolesByUsuario(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return buildProfile(user, roles), nil
}

// UsuarioAtivo consulta o estado atual da conta, ignorando o retrato do token.
func (s *AuthService) UsuarioAtivo(ctx context.Context, userID int64) (bool, error) {
	ativo, err := s.repo.IsUsuarioAtivo(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return ativo, err
}

func (s *AuthService) startSession(ctx context.Context, user repo.Usuario) (*LoginResult, error) {
	if !user.Ativo {
		return nil, ErrAccountDisabled
	}

	roles, err := s.repo.ListRolesByUsuario(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	grants := make(rbac.Grants, 0, len(roles))
	for _, r := range roles {
		grants = append(grants, r.Grant())
	}

	token, expiresIn, err := s.sessions.IssueSession(auth.SessionUser{ID: user.ID, Email: user.Email}, grants)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	owner := strconv.FormatInt(user.ID, 10)
	if err := s.redis.Set(ctx, auth.RefreshRedisKey(refreshHash), owner, s.refreshTTL).Err(); err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:        token,
		ExpiresIn:    expiresIn,
		RefreshToken: rawRefresh,
		User:         buildProfile(user, roles),
	}, nil
}

func buildProfile(user repo.Usuario, roles []repo.Role) *Profile {
	grants := make(rbac.Grants, 0, len(roles))
	for _, r := range roles {
		grants = append(grants, r.Grant())
	}
	if roles == nil {
		roles = []repo.Role{}
	}
	return &Profile{
		ID:         user.ID,
		Nome:       user.Nome,
		Email:      user.Email,
		Ativo:      user.Ativo,
		Roles:      roles,
		Permissoes: grants.Describe(),
	}
}
