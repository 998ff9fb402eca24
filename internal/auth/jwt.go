package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jorgepsendziuk/pinovara/internal/rbac"
)

var (
	// ErrTokenInvalid cobre assinatura, estrutura ou algoritmo incorretos.
	ErrTokenInvalid = errors.New("token inválido")
	// ErrTokenExpired indica sessão vencida.
	ErrTokenExpired = errors.New("token expirado")
)

// RoleClaim é o retrato desnormalizado de um papel dentro do token.
type RoleClaim struct {
	Role       string `json:"role"`
	ModuleID   int64  `json:"moduleId"`
	Module     string `json:"module"`
	AllModules bool   `json:"allModules,omitempty"`
}

// Claims representa as informações presentes no token de sessão.
type Claims struct {
	UserID int64       `json:"uid"`
	Email  string      `json:"email"`
	Roles  []RoleClaim `json:"roles"`
	jwt.RegisteredClaims
}

// Grants reconstrói os papéis do retrato para o modelo de permissões.
func (c *Claims) Grants() rbac.Grants {
	grants := make(rbac.Grants, 0, len(c.Roles))
	for _, r := range c.Roles {
		grants = append(grants, rbac.NewGrant(r.Role, r.ModuleID, r.Module, r.AllModules))
	}
	return grants
}

// SessionUser é o mínimo necessário para emitir uma sessão.
type SessionUser struct {
	ID    int64
	Email string
}

// SessionManager encapsula emissão e validação de tokens de sessão.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSessionManager cria o gerenciador com segredo e duração fixa.
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: ttl, issuer: "pinovara", now: time.Now}
}

// WithClock troca o relógio usado na emissão e validação.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// TTL devolve a duração configurada das sessões.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// IssueSession cria um JWT HS256 com o retrato dos papéis do usuário.
func (m *SessionManager) IssueSession(user SessionUser, grants rbac.Grants) (string, int64, error) {
	if user.ID <= 0 {
		return "", 0, errors.New("usuário inválido para sessão")
	}
	now := m.now().UTC()

	roles := make([]RoleClaim, 0, len(grants))
	for _, g := range grants {
		roles = append(roles, RoleClaim{
			Role:       g.Role,
			ModuleID:   g.ModuleID,
			Module:     g.Module,
			AllModules: g.AllModules(),
		})
	}

	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(m.ttl / time.Second), nil
}

// VerifySession verifica assinatura e expiração; qualquer defeito falha fechado.
func (m *SessionManager) VerifySession(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
