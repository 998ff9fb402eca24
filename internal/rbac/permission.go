package rbac

import "strings"

// Nomes reservados de módulos e papéis usados pelas rotas.
const (
	ModuloSistema       = "sistema"
	ModuloOrganizacoes  = "organizacoes"
	ModuloTecnicos      = "tecnicos"
	ModuloAssociados    = "associados"
	ModuloRelatorios    = "relatorios"
	ModuloQualificacoes = "qualificacoes"

	RoleAdministracao = "administracao"
	RoleGestao        = "gestao"
	RoleTecnico       = "tecnico"
)

// PermissionKind distingue permissões restritas a um módulo das globais.
type PermissionKind uint8

const (
	ModuleScoped PermissionKind = iota + 1
	AllModules
)

func (k PermissionKind) String() string {
	switch k {
	case ModuleScoped:
		return "module"
	case AllModules:
		return "all"
	default:
		return "unknown"
	}
}

// Permission é a enumeração ModuleScoped(módulo) | AllModules.
type Permission struct {
	Kind     PermissionKind
	ModuleID int64
	Module   string
}

// Grant representa um papel efetivamente atribuído ao usuário.
type Grant struct {
	Role       string     `json:"role"`
	ModuleID   int64      `json:"moduleId"`
	Module     string     `json:"module"`
	Permission Permission `json:"-"`
}

// Grants é o conjunto de papéis de um usuário.
type Grants []Grant

// PermissionFor converte a linha de papel armazenada na permissão correspondente.
func PermissionFor(moduleID int64, module string, allModules bool) Permission {
	if allModules {
		return Permission{Kind: AllModules, ModuleID: moduleID, Module: normalize(module)}
	}
	return Permission{Kind: ModuleScoped, ModuleID: moduleID, Module: normalize(module)}
}

// NewGrant monta um Grant normalizado.
func NewGrant(role string, moduleID int64, module string, allModules bool) Grant {
	return Grant{
		Role:       normalize(role),
		ModuleID:   moduleID,
		Module:     normalize(module),
		Permission: PermissionFor(moduleID, module, allModules),
	}
}

// AllModules indica se o papel vale para todos os módulos.
func (g Grant) AllModules() bool {
	return g.Permission.Kind == AllModules
}

// Authorize responde se algum papel alcança o módulo. Quando requiredRole
// não é vazio, papéis restritos ao módulo também precisam ter o mesmo nome.
func Authorize(grants Grants, module, requiredRole string) bool {
	module = normalize(module)
	requiredRole = normalize(requiredRole)
	if module == "" {
		return false
	}
	for _, g := range grants {
		switch g.Permission.Kind {
		case AllModules:
			return true
		case ModuleScoped:
			if g.Permission.Module != module {
				continue
			}
			if requiredRole == "" || g.Role == requiredRole {
				return true
			}
		}
	}
	return false
}

// AuthorizeAny libera papéis globais ou papéis do módulo presentes na lista permitida.
func AuthorizeAny(grants Grants, module string, allowedRoles []string) bool {
	module = normalize(module)
	if module == "" {
		return false
	}
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		if r = normalize(r); r != "" {
			allowed[r] = struct{}{}
		}
	}
	for _, g := range grants {
		switch g.Permission.Kind {
		case AllModules:
			return true
		case ModuleScoped:
			if g.Permission.Module != module {
				continue
			}
			if _, ok := allowed[g.Role]; ok {
				return true
			}
		}
	}
	return false
}

// CanWrite separa os dois níveis globais: gestao só enxerga, administracao altera.
// Papéis do próprio módulo sempre podem alterar.
func CanWrite(grants Grants, module string) bool {
	module = normalize(module)
	if module == "" {
		return false
	}
	for _, g := range grants {
		switch g.Permission.Kind {
		case AllModules:
			if g.Role != RoleGestao {
				return true
			}
		case ModuleScoped:
			if g.Permission.Module == module {
				return true
			}
		}
	}
	return false
}

// HasRole verifica se o usuário possui o papel em qualquer módulo.
func (gs Grants) HasRole(role string) bool {
	role = normalize(role)
	for _, g := range gs {
		if g.Role == role {
			return true
		}
	}
	return false
}

// OnlyRole indica que todos os papéis têm o mesmo nome (ex.: apenas tecnico).
func (gs Grants) OnlyRole(role string) bool {
	if len(gs) == 0 {
		return false
	}
	role = normalize(role)
	for _, g := range gs {
		if g.Role != role {
			return false
		}
	}
	return true
}

// Describe lista os papéis como "papel@modulo" para logs e respostas 403.
func (gs Grants) Describe() []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		label := g.Role + "@" + g.Module
		if g.AllModules() {
			label += "*"
		}
		out = append(out, label)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
