package organizacao

import (
	"context"
	"errors"
	"strings"

	"github.com/jorgepsendziuk/pinovara/internal/rbac"
	"github.com/jorgepsendziuk/pinovara/internal/util"
)

type store interface {
	List(ctx context.Context, f Filter) ([]Organizacao, int, error)
	Get(ctx context.Context, id int64) (Organizacao, error)
	Create(ctx context.Context, in Input) (Organizacao, error)
	Update(ctx context.Context, id int64, in Input) (Organizacao, error)
	SoftDelete(ctx context.Context, id int64) error
}

// Viewer identifica quem consulta; técnicos só enxergam as próprias organizações.
type Viewer struct {
	UserID int64
	Grants rbac.Grants
}

func (v Viewer) restricted() bool {
	return v.Grants.OnlyRole(rbac.RoleTecnico)
}

// Service contém as regras de negócio do cadastro de organizações.
type Service struct {
	repo store
}

// NewService cria uma nova instância de Service.
func NewService(repo store) *Service {
	return &Service{repo: repo}
}

// List devolve a página de organizações visíveis para o usuário.
func (s *Service) List(ctx context.Context, v Viewer, f Filter) (Page, error) {
	f.normalize()
	f.Nome = strings.TrimSpace(f.Nome)
	f.Estado = strings.TrimSpace(f.Estado)
	f.Municipio = strings.TrimSpace(f.Municipio)
	if v.restricted() {
		id := v.UserID
		f.TecnicoID = &id
	}

	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	pages := 0
	if total > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit, TotalPages: pages}, nil
}

// Get devolve a organização se ela estiver ao alcance do usuário.
func (s *Service) Get(ctx context.Context, v Viewer, id int64) (Organizacao, error) {
	if id <= 0 {
		return Organizacao{}, ErrNotFound
	}
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Organizacao{}, err
	}
	if v.restricted() && (o.IDTecnico == nil || *o.IDTecnico != v.UserID) {
		return Organizacao{}, ErrNotFound
	}
	return o, nil
}

// Create valida e cadastra. Técnico sem responsável informado vira o responsável.
func (s *Service) Create(ctx context.Context, v Viewer, in Input) (Organizacao, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return Organizacao{}, err
	}
	if v.restricted() {
		id := v.UserID
		in.IDTecnico = &id
	}
	return s.repo.Create(ctx, in)
}

// Update substitui os dados e devolve o estado anterior e o novo.
func (s *Service) Update(ctx context.Context, v Viewer, id int64, in Input) (Organizacao, Organizacao, error) {
	before, err := s.Get(ctx, v, id)
	if err != nil {
		return Organizacao{}, Organizacao{}, err
	}
	in, err = normalizeInput(in)
	if err != nil {
		return Organizacao{}, Organizacao{}, err
	}
	if v.restricted() {
		in.IDTecnico = before.IDTecnico
	}
	after, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Organizacao{}, Organizacao{}, err
	}
	return before, after, nil
}

// Delete remove logicamente e devolve o registro removido.
func (s *Service) Delete(ctx context.Context, v Viewer, id int64) (Organizacao, error) {
	before, err := s.Get(ctx, v, id)
	if err != nil {
		return Organizacao{}, err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return Organizacao{}, err
	}
	return before, nil
}

// CheckAccess confirma que a organização existe e é visível ao usuário.
func (s *Service) CheckAccess(ctx context.Context, v Viewer, id int64) error {
	_, err := s.Get(ctx, v, id)
	return err
}

func normalizeInput(in Input) (Input, error) {
	var verr util.ValidationError

	in.Nome = strings.TrimSpace(in.Nome)
	verr.Add("nome", util.RequireString(in.Nome, "nome"))

	in.CNPJ = trimmed(in.CNPJ)
	if in.CNPJ != nil {
		digits := util.OnlyDigits(*in.CNPJ)
		in.CNPJ = &digits
		verr.Add("cnpj", util.ValidateCNPJ(digits))
	}

	in.Email = trimmed(in.Email)
	if in.Email != nil {
		lower := strings.ToLower(*in.Email)
		in.Email = &lower
		verr.Add("email", util.ValidateEmail(lower))
	}

	in.Estado = trimmed(in.Estado)
	if in.Estado != nil {
		uf := strings.ToUpper(*in.Estado)
		in.Estado = &uf
		if len(uf) != 2 {
			verr.Add("estado", errors.New("estado deve ser a sigla com 2 letras"))
		}
	}

	in.Telefone = trimmed(in.Telefone)
	in.Municipio = trimmed(in.Municipio)
	in.URI = trimmed(in.URI)
	if in.IDTecnico != nil && *in.IDTecnico <= 0 {
		verr.Add("id_tecnico", errors.New("técnico inválido"))
	}

	return in, verr.Err()
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
