package organizacao

import (
	"context"
	"errors"
	"testing"

	"github.com/jorgepsendziuk/pinovara/internal/rbac"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
	"github.com/jorgepsendziuk/pinovara/internal/util"
)

type stubStore struct {
	orgs       map[int64]Organizacao
	lastFilter Filter
	nextID     int64
}

func newStubStore(orgs ...Organizacao) *stubStore {
	s := &stubStore{orgs: map[int64]Organizacao{}, nextID: 100}
	for _, o := range orgs {
		s.orgs[o.ID] = o
	}
	return s
}

func (s *stubStore) List(ctx context.Context, f Filter) ([]Organizacao, int, error) {
	s.lastFilter = f
	var out []Organizacao
	for _, o := range s.orgs {
		if f.TecnicoID != nil && (o.IDTecnico == nil || *o.IDTecnico != *f.TecnicoID) {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func (s *stubStore) Get(ctx context.Context, id int64) (Organizacao, error) {
	o, ok := s.orgs[id]
	if !ok {
		return Organizacao{}, ErrNotFound
	}
	return o, nil
}

func (s *stubStore) Create(ctx context.Context, in Input) (Organizacao, error) {
	s.nextID++
	o := Organizacao{ID: s.nextID, Nome: in.Nome, CNPJ: in.CNPJ, Email: in.Email, Estado: in.Estado, IDTecnico: in.IDTecnico, URI: in.URI}
	s.orgs[o.ID] = o
	return o, nil
}

func (s *stubStore) Update(ctx context.Context, id int64, in Input) (Organizacao, error) {
	o := s.orgs[id]
	o.Nome = in.Nome
	o.IDTecnico = in.IDTecnico
	s.orgs[id] = o
	return o, nil
}

func (s *stubStore) SoftDelete(ctx context.Context, id int64) error {
	if _, ok := s.orgs[id]; !ok {
		return ErrNotFound
	}
	delete(s.orgs, id)
	return nil
}

func ptr[T any](v T) *T { return &v }

var (
	tecnico = Viewer{UserID: 5, Grants: rbac.Grants{rbac.NewGrant(rbac.RoleTecnico, 2, rbac.ModuloOrganizacoes, false)}}
	admin   = Viewer{UserID: 1, Grants: rbac.Grants{rbac.NewGrant(rbac.RoleAdministracao, 1, rbac.ModuloSistema, true)}}
)

func TestListRestrictsTecnico(t *testing.T) {
	store := newStubStore(
		Organizacao{ID: 1, Nome: "Coop A", IDTecnico: ptr(int64(5))},
		Organizacao{ID: 2, Nome: "Coop B", IDTecnico: ptr(int64(6))},
		Organizacao{ID: 3, Nome: "Coop C"},
	)
	svc := NewService(store)

	page, err := svc.List(context.Background(), tecnico, Filter{Limit: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != 1 {
		t.Fatalf("técnico deveria ver apenas a própria organização: %+v", page)
	}
	if store.lastFilter.Limit != maxLimit || store.lastFilter.Page != 1 {
		t.Fatalf("paginação não normalizada: %+v", store.lastFilter)
	}

	page, err = svc.List(context.Background(), admin, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("list admin: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 {
		t.Fatalf("administração deveria ver todas: %+v", page)
	}
}

func TestGetHidesOtherTecnicoOrganizations(t *testing.T) {
	svc := NewService(newStubStore(Organizacao{ID: 2, Nome: "Coop B", IDTecnico: ptr(int64(6))}))

	if _, err := svc.Get(context.Background(), tecnico, 2); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("esperava não encontrado, veio %v", err)
	}
	if _, err := svc.Get(context.Background(), admin, 2); err != nil {
		t.Fatalf("admin deveria acessar: %v", err)
	}
}

func TestCreateValidatesAndNormalizes(t *testing.T) {
	svc := NewService(newStubStore())

	_, err := svc.Create(context.Background(), admin, Input{Nome: " ", CNPJ: ptr("123"), Estado: ptr("bahia")})
	var verr *util.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("esperava ValidationError, veio %v", err)
	}
	for _, field := range []string{"nome", "cnpj", "estado"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("campo %s deveria ser rejeitado: %v", field, verr.Fields)
		}
	}

	o, err := svc.Create(context.Background(), tecnico, Input{
		Nome:   " Cooperativa Sertão ",
		CNPJ:   ptr("11.222.333/0001-81"),
		Email:  ptr(" Contato@Coop.org "),
		Estado: ptr("ba"),
		URI:    ptr("  "),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Nome != "Cooperativa Sertão" || *o.CNPJ != "11222333000181" || *o.Email != "contato@coop.org" || *o.Estado != "BA" {
		t.Fatalf("normalização incorreta: %+v", o)
	}
	if o.URI != nil {
		t.Fatalf("uri em branco deveria virar nula")
	}
	if o.IDTecnico == nil || *o.IDTecnico != tecnico.UserID {
		t.Fatalf("técnico deveria ser o responsável")
	}
}

func TestUpdateKeepsTecnicoOwnership(t *testing.T) {
	store := newStubStore(Organizacao{ID: 1, Nome: "Coop A", IDTecnico: ptr(int64(5))})
	svc := NewService(store)

	before, after, err := svc.Update(context.Background(), tecnico, 1, Input{Nome: "Coop A2", IDTecnico: ptr(int64(9))})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if before.Nome != "Coop A" || after.Nome != "Coop A2" {
		t.Fatalf("antes/depois incorretos: %+v / %+v", before, after)
	}
	if *after.IDTecnico != 5 {
		t.Fatalf("técnico não pode transferir a organização")
	}
}

func TestDelete(t *testing.T) {
	svc := NewService(newStubStore(Organizacao{ID: 1, Nome: "Coop A"}))
	if _, err := svc.Delete(context.Background(), admin, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Delete(context.Background(), admin, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("segunda remoção deveria ser não encontrado: %v", err)
	}
}
