package odksync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
)

type stubRemote struct {
	mu        sync.Mutex
	records   map[string][]RemoteRecord
	failFetch map[string]bool
	listErr   error
	listCalls int
	fetched   []string
}

func (s *stubRemote) ListAttachments(ctx context.Context, tipo anexo.Tipo, parentURI string) ([]RemoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.records[parentURI], nil
}

func (s *stubRemote) FetchContent(ctx context.Context, tipo anexo.Tipo, rec RemoteRecord) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFetch[rec.URI] {
		return nil, errors.New("blob corrompido")
	}
	s.fetched = append(s.fetched, rec.URI)
	return []byte("conteudo-" + rec.URI), nil
}

type stubLocal struct {
	mu      sync.Mutex
	anexos  map[int64][]anexo.Anexo
	counter map[int64]int
}

func newStubLocal() *stubLocal {
	return &stubLocal{anexos: map[int64][]anexo.Anexo{}, counter: map[int64]int{}}
}

func (s *stubLocal) seed(orgID int64, uris ...string) {
	for _, uri := range uris {
		if _, err := s.Create(context.Background(), anexo.NewAnexo{Tipo: anexo.TipoFoto, OrganizacaoID: orgID, URI: uri, Body: []byte("x")}); err != nil {
			panic(err)
		}
	}
}

func (s *stubLocal) ExistingURIs(ctx context.Context, tipo anexo.Tipo, orgID int64) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]struct{}{}
	for _, a := range s.anexos[orgID] {
		if a.URI != nil {
			out[*a.URI] = struct{}{}
		}
	}
	return out, nil
}

func (s *stubLocal) Create(ctx context.Context, in anexo.NewAnexo) (anexo.Anexo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.anexos[in.OrganizacaoID] {
		if a.URI != nil && *a.URI == in.URI {
			return anexo.Anexo{}, anexo.ErrDuplicateURI
		}
	}
	s.counter[in.OrganizacaoID]++
	uri := in.URI
	a := anexo.Anexo{
		ID:            int64(len(s.anexos[in.OrganizacaoID]) + 1),
		OrganizacaoID: in.OrganizacaoID,
		URI:           &uri,
		Ordem:         s.counter[in.OrganizacaoID],
		Tamanho:       int64(len(in.Body)),
	}
	s.anexos[in.OrganizacaoID] = append(s.anexos[in.OrganizacaoID], a)
	return a, nil
}

type stubOrgs struct {
	keys map[int64]string
}

func (s stubOrgs) CorrelationKey(ctx context.Context, orgID int64) (string, error) {
	key, ok := s.keys[orgID]
	if !ok {
		return "", fmt.Errorf("organização %d: %w", orgID, repo.ErrNotFound)
	}
	return key, nil
}

func (s stubOrgs) ListCorrelated(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id, key := range s.keys {
		if key != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, ErrSyncInProgress
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

func remoteRecords(parent string, n int) []RemoteRecord {
	out := make([]RemoteRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, RemoteRecord{
			URI:         fmt.Sprintf("uuid:foto-%d", i),
			ParentURI:   parent,
			FileName:    fmt.Sprintf("foto%d.jpg", i),
			ContentType: "image/jpeg",
		})
	}
	return out
}

func newEngine(remote Remote, local LocalStore, orgs Organizations) (*Engine, *memLocker) {
	locker := &memLocker{}
	return NewEngine(remote, local, orgs, locker, nil, zerolog.Nop(), Options{}), locker
}

func TestReconcileWithoutCorrelationKeySkipsRemote(t *testing.T) {
	remote := &stubRemote{}
	engine, _ := newEngine(remote, newStubLocal(), stubOrgs{keys: map[int64]string{1: ""}})

	res, err := engine.Reconcile(context.Background(), 1, anexo.TipoFoto)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Total != 0 || res.Baixadas != 0 || res.JaExistentes != 0 || res.Erros != 0 {
		t.Fatalf("esperava resultado zerado: %+v", res)
	}
	if remote.listCalls != 0 {
		t.Fatalf("o ODK não deveria ser consultado")
	}
}

func TestReconcileDownloadsOnlyMissing(t *testing.T) {
	remote := &stubRemote{records: map[string][]RemoteRecord{"uuid:org-7": remoteRecords("uuid:org-7", 5)}}
	local := newStubLocal()
	local.seed(7, "uuid:foto-2", "uuid:foto-4")
	engine, _ := newEngine(remote, local, stubOrgs{keys: map[int64]string{7: "uuid:org-7"}})

	res, err := engine.Reconcile(context.Background(), 7, anexo.TipoFoto)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Total != 5 || res.JaExistentes != 2 || res.Baixadas != 3 || res.Erros != 0 {
		t.Fatalf("resultado inesperado: %+v", res)
	}
	if len(remote.fetched) != 3 {
		t.Fatalf("deveria baixar apenas 3 anexos, baixou %v", remote.fetched)
	}
	for _, uri := range remote.fetched {
		if uri == "uuid:foto-2" || uri == "uuid:foto-4" {
			t.Fatalf("anexo já existente foi baixado de novo: %s", uri)
		}
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	remote := &stubRemote{records: map[string][]RemoteRecord{"k": remoteRecords("k", 4)}}
	local := newStubLocal()
	engine, _ := newEngine(remote, local, stubOrgs{keys: map[int64]string{3: "k"}})

	first, err := engine.Reconcile(context.Background(), 3, anexo.TipoFoto)
	if err != nil || first.Baixadas != 4 {
		t.Fatalf("primeira rodada: %+v, %v", first, err)
	}
	second, err := engine.Reconcile(context.Background(), 3, anexo.TipoFoto)
	if err != nil {
		t.Fatalf("segunda rodada: %v", err)
	}
	if second.Baixadas != 0 || second.JaExistentes != 4 || second.Total != 4 {
		t.Fatalf("segunda rodada deveria ser no-op: %+v", second)
	}
	if got := len(local.anexos[3]); got != 4 {
		t.Fatalf("duplicou anexos: %d", got)
	}
}

func TestReconcileAssignsContiguousOrdinals(t *testing.T) {
	remote := &stubRemote{records: map[string][]RemoteRecord{"k": remoteRecords("k", 6)}}
	local := newStubLocal()
	engine, _ := newEngine(remote, local, stubOrgs{keys: map[int64]string{9: "k"}})

	if _, err := engine.Reconcile(context.Background(), 9, anexo.TipoFoto); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	for i, a := range local.anexos[9] {
		if a.Ordem != i+1 {
			t.Fatalf("ordem %d no índice %d; esperava 1..N sem lacunas", a.Ordem, i)
		}
	}
}

func TestReconcileAbsorbsItemFailures(t *testing.T) {
	remote := &stubRemote{
		records:   map[string][]RemoteRecord{"k": remoteRecords("k", 3)},
		failFetch: map[string]bool{"uuid:foto-2": true},
	}
	engine, _ := newEngine(remote, newStubLocal(), stubOrgs{keys: map[int64]string{1: "k"}})

	res, err := engine.Reconcile(context.Background(), 1, anexo.TipoFoto)
	if err != nil {
		t.Fatalf("falha de item não deveria abortar: %v", err)
	}
	if res.Baixadas != 2 || res.Erros != 1 || len(res.Detalhes) != 1 || res.Detalhes[0].URI != "uuid:foto-2" {
		t.Fatalf("resultado inesperado: %+v", res)
	}
	if res.Total != res.JaExistentes+res.Baixadas+res.Erros {
		t.Fatalf("totais inconsistentes: %+v", res)
	}
}

func TestReconcileDedupsRemoteRecords(t *testing.T) {
	recs := remoteRecords("k", 2)
	recs = append(recs, recs[0], RemoteRecord{URI: ""})
	remote := &stubRemote{records: map[string][]RemoteRecord{"k": recs}}
	engine, _ := newEngine(remote, newStubLocal(), stubOrgs{keys: map[int64]string{1: "k"}})

	res, err := engine.Reconcile(context.Background(), 1, anexo.TipoFoto)
	if err != nil || res.Total != 2 || res.Baixadas != 2 {
		t.Fatalf("resultado inesperado: %+v, %v", res, err)
	}
}

func TestReconcileErrors(t *testing.T) {
	orgs := stubOrgs{keys: map[int64]string{1: "k"}}

	engine, _ := newEngine(&stubRemote{}, newStubLocal(), orgs)
	if _, err := engine.Reconcile(context.Background(), 99, anexo.TipoFoto); !errors.Is(err, ErrInvalidOrganization) {
		t.Fatalf("esperava ErrInvalidOrganization, veio %v", err)
	}
	if _, err := engine.Reconcile(context.Background(), 1, anexo.Tipo("video")); !errors.Is(err, anexo.ErrInvalidTipo) {
		t.Fatalf("esperava ErrInvalidTipo, veio %v", err)
	}

	down := &stubRemote{listErr: errors.New("connection refused")}
	engine, _ = newEngine(down, newStubLocal(), orgs)
	if _, err := engine.Reconcile(context.Background(), 1, anexo.TipoFoto); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("esperava ErrRemoteUnavailable, veio %v", err)
	}

	engine, _ = newEngine(nil, newStubLocal(), orgs)
	if _, err := engine.Reconcile(context.Background(), 1, anexo.TipoFoto); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("sem ODK configurado deveria ser ErrRemoteUnavailable, veio %v", err)
	}
}

func TestReconcileRejectsConcurrentRun(t *testing.T) {
	remote := &stubRemote{records: map[string][]RemoteRecord{"k": remoteRecords("k", 1)}}
	engine, locker := newEngine(remote, newStubLocal(), stubOrgs{keys: map[int64]string{1: "k"}})

	release, err := locker.Acquire(context.Background(), lockKey(1, anexo.TipoFoto), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := engine.Reconcile(context.Background(), 1, anexo.TipoFoto); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("esperava ErrSyncInProgress, veio %v", err)
	}
	release()
	if _, err := engine.Reconcile(context.Background(), 1, anexo.TipoFoto); err != nil {
		t.Fatalf("após liberar a trava deveria sincronizar: %v", err)
	}
}

func TestReconcileIgnoresCallerCancellation(t *testing.T) {
	remote := &stubRemote{records: map[string][]RemoteRecord{"k": remoteRecords("k", 2)}}
	engine, _ := newEngine(remote, newStubLocal(), stubOrgs{keys: map[int64]string{1: "k"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := engine.Reconcile(ctx, 1, anexo.TipoFoto)
	if err != nil || res.Baixadas != 2 {
		t.Fatalf("execução deveria ir até o fim: %+v, %v", res, err)
	}
}

func TestPreview(t *testing.T) {
	remote := &stubRemote{records: map[string][]RemoteRecord{"k": remoteRecords("k", 3)}}
	local := newStubLocal()
	local.seed(1, "uuid:foto-1")
	engine, _ := newEngine(remote, local, stubOrgs{keys: map[int64]string{1: "k", 2: ""}})

	items, err := engine.Preview(context.Background(), 1, anexo.TipoFoto)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(items) != 3 || !items[0].ExisteLocalmente || items[1].ExisteLocalmente {
		t.Fatalf("preview inesperado: %+v", items)
	}
	if len(local.anexos[1]) != 1 {
		t.Fatalf("preview não pode persistir")
	}

	empty, err := engine.Preview(context.Background(), 2, anexo.TipoFoto)
	if err != nil || len(empty) != 0 {
		t.Fatalf("organização sem URI deveria listar vazio: %v, %v", empty, err)
	}
}

func TestReconcileAllToleratesFailures(t *testing.T) {
	remote := &stubRemote{
		records: map[string][]RemoteRecord{
			"a": remoteRecords("a", 2),
			"b": remoteRecords("b", 3),
		},
	}
	orgs := stubOrgs{keys: map[int64]string{1: "a", 2: "b", 3: "c", 4: ""}}
	locker := &memLocker{}
	engine := NewEngine(remote, newStubLocal(), orgs, locker, nil, zerolog.Nop(), Options{Concurrency: 2})

	// organização 3 falha por trava já detida
	release, _ := locker.Acquire(context.Background(), lockKey(3, anexo.TipoFoto), time.Minute)
	defer release()

	bulk, err := engine.ReconcileAll(context.Background(), anexo.TipoFoto)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if bulk.Organizacoes != 3 || bulk.Sincronizadas != 2 || len(bulk.Falhas) != 1 || bulk.Falhas[0].OrganizacaoID != 3 {
		t.Fatalf("resultado em massa inesperado: %+v", bulk)
	}
	if bulk.Baixadas != 5 || bulk.Total != 5 {
		t.Fatalf("somatório inesperado: %+v", bulk.Result)
	}
}

type recordingMetrics struct {
	calls    int
	baixadas int
}

func (m *recordingMetrics) SyncFinished(tipo string, baixadas, erros int, elapsed time.Duration, failed bool) {
	m.calls++
	m.baixadas += baixadas
}

func TestReconcileReportsMetrics(t *testing.T) {
	remote := &stubRemote{records: map[string][]RemoteRecord{"k": remoteRecords("k", 2)}}
	rec := &recordingMetrics{}
	engine := NewEngine(remote, newStubLocal(), stubOrgs{keys: map[int64]string{1: "k"}}, &memLocker{}, rec, zerolog.Nop(), Options{})

	if _, err := engine.Reconcile(context.Background(), 1, anexo.TipoFoto); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rec.calls != 1 || rec.baixadas != 2 {
		t.Fatalf("métricas = %+v", rec)
	}
}
