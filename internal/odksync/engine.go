package odksync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
)

// Recorder recebe o resultado de cada reconciliação para métricas.
type Recorder interface {
	SyncFinished(tipo string, baixadas, erros int, elapsed time.Duration, failed bool)
}

// Options ajusta o comportamento do Engine.
type Options struct {
	Concurrency int
	LockTTL     time.Duration
}

// Engine reconcilia os anexos do ODK com os anexos locais de cada organização.
type Engine struct {
	remote  Remote
	local   LocalStore
	orgs    Organizations
	locker  Locker
	metrics Recorder
	logger  zerolog.Logger
	opts    Options
	now     func() time.Time
}

// NewEngine monta o engine. remote nil faz toda reconciliação falhar com ErrRemoteUnavailable.
func NewEngine(remote Remote, local LocalStore, orgs Organizations, locker Locker, metrics Recorder, logger zerolog.Logger, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Engine{
		remote:  remote,
		local:   local,
		orgs:    orgs,
		locker:  locker,
		metrics: metrics,
		logger:  logger.With().Str("component", "odksync").Logger(),
		opts:    opts,
		now:     time.Now,
	}
}

func lockKey(orgID int64, tipo anexo.Tipo) string {
	return fmt.Sprintf("pinovara:sync:%d:%s", orgID, tipo)
}

// resolve traduz a chave de correlação; "" significa organização sem envio ao ODK.
func (e *Engine) resolve(ctx context.Context, orgID int64) (string, error) {
	if orgID <= 0 {
		return "", ErrInvalidOrganization
	}
	key, err := e.orgs.CorrelationKey(ctx, orgID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrInvalidOrganization
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

func (e *Engine) list(ctx context.Context, tipo anexo.Tipo, key string) ([]RemoteRecord, error) {
	if e.remote == nil {
		return nil, ErrRemoteUnavailable
	}
	records, err := e.remote.ListAttachments(ctx, tipo, key)
	if err != nil {
		if errors.Is(err, ErrRemoteUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return records, nil
}

// Reconcile baixa do ODK os anexos que a organização ainda não possui.
// Uma vez iniciada, a execução ignora o cancelamento da requisição.
func (e *Engine) Reconcile(ctx context.Context, orgID int64, tipo anexo.Tipo) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	res := Result{Detalhes: []ItemError{}}

	if _, err := ParseKind(tipo); err != nil {
		return res, err
	}
	key, err := e.resolve(ctx, orgID)
	if err != nil {
		return res, err
	}
	if key == "" {
		e.logger.Info().Int64("organizacao_id", orgID).Str("tipo", string(tipo)).Msg("organização sem URI do ODK; nada a sincronizar")
		return res, nil
	}

	release, err := e.locker.Acquire(ctx, lockKey(orgID, tipo), e.opts.LockTTL)
	if err != nil {
		return res, err
	}
	defer release()

	start := e.now()
	res, err = e.reconcileLocked(ctx, orgID, tipo, key)
	elapsed := e.now().Sub(start)
	if e.metrics != nil {
		e.metrics.SyncFinished(string(tipo), res.Baixadas, res.Erros, elapsed, err != nil)
	}

	evt := e.logger.Info()
	if err != nil {
		evt = e.logger.Warn().Err(err)
	}
	evt.Int64("organizacao_id", orgID).
		Str("tipo", string(tipo)).
		Int("total", res.Total).
		Int("ja_existentes", res.JaExistentes).
		Int("baixadas", res.Baixadas).
		Int("erros", res.Erros).
		Dur("duracao", elapsed).
		Msg("reconciliação concluída")

	return res, err
}

func (e *Engine) reconcileLocked(ctx context.Context, orgID int64, tipo anexo.Tipo, key string) (Result, error) {
	res := Result{Detalhes: []ItemError{}}

	records, err := e.list(ctx, tipo, key)
	if err != nil {
		return res, err
	}
	existing, err := e.local.ExistingURIs(ctx, tipo, orgID)
	if err != nil {
		return res, fmt.Errorf("consultar anexos locais: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.URI == "" {
			continue
		}
		if _, dup := seen[rec.URI]; dup {
			continue
		}
		seen[rec.URI] = struct{}{}
		res.Total++

		if _, ok := existing[rec.URI]; ok {
			res.JaExistentes++
			continue
		}

		if err := e.download(ctx, orgID, tipo, rec); err != nil {
			if errors.Is(err, anexo.ErrDuplicateURI) {
				res.JaExistentes++
				continue
			}
			res.Erros++
			res.Detalhes = append(res.Detalhes, ItemError{URI: rec.URI, Erro: err.Error()})
			e.logger.Warn().Err(err).Int64("organizacao_id", orgID).Str("uri", rec.URI).Msg("falha ao sincronizar anexo")
			continue
		}
		res.Baixadas++
	}
	return res, nil
}

func (e *Engine) download(ctx context.Context, orgID int64, tipo anexo.Tipo, rec RemoteRecord) error {
	body, err := e.remote.FetchContent(ctx, tipo, rec)
	if err != nil {
		return fmt.Errorf("baixar conteúdo: %w", err)
	}
	if len(body) == 0 {
		return errors.New("conteúdo vazio no ODK")
	}
	_, err = e.local.Create(ctx, anexo.NewAnexo{
		Tipo:          tipo,
		OrganizacaoID: orgID,
		URI:           rec.URI,
		NomeOriginal:  rec.FileName,
		ContentType:   rec.ContentType,
		Body:          body,
	})
	return err
}

// Preview lista os candidatos remotos sem persistir nada.
func (e *Engine) Preview(ctx context.Context, orgID int64, tipo anexo.Tipo) ([]PreviewItem, error) {
	if _, err := ParseKind(tipo); err != nil {
		return nil, err
	}
	key, err := e.resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items := []PreviewItem{}
	if key == "" {
		return items, nil
	}
	records, err := e.list(ctx, tipo, key)
	if err != nil {
		return nil, err
	}
	existing, err := e.local.ExistingURIs(ctx, tipo, orgID)
	if err != nil {
		return nil, fmt.Errorf("consultar anexos locais: %w", err)
	}
	for _, rec := range records {
		_, ok := existing[rec.URI]
		items = append(items, PreviewItem{RemoteRecord: rec, ExisteLocalmente: ok})
	}
	return items, nil
}

// ReconcileAll percorre as organizações com URI do ODK com concorrência limitada.
// A falha de uma organização é registrada e não interrompe as demais.
func (e *Engine) ReconcileAll(ctx context.Context, tipo anexo.Tipo) (BulkResult, error) {
	ctx = context.WithoutCancel(ctx)
	bulk := BulkResult{Tipo: tipo, Result: Result{Detalhes: []ItemError{}}, Falhas: []OrgFailure{}}

	if _, err := ParseKind(tipo); err != nil {
		return bulk, err
	}
	ids, err := e.orgs.ListCorrelated(ctx)
	if err != nil {
		return bulk, fmt.Errorf("listar organizações: %w", err)
	}
	bulk.Organizacoes = len(ids)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.opts.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			res, err := e.Reconcile(ctx, id, tipo)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				bulk.Falhas = append(bulk.Falhas, OrgFailure{OrganizacaoID: id, Erro: err.Error()})
				return nil
			}
			bulk.Sincronizadas++
			bulk.add(res)
			bulk.Detalhes = append(bulk.Detalhes, res.Detalhes...)
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info().
		Str("tipo", string(tipo)).
		Int("organizacoes", bulk.Organizacoes).
		Int("falhas", len(bulk.Falhas)).
		Int("baixadas", bulk.Baixadas).
		Msg("sincronização em massa concluída")
	return bulk, nil
}

// ParseKind valida o tipo recebido pelo engine.
func ParseKind(tipo anexo.Tipo) (anexo.Tipo, error) {
	switch tipo {
	case anexo.TipoFoto, anexo.TipoArquivo:
		return tipo, nil
	default:
		return "", anexo.ErrInvalidTipo
	}
}
