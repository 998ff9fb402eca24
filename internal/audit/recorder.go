package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jorgepsendziuk/pinovara/internal/util"
)

type writer interface {
	Insert(ctx context.Context, l Log) error
}

// Counter recebe o resultado de cada gravação.
type Counter interface {
	AuditWrite(ok bool)
}

// Recorder grava o log de auditoria em segundo plano. Falhas nunca chegam ao chamador.
type Recorder struct {
	w       writer
	counter Counter
	logger  zerolog.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewRecorder cria o gravador. counter pode ser nil.
func NewRecorder(w writer, counter Counter, logger zerolog.Logger) *Recorder {
	return &Recorder{
		w:       w,
		counter: counter,
		logger:  logger.With().Str("component", "audit").Logger(),
		timeout: 5 * time.Second,
		now:     util.Now,
	}
}

// Record monta a linha imediatamente e grava sem bloquear a requisição.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	l := r.build(ctx, e)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		err := r.w.Insert(writeCtx, l)
		if r.counter != nil {
			r.counter.AuditWrite(err == nil)
		}
		if err != nil {
			r.logger.Error().Err(err).
				Str("acao", l.Acao).
				Str("entidade", l.Entidade).
				Msg("falha ao gravar auditoria")
		}
	}()
}

// Close espera as gravações pendentes.
func (r *Recorder) Close() {
	r.wg.Wait()
}

func (r *Recorder) build(ctx context.Context, e Entry) Log {
	l := Log{
		ID:           util.NewULID(),
		Acao:         strings.ToUpper(strings.TrimSpace(e.Acao)),
		Entidade:     strings.TrimSpace(e.Entidade),
		EntidadeID:   optional(e.EntidadeID),
		DadosAntigos: r.snapshot(e.DadosAntigos),
		DadosNovos:   r.snapshot(e.DadosNovos),
		UsuarioID:    e.UsuarioID,
		IP:           optional(e.IP),
		UserAgent:    optional(e.UserAgent),
		CriadoEm:     r.now(),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		if l.UsuarioID == nil && actor.UserID > 0 {
			id := actor.UserID
			l.UsuarioID = &id
		}
		if l.IP == nil {
			l.IP = optional(actor.IP)
		}
		if l.UserAgent == nil {
			l.UserAgent = optional(actor.UserAgent)
		}
	}
	return l
}

func (r *Recorder) snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn().Err(err).Msg("dados de auditoria não serializáveis")
		return nil
	}
	return raw
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
