package odksync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
)

type bulkRunner interface {
	ReconcileAll(ctx context.Context, tipo anexo.Tipo) (BulkResult, error)
}

// Scheduler dispara a sincronização em massa periodicamente.
type Scheduler struct {
	runner   bulkRunner
	interval time.Duration
	logger   zerolog.Logger

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler cria o agendador; intervalo inválido vira 6h.
func NewScheduler(runner bulkRunner, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger.With().Str("component", "sync-scheduler").Logger(),
		done:     make(chan struct{}),
	}
}

// Start inicia o loop. Pode ser chamado várias vezes.
func (s *Scheduler) Start(parent context.Context) {
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.cancel = cancel
		go s.runLoop(ctx)
	})
}

// Stop encerra o loop e espera a rodada em andamento terminar.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("agendador iniciado")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("agendador encerrado")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sincroniza fotos e depois arquivos de todas as organizações.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, tipo := range []anexo.Tipo{anexo.TipoFoto, anexo.TipoArquivo} {
		if ctx.Err() != nil {
			return
		}
		res, err := s.runner.ReconcileAll(ctx, tipo)
		if err != nil {
			s.logger.Error().Err(err).Str("tipo", string(tipo)).Msg("rodada periódica falhou")
			continue
		}
		s.logger.Info().
			Str("tipo", string(tipo)).
			Int("organizacoes", res.Organizacoes).
			Int("baixadas", res.Baixadas).
			Int("falhas", len(res.Falhas)).
			Msg("rodada periódica concluída")
	}
}
