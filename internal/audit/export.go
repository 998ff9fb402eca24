package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"id", "criado_em", "acao", "entidade", "entidade_id", "usuario_id", "usuario_nome", "ip", "user_agent", "dados_antigos", "dados_novos"}

type source interface {
	Each(ctx context.Context, f Filter, fn func(Log) error) error
}

// ExportCSV escreve os registros do filtro em CSV, linha a linha.
func ExportCSV(ctx context.Context, src source, f Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	err := src.Each(ctx, f, func(l Log) error {
		return cw.Write(csvRecord(l))
	})
	if err != nil {
		return fmt.Errorf("exportar auditoria: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename nomeia o arquivo de exportação do dia.
func ExportFilename(now time.Time) string {
	return "audit-logs-" + now.Format("2006-01-02") + ".csv"
}

func csvRecord(l Log) []string {
	usuario := ""
	if l.UsuarioID != nil {
		usuario = strconv.FormatInt(*l.UsuarioID, 10)
	}
	return []string{
		l.ID,
		l.CriadoEm.UTC().Format(time.RFC3339),
		l.Acao,
		l.Entidade,
		deref(l.EntidadeID),
		usuario,
		deref(l.UsuarioNome),
		deref(l.IP),
		deref(l.UserAgent),
		string(l.DadosAntigos),
		string(l.DadosNovos),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
