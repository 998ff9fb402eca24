// Package odk lê anexos enviados ao ODK Aggregate diretamente do seu banco.
//
// Cada tipo de anexo fica em três tabelas por prefixo de formulário:
// <PREFIXO>_<TIPO>_BN com os metadados, <PREFIXO>_<TIPO>_REF ligando o
// metadado às partes e <PREFIXO>_<TIPO>_BLB com o conteúdo de cada parte.
package odk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/db"
	"github.com/jorgepsendziuk/pinovara/internal/odksync"
)

var validPrefix = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Client consulta o banco do ODK em modo somente leitura.
type Client struct {
	db       *sql.DB
	schema   string
	prefixes []string
	logger   zerolog.Logger
}

// Open abre o pool do banco ODK sem exigir conexão imediata.
func Open(dsn, schema string, prefixes []string, logger zerolog.Logger) (*Client, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("odk: abrir conexão: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return New(conn, schema, prefixes, logger)
}

// New cria o cliente sobre um *sql.DB existente.
func New(conn *sql.DB, schema string, prefixes []string, logger zerolog.Logger) (*Client, error) {
	clean := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !validPrefix.MatchString(p) {
			return nil, fmt.Errorf("odk: prefixo de tabela inválido %q", p)
		}
		clean = append(clean, p)
	}
	if len(clean) == 0 {
		return nil, errors.New("odk: nenhum prefixo de tabela configurado")
	}
	return &Client{
		db:       conn,
		schema:   strings.TrimSpace(schema),
		prefixes: clean,
		logger:   logger.With().Str("component", "odk").Logger(),
	}, nil
}

// Close encerra o pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping verifica se o banco ODK responde.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: %v", odksync.ErrRemoteUnavailable, err)
	}
	return nil
}

func suffix(tipo anexo.Tipo) (string, error) {
	switch tipo {
	case anexo.TipoFoto:
		return "FOTO", nil
	case anexo.TipoArquivo:
		return "ARQUIVO", nil
	default:
		return "", anexo.ErrInvalidTipo
	}
}

func (c *Client) table(prefix, kind, part string) string {
	name := prefix + "_" + kind + "_" + part
	if c.schema == "" {
		return pgx.Identifier{name}.Sanitize()
	}
	return pgx.Identifier{c.schema, name}.Sanitize()
}

// ListAttachments percorre todos os prefixos, ignora os que não existem e
// mescla os registros deduplicando por _URI.
func (c *Client) ListAttachments(ctx context.Context, tipo anexo.Tipo, parentURI string) ([]odksync.RemoteRecord, error) {
	kind, err := suffix(tipo)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}

	var (
		out   []odksync.RemoteRecord
		seen  = make(map[string]struct{})
		found bool
	)
	for _, prefix := range c.prefixes {
		records, err := c.listPrefix(ctx, prefix, kind, parentURI)
		if db.IsUndefinedTable(err) {
			c.logger.Debug().Str("prefixo", prefix).Str("tipo", kind).Msg("tabela inexistente, prefixo ignorado")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: prefixo %s: %v", odksync.ErrRemoteUnavailable, prefix, err)
		}
		found = true
		for _, rec := range records {
			if _, dup := seen[rec.URI]; dup {
				continue
			}
			seen[rec.URI] = struct{}{}
			out = append(out, rec)
		}
	}
	if !found {
		c.logger.Warn().Str("tipo", kind).Strs("prefixos", c.prefixes).Msg("nenhuma tabela de anexos encontrada no ODK")
	}
	return out, nil
}

func (c *Client) listPrefix(ctx context.Context, prefix, kind, parentURI string) ([]odksync.RemoteRecord, error) {
	query := fmt.Sprintf(`
        SELECT "_URI", "_TOP_LEVEL_AURI", COALESCE("UNROOTED_FILE_PATH", ''), COALESCE("CONTENT_TYPE", ''), "_CREATION_DATE"
        FROM %s
        WHERE "_TOP_LEVEL_AURI" = $1
        ORDER BY "_CREATION_DATE", "_URI"`, c.table(prefix, kind, "BN"))

	rows, err := c.db.QueryContext(ctx, query, parentURI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []odksync.RemoteRecord
	for rows.Next() {
		var (
			rec     odksync.RemoteRecord
			created sql.NullTime
		)
		if err := rows.Scan(&rec.URI, &rec.ParentURI, &rec.FileName, &rec.ContentType, &created); err != nil {
			return nil, err
		}
		if created.Valid {
			t := created.Time
			rec.CreatedAt = &t
		}
		rec.Source = prefix
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FetchContent junta as partes do binário na ordem de PART.
func (c *Client) FetchContent(ctx context.Context, tipo anexo.Tipo, rec odksync.RemoteRecord) ([]byte, error) {
	kind, err := suffix(tipo)
	if err != nil {
		return nil, err
	}
	prefix := rec.Source
	if !validPrefix.MatchString(prefix) {
		return nil, fmt.Errorf("odk: origem desconhecida para %s", rec.URI)
	}

	query := fmt.Sprintf(`
        SELECT b."VALUE"
        FROM %s r
        JOIN %s b ON b."_URI" = r."_SUB_AURI"
        WHERE r."_DOM_AURI" = $1
        ORDER BY r."PART"`, c.table(prefix, kind, "REF"), c.table(prefix, kind, "BLB"))

	rows, err := c.db.QueryContext(ctx, query, rec.URI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var content []byte
	for rows.Next() {
		var part []byte
		if err := rows.Scan(&part); err != nil {
			return nil, err
		}
		content = append(content, part...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("odk: anexo %s sem conteúdo", rec.URI)
	}
	return content, nil
}
