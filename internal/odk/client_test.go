package odk

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/odksync"
)

func newMockClient(t *testing.T, prefixes ...string) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	c, err := New(conn, "odk_prod", prefixes, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c, mock
}

var bnColumns = []string{"_URI", "_TOP_LEVEL_AURI", "UNROOTED_FILE_PATH", "CONTENT_TYPE", "_CREATION_DATE"}

func TestListAttachmentsMergesPrefixes(t *testing.T) {
	c, mock := newMockClient(t, "ORGANIZACAO", "ORGANIZACAO_V2", "ORGANIZACAO_V3")
	created := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "odk_prod"."ORGANIZACAO_FOTO_BN"`)).
		WithArgs("uuid:org").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "odk_prod"."ORGANIZACAO_V2_FOTO_BN"`)).
		WithArgs("uuid:org").
		WillReturnRows(sqlmock.NewRows(bnColumns).
			AddRow("uuid:f1", "uuid:org", "f1.jpg", "image/jpeg", created).
			AddRow("uuid:f2", "uuid:org", "f2.jpg", "image/jpeg", nil))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "odk_prod"."ORGANIZACAO_V3_FOTO_BN"`)).
		WithArgs("uuid:org").
		WillReturnRows(sqlmock.NewRows(bnColumns).
			AddRow("uuid:f2", "uuid:org", "f2.jpg", "image/jpeg", nil).
			AddRow("uuid:f3", "uuid:org", "f3.png", "image/png", created))

	records, err := c.ListAttachments(context.Background(), anexo.TipoFoto, "uuid:org")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("esperava 3 registros deduplicados, veio %d", len(records))
	}
	if records[0].URI != "uuid:f1" || records[0].CreatedAt == nil || !records[0].CreatedAt.Equal(created) {
		t.Fatalf("primeiro registro inesperado: %+v", records[0])
	}
	if records[1].CreatedAt != nil || records[1].Source != "ORGANIZACAO_V2" {
		t.Fatalf("segundo registro inesperado: %+v", records[1])
	}
	if records[2].URI != "uuid:f3" || records[2].Source != "ORGANIZACAO_V3" {
		t.Fatalf("terceiro registro inesperado: %+v", records[2])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListAttachmentsRemoteFailure(t *testing.T) {
	c, mock := newMockClient(t, "ORGANIZACAO")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "odk_prod"."ORGANIZACAO_ARQUIVO_BN"`)).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := c.ListAttachments(context.Background(), anexo.TipoArquivo, "uuid:org")
	if !errors.Is(err, odksync.ErrRemoteUnavailable) {
		t.Fatalf("esperava ErrRemoteUnavailable, veio %v", err)
	}
}

func TestListAttachmentsNoTables(t *testing.T) {
	c, mock := newMockClient(t, "ORGANIZACAO")
	mock.ExpectQuery(regexp.QuoteMeta(`"ORGANIZACAO_FOTO_BN"`)).
		WillReturnError(&pgconn.PgError{Code: "42P01"})

	records, err := c.ListAttachments(context.Background(), anexo.TipoFoto, "uuid:org")
	if err != nil || len(records) != 0 {
		t.Fatalf("sem tabelas deveria listar vazio: %v, %v", records, err)
	}
}

func TestFetchContentJoinsParts(t *testing.T) {
	c, mock := newMockClient(t, "ORGANIZACAO")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "odk_prod"."ORGANIZACAO_FOTO_REF" r`)).
		WithArgs("uuid:f1").
		WillReturnRows(sqlmock.NewRows([]string{"VALUE"}).
			AddRow([]byte("abc")).
			AddRow([]byte("def")))

	body, err := c.FetchContent(context.Background(), anexo.TipoFoto, odksync.RemoteRecord{URI: "uuid:f1", Source: "ORGANIZACAO"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "abcdef" {
		t.Fatalf("conteúdo = %q", body)
	}
}

func TestFetchContentEmpty(t *testing.T) {
	c, mock := newMockClient(t, "ORGANIZACAO")
	mock.ExpectQuery(regexp.QuoteMeta(`"ORGANIZACAO_FOTO_BLB"`)).
		WillReturnRows(sqlmock.NewRows([]string{"VALUE"}))

	if _, err := c.FetchContent(context.Background(), anexo.TipoFoto, odksync.RemoteRecord{URI: "uuid:x", Source: "ORGANIZACAO"}); err == nil {
		t.Fatalf("anexo sem partes deveria falhar")
	}
	if _, err := c.FetchContent(context.Background(), anexo.TipoFoto, odksync.RemoteRecord{URI: "uuid:x", Source: `X"; DROP`}); err == nil {
		t.Fatalf("origem inválida deveria falhar")
	}
}

func TestNewValidatesPrefixes(t *testing.T) {
	conn, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer conn.Close()

	if _, err := New(conn, "", []string{"ok", "não-pode"}, zerolog.Nop()); err == nil {
		t.Fatalf("prefixo inválido deveria falhar")
	}
	if _, err := New(conn, "", nil, zerolog.Nop()); err == nil {
		t.Fatalf("lista vazia deveria falhar")
	}
	c, err := New(conn, "", []string{" organizacao "}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.table("ORGANIZACAO", "FOTO", "BN"); got != `"ORGANIZACAO_FOTO_BN"` {
		t.Fatalf("tabela sem schema = %s", got)
	}
}
