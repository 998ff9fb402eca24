package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jorgepsendziuk/pinovara/internal/migrate"
	"github.com/jorgepsendziuk/pinovara/migrations"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	_ = godotenv.Load()

	table := flag.String("table", "", "tabela de controle (padrão schema_migrations)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível abrir o banco")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	manager := migrate.NewManager(conn, migrations.FS, migrate.WithTable(*table))

	switch flag.Arg(0) {
	case "up":
		applied, err := manager.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("falha ao aplicar migrações")
		}
		if len(applied) == 0 {
			log.Info().Msg("nenhuma migração pendente")
		}
		for _, name := range applied {
			log.Info().Str("migracao", name).Msg("aplicada")
		}
	case "down":
		name, err := manager.Down(ctx)
		if errors.Is(err, migrate.ErrNothingToRollback) {
			log.Info().Msg(err.Error())
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("falha ao reverter migração")
		}
		log.Info().Str("migracao", name).Msg("revertida")
	case "status":
		statuses, err := manager.Status(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("falha ao consultar migrações")
		}
		for _, s := range statuses {
			mark := "pendente"
			if s.Applied {
				mark = "aplicada"
			}
			fmt.Printf("%-40s %s\n", s.Name, mark)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "migrate CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  migrate [--table nome] up|down|status")
}
