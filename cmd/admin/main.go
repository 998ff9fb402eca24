package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jorgepsendziuk/pinovara/internal/db"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
	"github.com/jorgepsendziuk/pinovara/internal/service"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	users := service.NewUserService(repo.New(pool))

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create-user":
		if err := runCreateUser(ctx, users, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar usuário")
		}
	case "assign-role":
		if err := runAssignRole(ctx, users, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao atribuir papel")
		}
	case "roles":
		if err := runListRoles(ctx, users); err != nil {
			log.Fatal().Err(err).Msg("falha ao listar papéis")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "admin CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  admin create-user --nome \"Maria\" --email maria@pinovara.org --senha segredo")
	fmt.Fprintln(os.Stderr, "  admin assign-role --user 1 --role 1")
	fmt.Fprintln(os.Stderr, "  admin roles")
}

func runCreateUser(ctx context.Context, users *service.UserService, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		nome  = fs.String("nome", "", "nome completo")
		email = fs.String("email", "", "e-mail de acesso")
		senha = fs.String("senha", "", "senha inicial")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	created, err := users.CreateUser(ctx, service.CreateUserInput{Nome: *nome, Email: *email, Senha: *senha})
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(created, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runAssignRole(ctx context.Context, users *service.UserService, args []string) error {
	fs := flag.NewFlagSet("assign-role", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		userID = fs.Int64("user", 0, "id do usuário")
		roleID = fs.Int64("role", 0, "id do papel (veja admin roles)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 || *roleID <= 0 {
		return errors.New("user e role são obrigatórios")
	}

	role, err := users.AssignRole(ctx, *userID, *roleID)
	if err != nil {
		return err
	}
	log.Info().Int64("usuario", *userID).Str("role", role.Nome).Str("modulo", role.Modulo).Msg("papel atribuído")
	return nil
}

func runListRoles(ctx context.Context, users *service.UserService) error {
	roles, err := users.ListRoles(ctx, nil)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		fmt.Println("nenhum papel cadastrado")
		return nil
	}
	for _, r := range roles {
		fmt.Printf("%4d  %-20s %-16s todos_modulos=%t\n", r.ID, r.Nome, r.Modulo, r.TodosModulos)
	}
	return nil
}
