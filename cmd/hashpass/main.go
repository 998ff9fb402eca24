package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jorgepsendziuk/pinovara/internal/auth"
)

// hashpass imprime o hash Argon2id de uma senha, para semear usuários direto no banco.
// Sem argumento lê a senha da entrada padrão, evitando que ela fique no histórico do shell.
func main() {
	senha, err := readSenha()
	if err != nil {
		fmt.Fprintf(os.Stderr, "erro ao ler senha: %v\n", err)
		os.Exit(1)
	}
	if senha == "" {
		fmt.Fprintln(os.Stderr, "uso: hashpass <senha>  ou  echo senha | hashpass")
		os.Exit(1)
	}

	hash, err := auth.HashSenha(senha)
	if err != nil {
		fmt.Fprintf(os.Stderr, "erro ao gerar hash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func readSenha() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimRight(line, "\r\n"), nil
}
