package auth

import (
	"errors"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// Parâmetros Argon2id das senhas novas; ficam gravados no próprio hash.
var senhaParams = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashSenha gera o hash Argon2id de uma senha.
func HashSenha(senha string) (string, error) {
	return argon2id.CreateHash(senha, senhaParams)
}

var (
	ficticioOnce sync.Once
	ficticioHash string
)

// HashFicticio devolve um hash Argon2id fixo com os parâmetros atuais. Logins de
// e-mail inexistente verificam contra ele para custar o mesmo que uma senha errada.
func HashFicticio() string {
	ficticioOnce.Do(func() {
		h, err := HashSenha("pinovara-hash-ficticio")
		if err != nil {
			panic(err)
		}
		ficticioHash = h
	})
	return ficticioHash
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

// VerificaSenha compara a senha com o hash armazenado.
// Aceita Argon2id e os hashes bcrypt herdados da base importada.
func VerificaSenha(senha, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(senha))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	}
	return argon2id.ComparePasswordAndHash(senha, encodedHash)
}

// PrecisaRehash indica hash bcrypt ou Argon2id com parâmetros diferentes dos atuais.
func PrecisaRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	p, _, _, err := argon2id.DecodeHash(encodedHash)
	if err != nil {
		return true
	}
	return p.Memory != senhaParams.Memory || p.Iterations != senhaParams.Iterations ||
		p.Parallelism != senhaParams.Parallelism || p.KeyLength != senhaParams.KeyLength
}
