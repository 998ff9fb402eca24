package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestSenhaHash(t *testing.T) {
	hash, err := HashSenha("SenhaForte123!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, err := VerificaSenha("SenhaForte123!", hash)
	if err != nil || !ok {
		t.Fatalf("senha correta deveria conferir: ok=%v err=%v", ok, err)
	}
	ok, err = VerificaSenha("errada", hash)
	if err != nil || ok {
		t.Fatalf("senha errada não deveria conferir: ok=%v err=%v", ok, err)
	}
	if PrecisaRehash(hash) {
		t.Fatalf("hash atual não deveria precisar de rehash")
	}
}

func TestSenhaBcryptHerdada(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("antiga123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	ok, err := VerificaSenha("antiga123", string(legacy))
	if err != nil || !ok {
		t.Fatalf("bcrypt deveria conferir: ok=%v err=%v", ok, err)
	}
	ok, err = VerificaSenha("outra", string(legacy))
	if err != nil || ok {
		t.Fatalf("bcrypt com senha errada: ok=%v err=%v", ok, err)
	}
	if !PrecisaRehash(string(legacy)) {
		t.Fatalf("bcrypt deveria ser migrado para argon2id")
	}
}

func TestHashFicticio(t *testing.T) {
	h := HashFicticio()
	if h != HashFicticio() {
		t.Fatalf("hash fictício deveria ser estável")
	}
	if PrecisaRehash(h) {
		t.Fatalf("hash fictício deveria usar os parâmetros atuais")
	}
	if ok, err := VerificaSenha("qualquer", h); err != nil || ok {
		t.Fatalf("senha arbitrária não deveria conferir: ok=%v err=%v", ok, err)
	}
}
