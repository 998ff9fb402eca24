package util

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

// ValidateEmail retorna erro para e-mails inválidos.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email obrigatório")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("email inválido")
	}
	return nil
}

// ValidatePassword verifica requisitos mínimos de senha.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("senha deve ter pelo menos 8 caracteres")
	}
	return nil
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}

// OnlyDigits remove pontuação de documentos como CNPJ e telefone.
func OnlyDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCNPJ confere tamanho e dígitos verificadores de um CNPJ.
func ValidateCNPJ(cnpj string) error {
	digits := OnlyDigits(cnpj)
	if len(digits) != 14 {
		return errors.New("cnpj deve ter 14 dígitos")
	}
	if strings.Count(digits, string(digits[0])) == 14 {
		return errors.New("cnpj inválido")
	}
	calc := func(length int) byte {
		weights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}[13-length:]
		sum := 0
		for i := 0; i < length; i++ {
			sum += int(digits[i]-'0') * weights[i]
		}
		rest := sum % 11
		if rest < 2 {
			return '0'
		}
		return byte('0' + 11 - rest)
	}
	if digits[12] != calc(12) || digits[13] != calc(13) {
		return errors.New("cnpj inválido")
	}
	return nil
}
