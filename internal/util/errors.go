package util

import (
	"sort"
	"strings"
)

// ValidationError acumula mensagens por campo.
type ValidationError struct {
	Fields map[string]string
}

// Add registra a mensagem do campo se err não for nil.
func (v *ValidationError) Add(field string, err error) {
	if err == nil {
		return
	}
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	v.Fields[field] = err.Error()
}

// Err devolve o próprio erro quando há campos inválidos, senão nil.
func (v *ValidationError) Err() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "dados inválidos (" + strings.Join(parts, "; ") + ")"
}

// Invalid cria um erro de validação de um único campo.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
