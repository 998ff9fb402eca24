package util

import "testing"

func TestValidateCNPJ(t *testing.T) {
	valid := []string{"11.222.333/0001-81", "11222333000181"}
	for _, c := range valid {
		if err := ValidateCNPJ(c); err != nil {
			t.Fatalf("%s deveria ser válido: %v", c, err)
		}
	}
	invalid := []string{"", "11222333000180", "00000000000000", "123"}
	for _, c := range invalid {
		if err := ValidateCNPJ(c); err == nil {
			t.Fatalf("%q deveria ser inválido", c)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("ana@pinovara.org"); err != nil {
		t.Fatalf("email válido rejeitado: %v", err)
	}
	if err := ValidateEmail("sem-arroba"); err == nil {
		t.Fatalf("email inválido aceito")
	}
}

func TestNewULIDIsSortable(t *testing.T) {
	a := NewULID()
	b := NewULID()
	if len(a) != 26 || a >= b {
		t.Fatalf("ULIDs deveriam crescer: %s %s", a, b)
	}
}

func TestValidationError(t *testing.T) {
	var v ValidationError
	v.Add("nome", nil)
	if v.Err() != nil {
		t.Fatalf("sem campos não deveria haver erro")
	}
	v.Add("nome", RequireString("", "nome"))
	v.Add("email", ValidateEmail("x"))
	err := v.Err()
	if err == nil {
		t.Fatalf("esperava erro")
	}
	if err.Error() != "dados inválidos (email: email inválido; nome: nome obrigatório)" {
		t.Fatalf("mensagem = %q", err.Error())
	}
}
