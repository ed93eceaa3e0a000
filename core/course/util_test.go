package course

import (
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kikundi/core"
)

func fieldErrors(t *testing.T, err error, translator ut.Translator) map[string]string {
	t.Helper()
	vErrs, ok := err.(validator.ValidationErrors)
	require.True(t, ok, "unexpected error type %T", err)
	return core.TranslateFieldErrors(vErrs, translator)
}
