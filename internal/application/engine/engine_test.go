package engine

import (
	"testing"

	"github.com/alejandrodnm/sfasm/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestParamDump(t *testing.T) {
	var d ParamDump
	d.Add("intrate", 0.1)
	d.Add("numagents", 25)
	d.Add("condbits", []string{"pup", "dup"})
	d.Add("exponential_mas", true)

	got := d.Params()
	assert.Equal(t, []domain.Param{
		{Key: "intrate", Value: "0.1"},
		{Key: "numagents", Value: "25"},
		{Key: "condbits", Value: "[pup dup]"},
		{Key: "exponential_mas", Value: "true"},
	}, got)

	got[0].Value = "mutated"
	assert.Equal(t, "0.1", d.Params()[0].Value)
}
