package uuid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanoIDGenerator(t *testing.T) {
	g, err := NewNanoIDGenerator(12)
	require.NoError(t, err)

	a, err := g.Generate()
	require.NoError(t, err)
	b, _ := g.Generate()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)

	_, err = NewNanoIDGenerator(0)
	assert.Error(t, err)
}

type failingGenerator struct{}

func (failingGenerator) Generate() (string, error) {
	return "", errors.New("no entropy")
}

func TestStringFunc(t *testing.T) {
	g, _ := NewNanoIDGenerator(8)
	assert.Len(t, StringFunc(g)(), 8)
	assert.Equal(t, "", StringFunc(failingGenerator{})())
}
