package uuid

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid"
)

// Generator UUID generator interface
type Generator interface {
	Generate() (string, error)
}

// NanoIDGenerator UUID implementation using NanoID
type NanoIDGenerator struct {
	Length int
}

var _ Generator = &NanoIDGenerator{}

// NewNanoIDGenerator create a new `NanoIDGenerator` instance
func NewNanoIDGenerator(length int) (*NanoIDGenerator, error) {
	if length < 1 {
		return nil, fmt.Errorf("id length must be at least 1, got %d", length)
	}
	return &NanoIDGenerator{Length: length}, nil
}

// Generate generate UUID
func (ns *NanoIDGenerator) Generate() (string, error) {
	return gonanoid.Nanoid(ns.Length)
}

// StringFunc adapt g to the func() string shape of echo's request id
// middleware, an empty id is returned when generation fails
func StringFunc(g Generator) func() string {
	return func() string {
		id, err := g.Generate()
		if err != nil {
			return ""
		}
		return id
	}
}
