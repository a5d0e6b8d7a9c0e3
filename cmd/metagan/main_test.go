package main

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	metagan "github.com/LdDl/metagan-go"
)

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestNonPositiveFlagsRejected(t *testing.T) {
	tests := [][]string{
		{"discriminate", "--batch", "0"},
		{"generate", "--batch", "0"},
		{"topology", "--batch", "-1"},
		{"train", "--batch", "0"},
		{"train", "--steps", "0"},
		{"train", "--eval-print", "0"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			err := execute(args...)
			assert.ErrorIs(t, err, metagan.ErrInvalidLength)
		})
	}
}

func TestUnsupportedSizeMessage(t *testing.T) {
	err := execute("topology", "--size", "100")
	assert.ErrorIs(t, err, metagan.ErrUnsupportedDataSize)
	// What main prints: single line without stack frames
	assert.NotContains(t, fmt.Sprintf("%v", err), "\n")
}
