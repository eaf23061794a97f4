// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otpflow_test

import (
	"testing"

	"codeberg.org/smsresearch/studyportal/internal/otpflow"
	"github.com/stretchr/testify/assert"
)

func TestCodeBuffer_SequentialEntry(t *testing.T) {
	var b otpflow.CodeBuffer
	focus := 0

	for _, d := range "123456" {
		assert.False(t, b.Complete())
		focus = b.Set(focus, string(d))
	}

	assert.True(t, b.Complete())
	assert.Equal(t, "123456", b.Code())
	assert.Equal(t, otpflow.CodeLength-1, focus)
}

func TestCodeBuffer_Set(t *testing.T) {
	tests := []struct {
		name      string
		index     int
		input     string
		wantCell  string
		wantFocus int
	}{
		{"digit advances", 0, "7", "7", 1},
		{"keeps last digit", 2, "789", "9", 3},
		{"strips non digits", 1, "a5b", "5", 2},
		{"non digit clears and stays", 3, "x", "", 3},
		{"last cell stays", 5, "1", "1", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b otpflow.CodeBuffer
			focus := b.Set(tt.index, tt.input)
			assert.Equal(t, tt.wantCell, b[tt.index])
			assert.Equal(t, tt.wantFocus, focus)
		})
	}
}

func TestCodeBuffer_OutOfRange(t *testing.T) {
	var b otpflow.CodeBuffer
	assert.Equal(t, 0, b.Set(-1, "1"))
	assert.Equal(t, otpflow.CodeLength-1, b.Set(9, "1"))
	assert.Equal(t, otpflow.CodeBuffer{}, b)
}

func TestCodeBuffer_Backspace(t *testing.T) {
	var b otpflow.CodeBuffer
	b.Fill("12")

	assert.Equal(t, 1, b.Backspace(2), "empty cell moves focus back")
	assert.Equal(t, 1, b.Backspace(1), "filled cell is cleared in place")
	assert.Equal(t, "", b[1])
	assert.Equal(t, 0, b.Backspace(1))
	assert.Equal(t, 0, b.Backspace(0))
	assert.Equal(t, "", b[0])
	assert.Equal(t, 0, b.Backspace(0))
}

func TestCodeBuffer_Fill(t *testing.T) {
	var b otpflow.CodeBuffer

	b.Fill("12 34-5678")

	assert.Equal(t, "123456", b.Code())
	assert.Equal(t, otpflow.CodeLength-1, b.FirstEmpty())

	b.Fill("12")
	assert.Equal(t, 2, b.FirstEmpty())
	assert.False(t, b.Complete())

	b.Clear()
	assert.Equal(t, "", b.Code())
}
