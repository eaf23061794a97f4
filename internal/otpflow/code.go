// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otpflow

import "strings"

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

// CodeBuffer holds the six single-digit input cells.
type CodeBuffer [CodeLength]string

// Set stores the last decimal digit of s in cell i and returns the cell to
// focus next. Input without a digit clears the cell and keeps focus.
func (b *CodeBuffer) Set(i int, s string) int {
	if i < 0 || i >= CodeLength {
		return clamp(i)
	}
	d := lastDigit(s)
	b[i] = d
	if d != "" && i < CodeLength-1 {
		return i + 1
	}
	return i
}

// Backspace handles a backspace in cell i and returns the cell to focus.
// An empty cell moves focus to the previous one, a filled cell is cleared.
func (b *CodeBuffer) Backspace(i int) int {
	if i < 0 || i >= CodeLength {
		return clamp(i)
	}
	if b[i] == "" {
		if i > 0 {
			return i - 1
		}
		return 0
	}
	b[i] = ""
	return i
}

// Fill distributes the digits of s over the cells starting at cell 0.
func (b *CodeBuffer) Fill(s string) {
	b.Clear()
	i := 0
	for _, r := range s {
		if i == CodeLength {
			break
		}
		if r >= '0' && r <= '9' {
			b[i] = string(r)
			i++
		}
	}
}

// Clear empties all cells.
func (b *CodeBuffer) Clear() {
	*b = CodeBuffer{}
}

// Complete reports whether every cell holds a digit.
func (b *CodeBuffer) Complete() bool {
	for _, d := range b {
		if d == "" {
			return false
		}
	}
	return true
}

// Code returns the concatenated cells.
func (b *CodeBuffer) Code() string {
	return strings.Join(b[:], "")
}

// FirstEmpty returns the first empty cell, or the last cell when full.
func (b *CodeBuffer) FirstEmpty() int {
	for i, d := range b {
		if d == "" {
			return i
		}
	}
	return CodeLength - 1
}

func lastDigit(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			return s[i : i+1]
		}
	}
	return ""
}

func clamp(i int) int {
	return min(max(i, 0), CodeLength-1)
}
