package ytapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDurationColon(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{name: "minutes and seconds", input: "3:20", expected: 3*time.Minute + 20*time.Second},
		{name: "hours", input: "1:05:20", expected: time.Hour + 5*time.Minute + 20*time.Second},
		{name: "plain number is not a duration", input: "320", expected: 0},
		{name: "empty", input: "", expected: 0},
		{name: "garbage", input: "a:b", expected: 0},
		{name: "too many parts", input: "1:2:3:4", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseDurationColon(tt.input))
		})
	}
}
