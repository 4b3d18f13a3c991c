package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ParseFfmpegError(t *testing.T) {
	tests := []struct {
		summary  string
		err      error
		expected string
	}{
		{
			summary:  "embedded JSON error",
			err:      errors.New(`ffmpeg version 6.0 built with ... message: {"error": {"code": -2, "string": "No such file or directory"}}`),
			expected: "No such file or directory",
		},
		{
			summary:  "embedded non-JSON message",
			err:      errors.New(`failed: message: {not json}`),
			expected: "{not json}",
		},
		{
			summary:  "no message",
			err:      errors.New("exit status 1"),
			expected: "exit status 1",
		},
	}

	for _, test := range tests {
		assert.EqualError(t, parseFfmpegError(test.err), test.expected, test.summary)
	}
}
