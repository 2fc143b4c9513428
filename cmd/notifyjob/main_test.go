package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_RejectsBadArgumentsBeforeConnecting(t *testing.T) {
	// an unreachable database proves nothing is opened on the usage path
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_URL", "postgres://nobody@127.0.0.1:1/none")

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing job", args: nil},
		{name: "unknown job", args: []string{"-job", "vacuum"}},
		{name: "unknown flag", args: []string{"-jobs", "deliver"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, exitUsage, code)
			assert.Empty(t, stdout.String())
			assert.Contains(t, stderr.String(), "-job")
		})
	}
}
