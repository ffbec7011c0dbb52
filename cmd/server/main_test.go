package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listquery/internal/config"
)

func TestVersionString(t *testing.T) {
	assert.Equal(t, "listquery dev (none)", versionString())
}

func TestReportValidation(t *testing.T) {
	tests := []struct {
		name      string
		result    *config.ValidationResult
		expectErr bool
		wantLogs  []string
	}{
		{
			name:   "clean result",
			result: &config.ValidationResult{},
		},
		{
			name: "warnings only",
			result: &config.ValidationResult{
				Warnings: []config.ValidationWarning{{Field: "server.auth", Message: "authentication is disabled"}},
			},
			wantLogs: []string{"configuration warning", "server.auth"},
		},
		{
			name: "errors fail",
			result: &config.ValidationResult{
				Errors: []config.ValidationError{{Field: "query.max_limit", Message: "must not be negative", Hint: "use 0 to disable clamping"}},
			},
			expectErr: true,
			wantLogs:  []string{"configuration error", "query.max_limit", "use 0 to disable clamping"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			err := reportValidation(logger, tt.result)
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			for _, want := range tt.wantLogs {
				assert.Contains(t, buf.String(), want)
			}
			if len(tt.wantLogs) == 0 {
				assert.Empty(t, buf.String())
			}
		})
	}
}
