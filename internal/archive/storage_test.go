package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuckyman/url-portal/internal/portal/domain"
)

func TestToRow(t *testing.T) {
	created := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		rec        domain.JobStatusRecord
		wantResult string
		wantError  string
	}{
		{
			name: "succeeded",
			rec: domain.JobStatusRecord{
				JobID:     "a",
				Status:    domain.JobStatusSucceeded,
				CreatedAt: created,
				UpdatedAt: created.Add(time.Second),
				Result:    map[string]any{"success": true, "file_path": "x.md"},
			},
			wantResult: `{"file_path":"x.md","success":true}`,
		},
		{
			name: "failed",
			rec: domain.JobStatusRecord{
				JobID:     "b",
				Status:    domain.JobStatusFailed,
				CreatedAt: created,
				UpdatedAt: created.Add(time.Second),
				Error:     "disk full",
			},
			wantError: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := toRow(tt.rec)
			require.NoError(t, err)

			assert.Equal(t, tt.rec.JobID, r.JobID)
			assert.Equal(t, tt.rec.UpdatedAt, r.CompletedAt)
			if tt.wantResult == "" {
				assert.Nil(t, r.Result)
			} else {
				assert.JSONEq(t, tt.wantResult, string(r.Result))
			}
			assert.Equal(t, tt.wantError != "", r.ErrorMessage.Valid)
			assert.Equal(t, tt.wantError, r.ErrorMessage.String)
		})
	}
}
