package invoke

import (
	"bytes"
	"github.com/ValentinKolb/voltc/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestWriteSummary(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[common.StatusCode]int
		drained  bool
		wantErr  bool
		want     []string
		notWant  []string
	}{
		{
			name:     "drained",
			statuses: map[common.StatusCode]int{common.StatusSuccess: 3, common.StatusUserAbort: 1},
			drained:  true,
			want:     []string{"4 invocations of Insert", "success", ": 3", "user abort", ": 1"},
			notWant:  []string{"unresolved"},
		},
		{
			name:     "interrupted",
			statuses: map[common.StatusCode]int{common.StatusSuccess: 1},
			drained:  false,
			wantErr:  true,
			want:     []string{"4 invocations of Insert", "unresolved", ": 3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := writeSummary(&buf, "Insert", 4, tt.statuses, tt.drained)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "3 of 4")
			} else {
				require.NoError(t, err)
			}
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}
