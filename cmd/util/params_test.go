package util

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

func TestParseParam(t *testing.T) {
	tests := []struct {
		arg     string
		want    any
		wantErr bool
	}{
		{arg: "42", want: int64(42)},
		{arg: "-1.5", want: -1.5},
		{arg: "null", want: nil},
		{arg: "hello", want: "hello"},
		{arg: "key:value", want: "key:value"},
		{arg: "string:42", want: "42"},
		{arg: "tinyint:7", want: int8(7)},
		{arg: "tinyint:300", wantErr: true},
		{arg: "smallint:-300", want: int16(-300)},
		{arg: "int:70000", want: int32(70000)},
		{arg: "bigint:1", want: int64(1)},
		{arg: "float:2", want: 2.0},
		{arg: "varbinary:0aff", want: []byte{0x0a, 0xff}},
		{arg: "varbinary:xyz", wantErr: true},
		{arg: "timestamp:1000000", want: time.UnixMicro(1000000).UTC()},
		{arg: "timestamp:2024-01-02T03:04:05Z", want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{arg: "timestamp:yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := ParseParam(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParamsReportsIndex(t *testing.T) {
	_, err := ParseParams([]string{"1", "int:x"})
	assert.ErrorContains(t, err, "parameter 1")

	params, err := ParseParams([]string{"1", "a"})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), "a"}, params)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, splitList(" a:1, ,b:2 "))
	assert.Nil(t, splitList(""))
}

func TestWrapString(t *testing.T) {
	wrapped := WrapString("one two three four five six seven eight nine ten eleven twelve thirteen")
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
}
