package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		status Status
	}{
		{"processing", Processing{}},
		{"ready", Ready{}},
		{"failed", Failed{Message: "could not extract text"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := MarshalStatus(tc.status)
			require.NoError(t, err)

			got, err := UnmarshalStatus(raw)
			require.NoError(t, err)
			assert.Equal(t, tc.status.Kind(), got.Kind())

			if f, ok := tc.status.(Failed); ok {
				gotFailed, ok := got.(Failed)
				require.True(t, ok)
				assert.Equal(t, f.Message, gotFailed.Message)
			}
		})
	}
}

func TestUnmarshalStatusDefaults(t *testing.T) {
	got, err := UnmarshalStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Kind())

	got, err = UnmarshalStatus(`{"kind":""}`)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Kind())

	_, err = UnmarshalStatus(`{"kind":"bogus"}`)
	assert.Error(t, err)
}

func TestMarshalStatusNil(t *testing.T) {
	raw, err := MarshalStatus(nil)
	require.NoError(t, err)

	got, err := UnmarshalStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Kind())
}

func TestStatusRank(t *testing.T) {
	assert.Greater(t, Ready{}.Rank(), Failed{}.Rank())
	assert.Greater(t, Failed{}.Rank(), Processing{}.Rank())
}

func TestGroupKeyPrefersStorageID(t *testing.T) {
	assert.Equal(t, "storage:abc", GroupKey("abc", "report.pdf", "kb1", "upload"))
	assert.Equal(t, "storage:abc", GroupKey(" abc ", "", "", ""))
	assert.Equal(t, "meta:report.pdf|kb1|upload", GroupKey("", "report.pdf", "kb1", "upload"))
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "report.pdf", ChunkKey("report.pdf", 0, 1))
	assert.Equal(t, "report.pdf (part 1/3)", ChunkKey("report.pdf", 0, 3))
	assert.Equal(t, "report.pdf (part 3/3)", ChunkKey("report.pdf", 2, 3))
}

func TestGroupKeyOfMatchesAcrossChunks(t *testing.T) {
	a := Entry{Metadata: Metadata{StorageID: "s1", ChunkIndex: 0}}
	b := Entry{Metadata: Metadata{StorageID: "s1", ChunkIndex: 7}}
	c := Entry{Metadata: Metadata{StorageID: "s2"}}

	assert.Equal(t, GroupKeyOf(a), GroupKeyOf(b))
	assert.NotEqual(t, GroupKeyOf(a), GroupKeyOf(c))
}
