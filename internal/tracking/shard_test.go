package tracking

import (
	"net/url"
	"testing"

	"github.com/fyrsmithlabs/repotrack/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardState_EncodeDecode(t *testing.T) {
	s := &ShardState{
		BaseURL:         "/solr/alfresco-1",
		HostName:        "solr1.internal",
		Port:            8983,
		Template:        "rerank",
		Instance:        2,
		NumberOfShards:  3,
		StoreRefs:       []string{"workspace://SpacesStore"},
		Master:          true,
		HasContent:      true,
		ShardMethod:     "PROPERTY",
		FlocProperties:  map[string]string{"shard.key": "cm:created", "shard.regex": "^\\d{4}"},
		StateProperties: map[string]string{"lag": "12"},

		LastUpdated:                    1700000000000,
		LastIndexedChangeSetCommitTime: 1699999999000,
		LastIndexedChangeSetID:         41,
		LastIndexedTxCommitTime:        1699999998000,
		LastIndexedTxID:                77,
	}

	q := url.Values{}
	s.Encode(q)
	assert.Equal(t, "cm:created", q.Get(wire.FlocPropertyPrefix+"shard.key"))
	assert.Equal(t, "12", q.Get(wire.StatePropertyPrefix+"lag"))
	assert.Equal(t, "true", q.Get(wire.ParamIsMaster))

	// survive a trip through a real query string
	parsed, err := url.ParseQuery(q.Encode())
	require.NoError(t, err)

	got, err := ShardStateFromQuery(parsed)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestShardStateFromQuery_Absent(t *testing.T) {
	got, err := ShardStateFromQuery(url.Values{wire.ParamFromCommitTime: {"1"}})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestShardStateFromQuery_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", wire.ParamPort, "http"},
		{"master", wire.ParamIsMaster, "maybe"},
		{"last tx", wire.ParamLastIndexedTxID, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{wire.ParamShardMethod: {"DB_ID"}, tt.key: {tt.val}}
			_, err := ShardStateFromQuery(q)
			var perr *wire.ParamError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.key, perr.Name)
		})
	}
}
