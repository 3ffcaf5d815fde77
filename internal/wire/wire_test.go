package wire

import (
	"encoding/json"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetInt64(t *testing.T) {
	q := url.Values{}
	SetInt64(q, ParamFromID, nil)
	assert.False(t, q.Has(ParamFromID))

	v := int64(-7)
	SetInt64(q, ParamFromID, &v)
	assert.Equal(t, "-7", q.Get(ParamFromID))
}

func TestInt64(t *testing.T) {
	q := url.Values{ParamFromID: {"42"}, ParamToID: {"abc"}}

	v, err := Int64(q, ParamFromID)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(42), *v)

	v, err = Int64(q, ParamMaxResults)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Int64(q, ParamToID)
	var perr *ParamError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ParamToID, perr.Name)
	assert.Equal(t, "abc", perr.Value)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
	assert.Contains(t, err.Error(), `toId="abc"`)
}

func TestInt(t *testing.T) {
	q := url.Values{ParamMaxResults: {"10"}, ParamPort: {"x"}}

	n, err := Int(q, ParamMaxResults, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = Int(q, ParamInstance, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = Int(q, ParamPort, 0)
	assert.Error(t, err)
}

func TestNodeMetaData_AbsentVersusEmpty(t *testing.T) {
	var md NodeMetaData
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"aspects":[],"childIds":[3]}`), &md))
	assert.NotNil(t, md.Aspects)
	assert.Empty(t, md.Aspects)
	assert.Nil(t, md.Paths)
	assert.Nil(t, md.Owner)
	assert.Equal(t, []int64{3}, md.ChildIDs)

	out, err := json.Marshal(md)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"aspects":[],"childIds":[3]}`, string(out))
}

func TestMetadataRequest_OnlyFalseFlagsSent(t *testing.T) {
	f := false
	out, err := json.Marshal(MetadataRequest{NodeIDs: []int64{1}, IncludeOwner: &f})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodeIds":[1],"includeOwner":false}`, string(out))
}

func TestModelDiff_NullChecksums(t *testing.T) {
	out, err := json.Marshal(ModelDiff{Name: "{urn:x}m", Type: "REMOVED"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"{urn:x}m","type":"REMOVED","oldChecksum":null,"newChecksum":null}`, string(out))
}
