package tracking

import (
	"encoding/json"
	"testing"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/property"
	"github.com/fyrsmithlabs/repotrack/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeStatusWireCodes(t *testing.T) {
	tests := []struct {
		code   string
		status NodeStatus
	}{
		{wire.NodeStatusUpdated, NodeStatusUpdated},
		{wire.NodeStatusDeleted, NodeStatusDeleted},
		{wire.NodeStatusNonShardUpdated, NodeStatusNonShardUpdated},
		{wire.NodeStatusNonShardDeleted, NodeStatusNonShardDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, NodeStatusFromWire(tt.code))
			assert.Equal(t, tt.code, NodeStatusToWire(tt.status))
		})
	}

	assert.Equal(t, NodeStatusUnknown, NodeStatusFromWire("x"))
	assert.Equal(t, NodeStatusUnknown, NodeStatusFromWire(""))
	assert.Equal(t, "", NodeStatusToWire(NodeStatusUnknown))
	assert.Equal(t, "non_shard_deleted", NodeStatusNonShardDeleted.String())
}

func TestNodesRequest_RoundTrip(t *testing.T) {
	shardProp := dictionary.MustParseQName("{urn:x}region")
	p := GetNodesParameters{
		TransactionIDs:  []int64{1, 2},
		FromNodeID:      i64(10),
		IncludeAspects:  []dictionary.QName{qnTitled},
		ExcludeAspects:  []dictionary.QName{},
		StoreProtocol:   "workspace",
		StoreIdentifier: "SpacesStore",
		ShardProperty:   &shardProp,
		CoreName:        "alfresco",
	}

	data, err := json.Marshal(NodesRequestToWire(p, 50))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"txnIds":[1,2],"fromNodeId":10,
		"includeAspects":["{http://www.alfresco.org/model/content/1.0}titled"],
		"excludeAspects":[],
		"storeProtocol":"workspace","storeIdentifier":"SpacesStore",
		"maxResults":50,"shardProperty":"{urn:x}region","coreName":"alfresco"}`, string(data))

	var w wire.NodesRequest
	require.NoError(t, json.Unmarshal(data, &w))
	got, max, err := NodesRequestFromWire(w)
	require.NoError(t, err)
	assert.Equal(t, 50, max)
	assert.Equal(t, p, got)
}

func TestNodesRequest_Minimal(t *testing.T) {
	data, err := json.Marshal(NodesRequestToWire(GetNodesParameters{}, 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"maxResults":0}`, string(data))
}

func TestNodesRequestFromWire_BadQName(t *testing.T) {
	_, _, err := NodesRequestFromWire(wire.NodesRequest{IncludeAspects: []string{"{broken"}})
	assert.ErrorIs(t, err, dictionary.ErrInvalidQName)
}

func TestMetadataRequest_Flags(t *testing.T) {
	p := NewNodeMetaDataParameters()
	p.NodeIDs = []int64{1}
	p.IncludeOwner = false
	p.IncludeType = false

	w := MetadataRequestToWire(p)
	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodeIds":[1],"includeOwner":false,"includeType":false}`, string(data))

	assert.Equal(t, p, MetadataRequestFromWire(w))
}

func TestMetadataRequestFromWire_AbsentFlagsAreTrue(t *testing.T) {
	var w wire.MetadataRequest
	require.NoError(t, json.Unmarshal([]byte(`{"fromNodeId":1,"toNodeId":9,"maxResults":3}`), &w))

	p := MetadataRequestFromWire(w)
	want := NewNodeMetaDataParameters()
	want.FromNodeID = i64(1)
	want.ToNodeID = i64(9)
	three := 3
	want.MaxResults = &three
	assert.Equal(t, want, p)
}

func TestNodeMetaData_RoundTrip(t *testing.T) {
	dict := dictionary.New(dictionary.PropertyDefinition{Name: qnTitle, DataType: dictionary.DataTypeMLText})
	deser := property.NewDeserializer(dict)
	qnNull := dictionary.MustParseQName("{urn:x}empty")

	md := NodeMetaData{
		ID:              7,
		TenantDomain:    "acme",
		TxnID:           i64(3),
		AclID:           i64(4),
		NodeRef:         strp("workspace://SpacesStore/7"),
		Type:            &qnDoc,
		Aspects:         []dictionary.QName{qnTitled},
		Properties:      map[dictionary.QName]property.Value{qnTitle: property.MLText{"en": "x"}, qnNull: nil},
		Paths:           []Path{{Path: "/a/b", QName: &qnDoc, APath: strp("/1/2")}, {Path: "/c", APath: strp("/3")}},
		NamePaths:       [][]string{{"a", "b"}},
		AncestorPaths:   []string{"/1/2", "/3"},
		Ancestors:       []string{"workspace://SpacesStore/1"},
		ParentAssocs:    []string{},
		ParentAssocsCrc: i64(99),
		ChildAssocs:     []string{"c1"},
		ChildIDs:        []int64{},
		Owner:           strp("admin"),
	}

	w, err := NodeMetaDataToWire(md)
	require.NoError(t, err)
	data, err := json.Marshal(w)
	require.NoError(t, err)

	var back wire.NodeMetaData
	require.NoError(t, json.Unmarshal(data, &back))
	got, err := NodeMetaDataFromWire(back, deser)
	require.NoError(t, err)
	assert.Equal(t, md, got)
}

func TestNodeMetaData_MixedAncestorPaths(t *testing.T) {
	in := `{"id":8,"paths":[{"path":"/a"},{"path":"/b","apath":"/x/y"}]}`
	var w wire.NodeMetaData
	require.NoError(t, json.Unmarshal([]byte(in), &w))

	md, err := NodeMetaDataFromWire(w, property.NewDeserializer(nil))
	require.NoError(t, err)
	require.Len(t, md.Paths, 2)
	assert.Nil(t, md.Paths[0].APath)
	assert.Equal(t, "/x/y", *md.Paths[1].APath)
	assert.Equal(t, []string{"/x/y"}, md.AncestorPaths)

	out, err := NodeMetaDataToWire(md)
	require.NoError(t, err)
	data, err := json.Marshal(out.Paths)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"path":"/a"},{"path":"/b","apath":"/x/y"}]`, string(data))
}

func TestNodeMetaDataFromWire_Absent(t *testing.T) {
	var w wire.NodeMetaData
	require.NoError(t, json.Unmarshal([]byte(`{"id":5}`), &w))

	md, err := NodeMetaDataFromWire(w, property.NewDeserializer(nil))
	require.NoError(t, err)
	assert.Equal(t, NodeMetaData{ID: 5}, md)
}

func TestNodeMetaDataFromWire_BadType(t *testing.T) {
	bad := "{unterminated"
	_, err := NodeMetaDataFromWire(wire.NodeMetaData{ID: 1, Type: &bad}, property.NewDeserializer(nil))
	assert.ErrorIs(t, err, dictionary.ErrInvalidQName)
}

func TestAclReaders_TenantDomain(t *testing.T) {
	readers := []AclReaders{{AclID: 1, AclChangeSetID: 2}}
	w := AclReadersToWire(readers)
	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"aclsReaders":[{"aclId":1,"readers":[],"denied":[],"aclChangeSetId":2,"tenantDomain":""}]}`, string(data))

	got := AclReadersFromWire(wire.AclReadersResponse{AclsReaders: []wire.AclReaders{{AclID: 1}}})
	assert.Equal(t, "", got[0].TenantDomain)
}

func TestModelDiffFromWire(t *testing.T) {
	tests := []struct {
		name string
		in   wire.ModelDiff
		want ModelDiffType
	}{
		{"explicit", wire.ModelDiff{Name: "{urn:m}a", Type: "CHANGED"}, ModelChanged},
		{"infer new", wire.ModelDiff{Name: "{urn:m}a", NewChecksum: i64(1)}, ModelNew},
		{"infer changed", wire.ModelDiff{Name: "{urn:m}a", OldChecksum: i64(1), NewChecksum: i64(2)}, ModelChanged},
		{"infer removed", wire.ModelDiff{Name: "{urn:m}a", OldChecksum: i64(1)}, ModelRemoved},
		{"infer removed no sums", wire.ModelDiff{Name: "{urn:m}a"}, ModelRemoved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ModelDiffFromWire(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Type)
		})
	}

	_, err := ModelDiffFromWire(wire.ModelDiff{Name: "{urn:m}a", Type: "RENAMED"})
	assert.Error(t, err)
}

func TestModelRefs_RoundTrip(t *testing.T) {
	refs := []ModelRef{{Name: qnModel, Checksum: 5}}
	got, err := ModelRefsFromWire(ModelRefsToWire(refs))
	require.NoError(t, err)
	assert.Equal(t, refs, got)

	empty := ModelRefsToWire(nil)
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"models":[]}`, string(data))
}

func TestPages_ToWire(t *testing.T) {
	page := &Transactions{Transactions: []Transaction{{ID: 1, CommitTimeMs: 2, Updates: 3, Deletes: 4}}, MaxID: i64(1)}
	data, err := json.Marshal(TransactionsToWire(page))
	require.NoError(t, err)
	assert.JSONEq(t, `{"transactions":[{"id":1,"commitTimeMs":2,"updates":3,"deletes":4}],"maxTxnId":1}`, string(data))

	empty, err := json.Marshal(AclChangeSetsToWire(&AclChangeSets{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"aclChangeSets":[]}`, string(empty))
}
