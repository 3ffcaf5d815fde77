package tracking

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	qnTitle   = dictionary.MustParseQName("{http://www.alfresco.org/model/content/1.0}title")
	qnContent = dictionary.MustParseQName("{http://www.alfresco.org/model/content/1.0}content")
	qnDoc     = dictionary.MustParseQName("{http://www.alfresco.org/model/content/1.0}content")
	qnTitled  = dictionary.MustParseQName("{http://www.alfresco.org/model/content/1.0}titled")
	qnHidden  = dictionary.MustParseQName("{http://www.alfresco.org/model/system/1.0}hidden")
	qnModel   = dictionary.MustParseQName("{http://www.alfresco.org/model/content/1.0}contentmodel")
)

func i64(v int64) *int64 { return &v }

func strp(s string) *string { return &s }

// seededRepository builds the fixture shared by the memory and HTTP tests.
func seededRepository(t *testing.T) *MemoryRepository {
	t.Helper()
	r := NewMemoryRepository(nil)

	for i := int64(1); i <= 5; i++ {
		r.PutAclChangeSets(AclChangeSet{ID: i, CommitTimeMs: i * 100, AclCount: 2})
		r.PutAcls(Acl{ID: i*10 + 1, AclChangeSetID: i}, Acl{ID: i*10 + 2, AclChangeSetID: i})
		r.PutAclReaders(
			AclReaders{AclID: i*10 + 1, AclChangeSetID: i, Readers: []string{"GROUP_EVERYONE"}, Denied: []string{}},
			AclReaders{AclID: i*10 + 2, AclChangeSetID: i, Readers: []string{"admin"}, Denied: []string{"guest"}, TenantDomain: "acme"},
		)
		r.PutTransactions(Transaction{ID: i, CommitTimeMs: i * 100, Updates: 1, Deletes: i % 2})
	}

	r.PutNodes(
		Node{ID: 100, NodeRef: "workspace://SpacesStore/a", TxnID: 1, Status: NodeStatusUpdated, AclID: 11},
		Node{ID: 101, NodeRef: "workspace://SpacesStore/b", TxnID: 2, Status: NodeStatusDeleted, AclID: 21},
		Node{ID: 102, NodeRef: "archive://SpacesStore/c", TxnID: 2, Status: NodeStatusUpdated, AclID: 21},
		Node{ID: 103, NodeRef: "workspace://SpacesStore/d", TxnID: 4, Status: NodeStatusNonShardUpdated, AclID: 41},
	)

	r.PutNodeMetaData(
		NodeMetaData{
			ID:           100,
			TenantDomain: "",
			TxnID:        i64(1),
			AclID:        i64(11),
			NodeRef:      strp("workspace://SpacesStore/a"),
			Type:         &qnDoc,
			Aspects:      []dictionary.QName{qnTitled},
			Properties: map[dictionary.QName]property.Value{
				qnTitle: property.MLText{"en": "Report", "fr": "Rapport"},
			},
			Paths:        []Path{{Path: "/app:company_home/cm:a", QName: &qnDoc}},
			NamePaths:    [][]string{{"Company Home", "a"}},
			Ancestors:    []string{"workspace://SpacesStore/root"},
			ParentAssocs: []string{"parent-assoc"},
			ChildAssocs:  []string{},
			ChildIDs:     []int64{200, 201},
			Owner:        strp("admin"),
		},
		NodeMetaData{
			ID:         101,
			TxnID:      i64(2),
			Aspects:    []dictionary.QName{qnHidden},
			Properties: map[dictionary.QName]property.Value{qnTitle: property.Single("hidden")},
		},
	)

	r.PutTextContent(100, qnContent, StoredContent{
		Status:   ContentOK,
		Text:     []byte("hello world"),
		Modified: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	r.PutTextContent(101, dictionary.QName{}, StoredContent{Status: ContentTransformFailed, TransformException: "boom"})

	r.PutModel(Model{Name: qnModel, Checksum: 42, Content: []byte("<model/>")})
	return r
}

func TestMemoryRepository_ChangeSetScenario(t *testing.T) {
	r := seededRepository(t)

	page, err := r.GetAclChangeSets(context.Background(), CursorQuery{MinID: i64(1), MaxID: i64(4), MaxResults: 10})
	require.NoError(t, err)

	ids := make([]int64, 0, len(page.ChangeSets))
	for _, cs := range page.ChangeSets {
		ids = append(ids, cs.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
	require.NotNil(t, page.MaxID)
	assert.Equal(t, int64(3), *page.MaxID)
	require.NotNil(t, page.MaxCommitTime)
	assert.Equal(t, int64(300), *page.MaxCommitTime)
}

func TestMemoryRepository_TimeRangeInclusive(t *testing.T) {
	r := seededRepository(t)

	page, err := r.GetTransactions(context.Background(), CursorQuery{FromCommitTime: i64(200), ToCommitTime: i64(400)}, nil)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	assert.Equal(t, int64(2), page.Transactions[0].ID)
	assert.Equal(t, int64(4), page.Transactions[2].ID)
}

func TestMemoryRepository_EmptyPageHasNoWatermarks(t *testing.T) {
	r := seededRepository(t)

	page, err := r.GetAclChangeSets(context.Background(), CursorQuery{MinID: i64(50)})
	require.NoError(t, err)
	assert.NotNil(t, page.ChangeSets)
	assert.Empty(t, page.ChangeSets)
	assert.Nil(t, page.MaxID)
	assert.Nil(t, page.MaxCommitTime)
}

func TestMemoryRepository_CursorCompleteness(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	for _, pageSize := range []int{1, 2, 3, 10} {
		seen := map[int64]int{}
		var min int64
		for range 20 {
			page, err := r.GetAclChangeSets(ctx, CursorQuery{MinID: i64(min), MaxResults: pageSize})
			require.NoError(t, err)
			for _, cs := range page.ChangeSets {
				seen[cs.ID]++
			}
			if len(page.ChangeSets) < pageSize || page.MaxID == nil {
				break
			}
			// Using the watermark as the next lower bound redelivers the boundary.
			if *page.MaxID == min {
				min++
			} else {
				min = *page.MaxID
			}
		}
		assert.Len(t, seen, 5, "page size %d", pageSize)
	}
}

func TestMemoryRepository_TimeCursorWithWatermark(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	var w Watermark
	var got []int64
	for range 10 {
		page, err := r.GetTransactions(ctx, w.Query(2), nil)
		require.NoError(t, err)
		fresh, next := Advance(w, page.Transactions)
		for _, tx := range fresh {
			got = append(got, tx.ID)
		}
		if len(fresh) == 0 {
			break
		}
		w = next
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got)
	assert.Equal(t, Watermark{CommitTimeMs: 500, ID: 5}, w)
}

func TestMemoryRepository_AclsTruncationRoundTrip(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()
	sets := []AclChangeSet{{ID: 1}, {ID: 2}, {ID: 3}}

	full, err := r.GetAcls(ctx, sets, nil, 0)
	require.NoError(t, err)
	require.Len(t, full, 6)
	assert.False(t, AclsTruncated(sets, full, 0))

	first, err := r.GetAcls(ctx, sets, nil, 4)
	require.NoError(t, err)
	assert.True(t, AclsTruncated(sets, first, 4))

	for _, max := range []int{1, 2, 4, 6, 100} {
		all, err := FetchAllAcls(ctx, r, sets, max)
		require.NoError(t, err, "max %d", max)
		assert.Equal(t, full, all, "max %d", max)
	}
}

func TestMemoryRepository_GetAclsMinID(t *testing.T) {
	r := seededRepository(t)

	acls, err := r.GetAcls(context.Background(), []AclChangeSet{{ID: 2}, {ID: 3}}, i64(22), 10)
	require.NoError(t, err)
	assert.Equal(t, []Acl{{ID: 22, AclChangeSetID: 2}, {ID: 31, AclChangeSetID: 3}, {ID: 32, AclChangeSetID: 3}}, acls)
}

func TestMemoryRepository_GetAclReaders(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	readers, err := r.GetAclReaders(ctx, []Acl{{ID: 22}, {ID: 11}})
	require.NoError(t, err)
	require.Len(t, readers, 2)
	assert.Equal(t, int64(22), readers[0].AclID)
	assert.Equal(t, "acme", readers[0].TenantDomain)
	assert.Equal(t, []string{"guest"}, readers[0].Denied)
	assert.Equal(t, int64(11), readers[1].AclID)
	assert.Equal(t, "", readers[1].TenantDomain)

	_, err = r.GetAclReaders(ctx, []Acl{{ID: 11}, {ID: 999}})
	assert.ErrorIs(t, err, ErrMissingAclReaders)
}

func TestMemoryRepository_ShardStateRecorded(t *testing.T) {
	r := seededRepository(t)
	shard := &ShardState{BaseURL: "/solr/core0", ShardMethod: "DB_ID", NumberOfShards: 2}

	page, err := r.GetTransactions(context.Background(), CursorQuery{MinID: i64(0)}, shard)
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 5)
	assert.Same(t, shard, r.LastShardState())
}

func TestMemoryRepository_GetNodes(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params GetNodesParameters
		max    int
		want   []int64
	}{
		{name: "all", want: []int64{100, 101, 102, 103}},
		{name: "by transaction", params: GetNodesParameters{TransactionIDs: []int64{2}}, want: []int64{101, 102}},
		{name: "no transactions", params: GetNodesParameters{TransactionIDs: []int64{}}, want: []int64{}},
		{name: "node range", params: GetNodesParameters{FromNodeID: i64(101), ToNodeID: i64(102)}, want: []int64{101, 102}},
		{name: "store", params: GetNodesParameters{StoreProtocol: "workspace", StoreIdentifier: "SpacesStore"}, want: []int64{100, 101, 103}},
		{name: "include aspect", params: GetNodesParameters{IncludeAspects: []dictionary.QName{qnTitled}}, want: []int64{100, 102, 103}},
		{name: "exclude aspect", params: GetNodesParameters{ExcludeAspects: []dictionary.QName{qnHidden}}, want: []int64{100, 102, 103}},
		{name: "capped", max: 2, want: []int64{100, 101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := r.GetNodes(ctx, tt.params, tt.max)
			require.NoError(t, err)
			ids := []int64{}
			for _, n := range nodes {
				ids = append(ids, n.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryRepository_PropertiesOnlyMetaData(t *testing.T) {
	r := seededRepository(t)

	p := NodeMetaDataParameters{NodeIDs: []int64{100}, IncludeProperties: true}
	nodes, err := r.GetNodesMetaData(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	md := nodes[0]
	assert.Equal(t, int64(100), md.ID)
	assert.NotEmpty(t, md.Properties)
	assert.Empty(t, md.Paths)
	assert.Empty(t, md.ChildIDs)
	assert.Nil(t, md.Owner)
	assert.Nil(t, md.Type)
	assert.Nil(t, md.Aspects)
	assert.Nil(t, md.AclID)
	assert.Equal(t, []string{"workspace://SpacesStore/root"}, md.Ancestors)
}

func TestMemoryRepository_FullMetaData(t *testing.T) {
	r := seededRepository(t)

	nodes, err := r.GetNodesMetaData(context.Background(), NewNodeMetaDataParameters())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	md := nodes[0]
	require.NotNil(t, md.Owner)
	assert.Equal(t, "admin", *md.Owner)
	assert.Equal(t, []int64{200, 201}, md.ChildIDs)
	assert.NotNil(t, md.ChildAssocs)
	assert.Empty(t, md.ChildAssocs)
	assert.Equal(t, qnDoc, *md.Type)
	assert.Equal(t, property.MLText{"en": "Report", "fr": "Rapport"}, md.Properties[qnTitle])
}

func TestMemoryRepository_MetaDataOwnedByCaller(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	first, err := r.GetNodesMetaData(ctx, NodeMetaDataParameters{NodeIDs: []int64{100}, IncludeProperties: true, IncludeChildIDs: true})
	require.NoError(t, err)
	first[0].ChildIDs[0] = -1
	first[0].Properties[qnTitle].(property.MLText)["en"] = "changed"

	second, err := r.GetNodesMetaData(ctx, NodeMetaDataParameters{NodeIDs: []int64{100}, IncludeProperties: true, IncludeChildIDs: true})
	require.NoError(t, err)
	assert.Equal(t, int64(200), second[0].ChildIDs[0])
	assert.Equal(t, "Report", second[0].Properties[qnTitle].(property.MLText)["en"])
}

func TestMemoryRepository_MetaDataOrderAndRange(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	nodes, err := r.GetNodesMetaData(ctx, NodeMetaDataParameters{NodeIDs: []int64{101, 999, 100}})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, int64(101), nodes[0].ID)
	assert.Equal(t, int64(100), nodes[1].ID)

	one := 1
	nodes, err = r.GetNodesMetaData(ctx, NodeMetaDataParameters{FromNodeID: i64(100), ToNodeID: i64(200), MaxResults: &one})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, int64(100), nodes[0].ID)
}

func TestMemoryRepository_GetTextContent(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	tc, err := r.GetTextContent(ctx, 100, qnContent, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(tc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, ContentOK, tc.Status)
	require.NoError(t, tc.Close())
	require.NoError(t, tc.Close())

	later := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tc, err = r.GetTextContent(ctx, 100, qnContent, &later)
	require.NoError(t, err)
	assert.Equal(t, ContentNotModified, tc.Status)

	earlier := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tc, err = r.GetTextContent(ctx, 100, qnContent, &earlier)
	require.NoError(t, err)
	assert.Equal(t, ContentOK, tc.Status)

	tc, err = r.GetTextContent(ctx, 101, dictionary.QName{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ContentTransformFailed, tc.Status)
	assert.Equal(t, "boom", tc.TransformException)
	body, err = io.ReadAll(tc)
	require.NoError(t, err)
	assert.Empty(t, body)

	_, err = r.GetTextContent(ctx, 555, qnContent, nil)
	var statusErr *UnexpectedStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestMemoryRepository_Models(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()
	qnGone := dictionary.MustParseQName("{urn:gone}model")
	qnNew := dictionary.MustParseQName("{urn:new}model")
	r.PutModel(Model{Name: qnNew, Checksum: 7})

	diffs, err := r.GetModelsDiff(ctx, []ModelRef{{Name: qnModel, Checksum: 41}, {Name: qnGone, Checksum: 3}})
	require.NoError(t, err)
	require.Len(t, diffs, 3)

	byName := map[dictionary.QName]ModelDiff{}
	for _, d := range diffs {
		byName[d.Name] = d
	}
	assert.Equal(t, ModelChanged, byName[qnModel].Type)
	assert.Equal(t, int64(41), *byName[qnModel].OldChecksum)
	assert.Equal(t, int64(42), *byName[qnModel].NewChecksum)
	assert.Equal(t, ModelNew, byName[qnNew].Type)
	assert.Nil(t, byName[qnNew].OldChecksum)
	assert.Equal(t, ModelRemoved, byName[qnGone].Type)
	assert.Nil(t, byName[qnGone].NewChecksum)

	diffs, err = r.GetModelsDiff(ctx, []ModelRef{{Name: qnModel, Checksum: 42}, {Name: qnNew, Checksum: 7}})
	require.NoError(t, err)
	assert.Empty(t, diffs)

	m, err := r.GetModel(ctx, qnModel, i64(42))
	require.NoError(t, err)
	assert.Equal(t, "<model/>", string(m.Content))

	_, err = r.GetModel(ctx, qnModel, i64(1))
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, int64(42), mismatch.Actual)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = r.GetModel(ctx, qnGone, nil)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestMemoryRepository_CommitTimes(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	next, err := r.GetNextTxCommitTime(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(300), next)

	_, err = r.GetNextTxCommitTime(ctx, 500)
	assert.ErrorIs(t, err, ErrNoTransaction)

	iv, err := r.GetTxIntervalCommitTime(ctx, 100, 103)
	require.NoError(t, err)
	assert.Equal(t, CommitTimeInterval{MinCommitTimeMs: 100, MaxCommitTimeMs: 400}, iv)

	_, err = r.GetTxIntervalCommitTime(ctx, 900, 1000)
	assert.ErrorIs(t, err, ErrNoTransaction)
}

func TestMemoryRepository_FailureSwitch(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	r.SetFailure(true)
	_, err := r.GetAclChangeSets(ctx, CursorQuery{})
	assert.ErrorIs(t, err, ErrInjectedFailure)
	_, err = r.GetNodes(ctx, GetNodesParameters{}, 0)
	assert.ErrorIs(t, err, ErrInjectedFailure)
	_, err = r.GetTxIntervalCommitTime(ctx, 0, 1)
	assert.ErrorIs(t, err, ErrInjectedFailure)

	r.SetFailure(false)
	_, err = r.GetAclChangeSets(ctx, CursorQuery{})
	assert.NoError(t, err)
}

func TestMemoryRepository_Close(t *testing.T) {
	r := seededRepository(t)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.GetModelsDiff(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryRepository_CanceledContext(t *testing.T) {
	r := seededRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetAcls(ctx, nil, nil, 0)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	r := seededRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.PutTransactions(Transaction{ID: int64(100 + i), CommitTimeMs: int64(1000 + i)})
		}()
		go func() {
			defer wg.Done()
			_, err := r.GetTransactions(ctx, CursorQuery{}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	page, err := r.GetTransactions(ctx, CursorQuery{MinID: i64(100)}, nil)
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 8)
}

func TestMemoryRepository_ImplementsClient(t *testing.T) {
	var _ Client = NewMemoryRepository(nil)
	var _ Client = (*HTTPClient)(nil)
}
