package wire

import "encoding/json"

// AclChangeSet is one entry of an aclchangesets response.
type AclChangeSet struct {
	ID           int64 `json:"id"`
	CommitTimeMs int64 `json:"commitTimeMs"`
	AclCount     int   `json:"aclCount"`
}

// AclChangeSetsResponse is the body of GET aclchangesets.
type AclChangeSetsResponse struct {
	AclChangeSets          []AclChangeSet `json:"aclChangeSets"`
	MaxChangeSetCommitTime *int64         `json:"maxChangeSetCommitTime,omitempty"`
	MaxChangeSetID         *int64         `json:"maxChangeSetId,omitempty"`
}

// AclsRequest is the body of POST acls.
type AclsRequest struct {
	AclChangeSetIDs []int64 `json:"aclChangeSetIds"`
}

// Acl is one entry of an acls response.
type Acl struct {
	ID             int64 `json:"id"`
	AclChangeSetID int64 `json:"aclChangeSetId"`
}

// AclsResponse is the body returned by POST acls.
type AclsResponse struct {
	Acls []Acl `json:"acls"`
}

// AclReadersRequest is the body of POST aclsReaders.
type AclReadersRequest struct {
	AclIDs []int64 `json:"aclIds"`
}

// AclReaders is one entry of an aclsReaders response.
type AclReaders struct {
	AclID          int64    `json:"aclId"`
	Readers        []string `json:"readers"`
	Denied         []string `json:"denied"`
	AclChangeSetID int64    `json:"aclChangeSetId"`
	TenantDomain   *string  `json:"tenantDomain"`
}

// AclReadersResponse is the body returned by POST aclsReaders.
type AclReadersResponse struct {
	AclsReaders []AclReaders `json:"aclsReaders"`
}

// Transaction is one entry of a transactions response.
type Transaction struct {
	ID           int64 `json:"id"`
	CommitTimeMs int64 `json:"commitTimeMs"`
	Updates      int64 `json:"updates"`
	Deletes      int64 `json:"deletes"`
}

// TransactionsResponse is the body of GET transactions.
type TransactionsResponse struct {
	Transactions     []Transaction `json:"transactions"`
	MaxTxnCommitTime *int64        `json:"maxTxnCommitTime,omitempty"`
	MaxTxnID         *int64        `json:"maxTxnId,omitempty"`
}

// NodesRequest is the body of POST nodes.
type NodesRequest struct {
	TxnIDs          []int64  `json:"txnIds,omitzero"`
	FromNodeID      *int64   `json:"fromNodeId,omitempty"`
	ToNodeID        *int64   `json:"toNodeId,omitempty"`
	ExcludeAspects  []string `json:"excludeAspects,omitzero"`
	IncludeAspects  []string `json:"includeAspects,omitzero"`
	StoreProtocol   *string  `json:"storeProtocol,omitempty"`
	StoreIdentifier *string  `json:"storeIdentifier,omitempty"`
	MaxResults      int      `json:"maxResults"`
	ShardProperty   *string  `json:"shardProperty,omitempty"`
	CoreName        *string  `json:"coreName,omitempty"`
}

// Node is one entry of a nodes response.
type Node struct {
	ID                 int64   `json:"id"`
	NodeRef            string  `json:"nodeRef,omitempty"`
	TxnID              int64   `json:"txnId"`
	AclID              int64   `json:"aclId"`
	ShardPropertyValue *string `json:"shardPropertyValue,omitempty"`
	ExplicitShardID    *int    `json:"explicitShardId,omitempty"`
	Tenant             string  `json:"tenant"`
	Status             string  `json:"status,omitempty"`
}

// NodesResponse is the body returned by POST nodes and POST metadata.
type NodesResponse[T any] struct {
	Nodes []T `json:"nodes"`
}

// MetadataRequest is the body of POST metadata. Include flags are only sent
// when false, since the server treats them as true by default.
type MetadataRequest struct {
	NodeIDs                   []int64 `json:"nodeIds,omitzero"`
	FromNodeID                *int64  `json:"fromNodeId,omitempty"`
	ToNodeID                  *int64  `json:"toNodeId,omitempty"`
	IncludeAclID              *bool   `json:"includeAclId,omitempty"`
	IncludeAspects            *bool   `json:"includeAspects,omitempty"`
	IncludeProperties         *bool   `json:"includeProperties,omitempty"`
	IncludeChildAssociations  *bool   `json:"includeChildAssociations,omitempty"`
	IncludeParentAssociations *bool   `json:"includeParentAssociations,omitempty"`
	IncludeChildIDs           *bool   `json:"includeChildIds,omitempty"`
	IncludePaths              *bool   `json:"includePaths,omitempty"`
	IncludeOwner              *bool   `json:"includeOwner,omitempty"`
	IncludeNodeRef            *bool   `json:"includeNodeRef,omitempty"`
	IncludeTxnID              *bool   `json:"includeTxnId,omitempty"`
	IncludeType               *bool   `json:"includeType,omitempty"`
	MaxResults                *int    `json:"maxResults,omitempty"`
}

// Path is one entry of a metadata node's paths.
type Path struct {
	Path  string  `json:"path"`
	QName *string `json:"qname,omitempty"`
	APath *string `json:"apath,omitempty"`
}

// NamePath is one entry of a metadata node's namePaths.
type NamePath struct {
	NamePath []string `json:"namePath"`
}

// NodeMetaData is one entry of a metadata response. Absent fields are nil;
// collections present but empty decode to empty non-nil values.
type NodeMetaData struct {
	ID              int64                      `json:"id"`
	TenantDomain    *string                    `json:"tenantDomain,omitempty"`
	TxnID           *int64                     `json:"txnId,omitempty"`
	AclID           *int64                     `json:"aclId,omitempty"`
	NodeRef         *string                    `json:"nodeRef,omitempty"`
	Type            *string                    `json:"type,omitempty"`
	Aspects         []string                   `json:"aspects,omitzero"`
	Paths           []Path                     `json:"paths,omitzero"`
	NamePaths       []NamePath                 `json:"namePaths,omitzero"`
	Ancestors       []string                   `json:"ancestors,omitzero"`
	Properties      map[string]json.RawMessage `json:"properties,omitzero"`
	ParentAssocsCrc *int64                     `json:"parentAssocsCrc,omitempty"`
	ParentAssocs    []string                   `json:"parentAssocs,omitzero"`
	ChildAssocs     []string                   `json:"childAssocs,omitzero"`
	ChildIDs        []int64                    `json:"childIds,omitzero"`
	Owner           *string                    `json:"owner,omitempty"`
}

// ModelRef names a model and the checksum the client holds for it.
type ModelRef struct {
	Name     string `json:"name"`
	Checksum int64  `json:"checksum"`
}

// ModelsDiffRequest is the body of POST modelsdiff.
type ModelsDiffRequest struct {
	Models []ModelRef `json:"models"`
}

// ModelDiff is one entry of a modelsdiff response.
type ModelDiff struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	OldChecksum *int64 `json:"oldChecksum"`
	NewChecksum *int64 `json:"newChecksum"`
}

// ModelsDiffResponse is the body returned by POST modelsdiff.
type ModelsDiffResponse struct {
	Diffs []ModelDiff `json:"diffs"`
}

// NextTransactionResponse is the body of GET nextTransaction.
type NextTransactionResponse struct {
	NextTransactionCommitTimeMs *int64 `json:"nextTransactionCommitTimeMs"`
}

// TransactionIntervalResponse is the body of GET transactionInterval.
type TransactionIntervalResponse struct {
	MinTransactionCommitTimeMs *int64 `json:"minTransactionCommitTimeMs"`
	MaxTransactionCommitTimeMs *int64 `json:"maxTransactionCommitTimeMs"`
}
