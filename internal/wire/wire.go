// Package wire defines the HTTP surface of the repository tracking API: paths,
// headers, query parameters and the JSON documents exchanged on each path.
//
// It is shared by the HTTP client and the stub server so both ends agree on
// the format.
package wire

import (
	"net/url"
	"strconv"
)

// Paths relative to the repository base URL.
const (
	PathAclChangeSets       = "api/solr/aclchangesets"
	PathAcls                = "api/solr/acls"
	PathAclReaders          = "api/solr/aclsReaders"
	PathTransactions        = "api/solr/transactions"
	PathMetadata            = "api/solr/metadata"
	PathNodes               = "api/solr/nodes"
	PathTextContent         = "api/solr/textContent"
	PathModel               = "api/solr/model"
	PathModelsDiff          = "api/solr/modelsdiff"
	PathNextTransaction     = "api/solr/nextTransaction"
	PathTransactionInterval = "api/solr/transactionInterval"
)

// Headers.
const (
	HeaderModelChecksum      = "XAlfresco-modelChecksum"
	HeaderTransformStatus    = "X-Alfresco-transformStatus"
	HeaderTransformException = "X-Alfresco-transformException"
	HeaderTransformDuration  = "X-Alfresco-transformDuration"
	HeaderIfModifiedSince    = "If-Modified-Since"
	HeaderLastModified       = "Last-Modified"
)

// Transform status header values sent with 204 text content responses.
const (
	TransformNoTransform = "noTransform"
	TransformFailed      = "transformFailed"
	TransformNoContent   = "noContent"
)

// Query parameter names.
const (
	ParamFromTime       = "fromTime"
	ParamFromID         = "fromId"
	ParamToTime         = "toTime"
	ParamToID           = "toId"
	ParamMaxResults     = "maxResults"
	ParamFromCommitTime = "fromCommitTime"
	ParamMinTxnID       = "minTxnId"
	ParamToCommitTime   = "toCommitTime"
	ParamMaxTxnID       = "maxTxnId"
	ParamNodeID         = "nodeId"
	ParamPropertyQName  = "propertyQName"
	ParamModelQName     = "modelQName"
	ParamFromNodeID     = "fromNodeId"
	ParamToNodeID       = "toNodeId"
)

// Shard state query parameter names.
const (
	ParamBaseURL                        = "baseUrl"
	ParamHostName                       = "hostName"
	ParamTemplate                       = "template"
	ParamInstance                       = "instance"
	ParamNumberOfShards                 = "numberOfShards"
	ParamPort                           = "port"
	ParamStores                         = "stores"
	ParamIsMaster                       = "isMaster"
	ParamHasContent                     = "hasContent"
	ParamShardMethod                    = "shardMethod"
	ParamLastUpdated                    = "lastUpdated"
	ParamLastIndexedChangeSetCommitTime = "lastIndexedChangeSetCommitTime"
	ParamLastIndexedChangeSetID         = "lastIndexedChangeSetId"
	ParamLastIndexedTxCommitTime        = "lastIndexedTxCommitTime"
	ParamLastIndexedTxID                = "lastIndexedTxId"

	FlocPropertyPrefix  = "floc.property."
	StatePropertyPrefix = "state.property."
)

// Node status codes.
const (
	NodeStatusUpdated         = "u"
	NodeStatusDeleted         = "d"
	NodeStatusNonShardUpdated = "nu"
	NodeStatusNonShardDeleted = "nd"
)

// SetInt64 sets key to v when v is non-nil.
func SetInt64(q url.Values, key string, v *int64) {
	if v != nil {
		q.Set(key, strconv.FormatInt(*v, 10))
	}
}

// Int64 parses an optional int64 query parameter. A missing key yields nil.
func Int64(q url.Values, key string) (*int64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &ParamError{Name: key, Value: s, Err: err}
	}
	return &v, nil
}

// Int parses an optional int query parameter. A missing key yields def.
func Int(q url.Values, key string, def int) (int, error) {
	s := q.Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParamError{Name: key, Value: s, Err: err}
	}
	return v, nil
}

// ParamError reports a malformed query parameter.
type ParamError struct {
	Name  string
	Value string
	Err   error
}

func (e *ParamError) Error() string {
	return "invalid query parameter " + e.Name + "=" + strconv.Quote(e.Value) + ": " + e.Err.Error()
}

func (e *ParamError) Unwrap() error { return e.Err }
