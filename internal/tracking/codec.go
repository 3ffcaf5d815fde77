package tracking

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/property"
	"github.com/fyrsmithlabs/repotrack/internal/wire"
)

// Conversions between wire documents and tracking records. The FromWire
// functions are used by HTTPClient; the ToWire functions by servers that
// expose a Client over HTTP.

// AclChangeSetsFromWire converts an aclchangesets response.
func AclChangeSetsFromWire(w wire.AclChangeSetsResponse) *AclChangeSets {
	out := &AclChangeSets{
		ChangeSets:    make([]AclChangeSet, 0, len(w.AclChangeSets)),
		MaxCommitTime: w.MaxChangeSetCommitTime,
		MaxID:         w.MaxChangeSetID,
	}
	for _, cs := range w.AclChangeSets {
		out.ChangeSets = append(out.ChangeSets, AclChangeSet(cs))
	}
	return out
}

// AclChangeSetsToWire converts a page of ACL change sets.
func AclChangeSetsToWire(p *AclChangeSets) wire.AclChangeSetsResponse {
	w := wire.AclChangeSetsResponse{
		AclChangeSets:          make([]wire.AclChangeSet, 0, len(p.ChangeSets)),
		MaxChangeSetCommitTime: p.MaxCommitTime,
		MaxChangeSetID:         p.MaxID,
	}
	for _, cs := range p.ChangeSets {
		w.AclChangeSets = append(w.AclChangeSets, wire.AclChangeSet(cs))
	}
	return w
}

// TransactionsFromWire converts a transactions response.
func TransactionsFromWire(w wire.TransactionsResponse) *Transactions {
	out := &Transactions{
		Transactions:  make([]Transaction, 0, len(w.Transactions)),
		MaxCommitTime: w.MaxTxnCommitTime,
		MaxID:         w.MaxTxnID,
	}
	for _, tx := range w.Transactions {
		out.Transactions = append(out.Transactions, Transaction(tx))
	}
	return out
}

// TransactionsToWire converts a page of transactions.
func TransactionsToWire(p *Transactions) wire.TransactionsResponse {
	w := wire.TransactionsResponse{
		Transactions:     make([]wire.Transaction, 0, len(p.Transactions)),
		MaxTxnCommitTime: p.MaxCommitTime,
		MaxTxnID:         p.MaxID,
	}
	for _, tx := range p.Transactions {
		w.Transactions = append(w.Transactions, wire.Transaction(tx))
	}
	return w
}

// AclsFromWire converts an acls response.
func AclsFromWire(w wire.AclsResponse) []Acl {
	out := make([]Acl, 0, len(w.Acls))
	for _, a := range w.Acls {
		out = append(out, Acl(a))
	}
	return out
}

// AclsToWire converts ACLs.
func AclsToWire(acls []Acl) wire.AclsResponse {
	w := wire.AclsResponse{Acls: make([]wire.Acl, 0, len(acls))}
	for _, a := range acls {
		w.Acls = append(w.Acls, wire.Acl(a))
	}
	return w
}

// AclReadersFromWire converts an aclsReaders response. A null tenant domain is
// the default domain.
func AclReadersFromWire(w wire.AclReadersResponse) []AclReaders {
	out := make([]AclReaders, 0, len(w.AclsReaders))
	for _, r := range w.AclsReaders {
		ar := AclReaders{
			AclID:          r.AclID,
			Readers:        r.Readers,
			Denied:         r.Denied,
			AclChangeSetID: r.AclChangeSetID,
		}
		if r.TenantDomain != nil {
			ar.TenantDomain = *r.TenantDomain
		}
		out = append(out, ar)
	}
	return out
}

// AclReadersToWire converts ACL readers.
func AclReadersToWire(readers []AclReaders) wire.AclReadersResponse {
	w := wire.AclReadersResponse{AclsReaders: make([]wire.AclReaders, 0, len(readers))}
	for _, r := range readers {
		tenant := r.TenantDomain
		w.AclsReaders = append(w.AclsReaders, wire.AclReaders{
			AclID:          r.AclID,
			Readers:        nonNil(r.Readers),
			Denied:         nonNil(r.Denied),
			AclChangeSetID: r.AclChangeSetID,
			TenantDomain:   &tenant,
		})
	}
	return w
}

// NodeStatusFromWire maps a wire status code. Unknown codes map to NodeStatusUnknown.
func NodeStatusFromWire(s string) NodeStatus {
	switch s {
	case wire.NodeStatusUpdated:
		return NodeStatusUpdated
	case wire.NodeStatusDeleted:
		return NodeStatusDeleted
	case wire.NodeStatusNonShardUpdated:
		return NodeStatusNonShardUpdated
	case wire.NodeStatusNonShardDeleted:
		return NodeStatusNonShardDeleted
	default:
		return NodeStatusUnknown
	}
}

// NodeStatusToWire maps a status to its wire code. NodeStatusUnknown has none.
func NodeStatusToWire(s NodeStatus) string {
	switch s {
	case NodeStatusUpdated:
		return wire.NodeStatusUpdated
	case NodeStatusDeleted:
		return wire.NodeStatusDeleted
	case NodeStatusNonShardUpdated:
		return wire.NodeStatusNonShardUpdated
	case NodeStatusNonShardDeleted:
		return wire.NodeStatusNonShardDeleted
	default:
		return ""
	}
}

// NodesFromWire converts a nodes response.
func NodesFromWire(w wire.NodesResponse[wire.Node]) []Node {
	out := make([]Node, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		out = append(out, Node{
			ID:                 n.ID,
			NodeRef:            n.NodeRef,
			TxnID:              n.TxnID,
			Status:             NodeStatusFromWire(n.Status),
			Tenant:             n.Tenant,
			AclID:              n.AclID,
			ShardPropertyValue: n.ShardPropertyValue,
			ExplicitShardID:    n.ExplicitShardID,
		})
	}
	return out
}

// NodesToWire converts node change records.
func NodesToWire(nodes []Node) wire.NodesResponse[wire.Node] {
	w := wire.NodesResponse[wire.Node]{Nodes: make([]wire.Node, 0, len(nodes))}
	for _, n := range nodes {
		w.Nodes = append(w.Nodes, wire.Node{
			ID:                 n.ID,
			NodeRef:            n.NodeRef,
			TxnID:              n.TxnID,
			AclID:              n.AclID,
			ShardPropertyValue: n.ShardPropertyValue,
			ExplicitShardID:    n.ExplicitShardID,
			Tenant:             n.Tenant,
			Status:             NodeStatusToWire(n.Status),
		})
	}
	return w
}

// NodesRequestToWire builds the body of POST nodes.
func NodesRequestToWire(p GetNodesParameters, maxResults int) wire.NodesRequest {
	w := wire.NodesRequest{
		TxnIDs:     p.TransactionIDs,
		FromNodeID: p.FromNodeID,
		ToNodeID:   p.ToNodeID,
		MaxResults: maxResults,
	}
	if p.ExcludeAspects != nil {
		w.ExcludeAspects = qnameStrings(p.ExcludeAspects)
	}
	if p.IncludeAspects != nil {
		w.IncludeAspects = qnameStrings(p.IncludeAspects)
	}
	if p.StoreProtocol != "" {
		w.StoreProtocol = &p.StoreProtocol
	}
	if p.StoreIdentifier != "" {
		w.StoreIdentifier = &p.StoreIdentifier
	}
	if p.ShardProperty != nil {
		s := p.ShardProperty.String()
		w.ShardProperty = &s
	}
	if p.CoreName != "" {
		w.CoreName = &p.CoreName
	}
	return w
}

// NodesRequestFromWire parses the body of POST nodes.
func NodesRequestFromWire(w wire.NodesRequest) (GetNodesParameters, int, error) {
	p := GetNodesParameters{
		TransactionIDs: w.TxnIDs,
		FromNodeID:     w.FromNodeID,
		ToNodeID:       w.ToNodeID,
	}
	var err error
	if w.ExcludeAspects != nil {
		if p.ExcludeAspects, err = parseQNames(w.ExcludeAspects); err != nil {
			return p, 0, err
		}
	}
	if w.IncludeAspects != nil {
		if p.IncludeAspects, err = parseQNames(w.IncludeAspects); err != nil {
			return p, 0, err
		}
	}
	if w.StoreProtocol != nil {
		p.StoreProtocol = *w.StoreProtocol
	}
	if w.StoreIdentifier != nil {
		p.StoreIdentifier = *w.StoreIdentifier
	}
	if w.ShardProperty != nil {
		q, err := dictionary.ParseQName(*w.ShardProperty)
		if err != nil {
			return p, 0, err
		}
		p.ShardProperty = &q
	}
	if w.CoreName != nil {
		p.CoreName = *w.CoreName
	}
	return p, w.MaxResults, nil
}

// MetadataRequestToWire builds the body of POST metadata. Only false include
// flags are sent.
func MetadataRequestToWire(p NodeMetaDataParameters) wire.MetadataRequest {
	w := wire.MetadataRequest{
		FromNodeID: p.FromNodeID,
		ToNodeID:   p.ToNodeID,
		MaxResults: p.MaxResults,
	}
	if len(p.NodeIDs) > 0 {
		w.NodeIDs = p.NodeIDs
	}
	w.IncludeAclID = falseOnly(p.IncludeAclID)
	w.IncludeAspects = falseOnly(p.IncludeAspects)
	w.IncludeProperties = falseOnly(p.IncludeProperties)
	w.IncludeChildAssociations = falseOnly(p.IncludeChildAssociations)
	w.IncludeParentAssociations = falseOnly(p.IncludeParentAssociations)
	w.IncludeChildIDs = falseOnly(p.IncludeChildIDs)
	w.IncludePaths = falseOnly(p.IncludePaths)
	w.IncludeOwner = falseOnly(p.IncludeOwner)
	w.IncludeNodeRef = falseOnly(p.IncludeNodeRef)
	w.IncludeTxnID = falseOnly(p.IncludeTxnID)
	w.IncludeType = falseOnly(p.IncludeType)
	return w
}

// MetadataRequestFromWire parses the body of POST metadata. Absent flags are true.
func MetadataRequestFromWire(w wire.MetadataRequest) NodeMetaDataParameters {
	return NodeMetaDataParameters{
		NodeIDs:                   w.NodeIDs,
		FromNodeID:                w.FromNodeID,
		ToNodeID:                  w.ToNodeID,
		MaxResults:                w.MaxResults,
		IncludeAclID:              trueUnlessSet(w.IncludeAclID),
		IncludeAspects:            trueUnlessSet(w.IncludeAspects),
		IncludeProperties:         trueUnlessSet(w.IncludeProperties),
		IncludeChildAssociations:  trueUnlessSet(w.IncludeChildAssociations),
		IncludeParentAssociations: trueUnlessSet(w.IncludeParentAssociations),
		IncludeChildIDs:           trueUnlessSet(w.IncludeChildIDs),
		IncludePaths:              trueUnlessSet(w.IncludePaths),
		IncludeOwner:              trueUnlessSet(w.IncludeOwner),
		IncludeNodeRef:            trueUnlessSet(w.IncludeNodeRef),
		IncludeTxnID:              trueUnlessSet(w.IncludeTxnID),
		IncludeType:               trueUnlessSet(w.IncludeType),
	}
}

// NodeMetaDataFromWire converts one metadata entry, decoding properties with d.
func NodeMetaDataFromWire(w wire.NodeMetaData, d *property.Deserializer) (NodeMetaData, error) {
	md := NodeMetaData{
		ID:              w.ID,
		TxnID:           w.TxnID,
		AclID:           w.AclID,
		NodeRef:         w.NodeRef,
		Ancestors:       w.Ancestors,
		ParentAssocs:    w.ParentAssocs,
		ParentAssocsCrc: w.ParentAssocsCrc,
		ChildAssocs:     w.ChildAssocs,
		ChildIDs:        w.ChildIDs,
		Owner:           w.Owner,
	}
	if w.TenantDomain != nil {
		md.TenantDomain = *w.TenantDomain
	}
	if w.Type != nil {
		q, err := dictionary.ParseQName(*w.Type)
		if err != nil {
			return md, fmt.Errorf("node %d type: %w", w.ID, err)
		}
		md.Type = &q
	}
	if w.Aspects != nil {
		aspects, err := parseQNames(w.Aspects)
		if err != nil {
			return md, fmt.Errorf("node %d aspects: %w", w.ID, err)
		}
		md.Aspects = aspects
	}
	if w.Paths != nil {
		md.Paths = make([]Path, 0, len(w.Paths))
		md.AncestorPaths = make([]string, 0, len(w.Paths))
		for _, p := range w.Paths {
			path := Path{Path: p.Path, APath: p.APath}
			if p.QName != nil {
				q, err := dictionary.ParseQName(*p.QName)
				if err != nil {
					return md, fmt.Errorf("node %d path qname: %w", w.ID, err)
				}
				path.QName = &q
			}
			md.Paths = append(md.Paths, path)
			if p.APath != nil {
				md.AncestorPaths = append(md.AncestorPaths, *p.APath)
			}
		}
	}
	if w.NamePaths != nil {
		md.NamePaths = make([][]string, 0, len(w.NamePaths))
		for _, np := range w.NamePaths {
			md.NamePaths = append(md.NamePaths, np.NamePath)
		}
	}
	if w.Properties != nil {
		md.Properties = make(map[dictionary.QName]property.Value, len(w.Properties))
		for name, raw := range w.Properties {
			q, err := dictionary.ParseQName(name)
			if err != nil {
				return md, fmt.Errorf("node %d property name: %w", w.ID, err)
			}
			v, err := d.Decode(q, raw)
			if err != nil {
				return md, fmt.Errorf("node %d: %w", w.ID, err)
			}
			md.Properties[q] = v
		}
	}
	return md, nil
}

// NodeMetaDataToWire converts node metadata. Each path carries its own apath;
// AncestorPaths is not encoded.
func NodeMetaDataToWire(md NodeMetaData) (wire.NodeMetaData, error) {
	tenant := md.TenantDomain
	w := wire.NodeMetaData{
		ID:              md.ID,
		TenantDomain:    &tenant,
		TxnID:           md.TxnID,
		AclID:           md.AclID,
		NodeRef:         md.NodeRef,
		Ancestors:       md.Ancestors,
		ParentAssocsCrc: md.ParentAssocsCrc,
		ParentAssocs:    md.ParentAssocs,
		ChildAssocs:     md.ChildAssocs,
		ChildIDs:        md.ChildIDs,
		Owner:           md.Owner,
	}
	if md.Type != nil {
		s := md.Type.String()
		w.Type = &s
	}
	if md.Aspects != nil {
		w.Aspects = qnameStrings(md.Aspects)
	}
	if md.Paths != nil {
		w.Paths = make([]wire.Path, 0, len(md.Paths))
		for _, p := range md.Paths {
			wp := wire.Path{Path: p.Path, APath: p.APath}
			if p.QName != nil {
				s := p.QName.String()
				wp.QName = &s
			}
			w.Paths = append(w.Paths, wp)
		}
	}
	if md.NamePaths != nil {
		w.NamePaths = make([]wire.NamePath, 0, len(md.NamePaths))
		for _, np := range md.NamePaths {
			w.NamePaths = append(w.NamePaths, wire.NamePath{NamePath: nonNil(np)})
		}
	}
	if md.Properties != nil {
		w.Properties = make(map[string]json.RawMessage, len(md.Properties))
		for name, v := range md.Properties {
			raw, err := marshalValue(v)
			if err != nil {
				return w, fmt.Errorf("node %d property %s: %w", md.ID, name, err)
			}
			w.Properties[name.String()] = raw
		}
	}
	return w, nil
}

// ModelDiffFromWire converts one diff entry. A missing type is inferred from the
// checksums present: only new means NEW, both mean CHANGED, neither means REMOVED.
func ModelDiffFromWire(w wire.ModelDiff) (ModelDiff, error) {
	name, err := dictionary.ParseQName(w.Name)
	if err != nil {
		return ModelDiff{}, err
	}
	d := ModelDiff{Name: name, OldChecksum: w.OldChecksum, NewChecksum: w.NewChecksum}
	switch ModelDiffType(w.Type) {
	case ModelNew, ModelChanged, ModelRemoved:
		d.Type = ModelDiffType(w.Type)
	case "":
		d.Type = inferDiffType(w.OldChecksum, w.NewChecksum)
	default:
		return ModelDiff{}, fmt.Errorf("model %s: unknown diff type %q", w.Name, w.Type)
	}
	return d, nil
}

func inferDiffType(oldSum, newSum *int64) ModelDiffType {
	switch {
	case newSum != nil && oldSum == nil:
		return ModelNew
	case newSum != nil:
		return ModelChanged
	default:
		return ModelRemoved
	}
}

// ModelDiffsToWire converts model diffs.
func ModelDiffsToWire(diffs []ModelDiff) wire.ModelsDiffResponse {
	w := wire.ModelsDiffResponse{Diffs: make([]wire.ModelDiff, 0, len(diffs))}
	for _, d := range diffs {
		w.Diffs = append(w.Diffs, wire.ModelDiff{
			Name:        d.Name.String(),
			Type:        string(d.Type),
			OldChecksum: d.OldChecksum,
			NewChecksum: d.NewChecksum,
		})
	}
	return w
}

// ModelRefsToWire builds the body of POST modelsdiff.
func ModelRefsToWire(models []ModelRef) wire.ModelsDiffRequest {
	w := wire.ModelsDiffRequest{Models: make([]wire.ModelRef, 0, len(models))}
	for _, m := range models {
		w.Models = append(w.Models, wire.ModelRef{Name: m.Name.String(), Checksum: m.Checksum})
	}
	return w
}

// ModelRefsFromWire parses the body of POST modelsdiff.
func ModelRefsFromWire(w wire.ModelsDiffRequest) ([]ModelRef, error) {
	out := make([]ModelRef, 0, len(w.Models))
	for _, m := range w.Models {
		name, err := dictionary.ParseQName(m.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, ModelRef{Name: name, Checksum: m.Checksum})
	}
	return out, nil
}

func marshalValue(v property.Value) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(v)
}

func parseQNames(names []string) ([]dictionary.QName, error) {
	out := make([]dictionary.QName, 0, len(names))
	for _, n := range names {
		q, err := dictionary.ParseQName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func qnameStrings(names []dictionary.QName) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n.String())
	}
	return out
}

func falseOnly(b bool) *bool {
	if b {
		return nil
	}
	f := false
	return &f
}

func trueUnlessSet(b *bool) bool {
	return b == nil || *b
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
