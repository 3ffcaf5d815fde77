package tracking

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/repotrack/internal/wire"
)

// Encode adds the shard state to q as transactions query parameters.
// Property bag entries are sent as floc.property.<key> and state.property.<key>.
func (s *ShardState) Encode(q url.Values) {
	q.Set(wire.ParamBaseURL, s.BaseURL)
	q.Set(wire.ParamHostName, s.HostName)
	q.Set(wire.ParamTemplate, s.Template)
	for _, k := range sortedKeys(s.FlocProperties) {
		q.Set(wire.FlocPropertyPrefix+k, s.FlocProperties[k])
	}
	for _, k := range sortedKeys(s.StateProperties) {
		q.Set(wire.StatePropertyPrefix+k, s.StateProperties[k])
	}
	q.Set(wire.ParamInstance, strconv.Itoa(s.Instance))
	q.Set(wire.ParamNumberOfShards, strconv.Itoa(s.NumberOfShards))
	q.Set(wire.ParamPort, strconv.Itoa(s.Port))
	q.Set(wire.ParamStores, strings.Join(s.StoreRefs, ","))
	q.Set(wire.ParamIsMaster, strconv.FormatBool(s.Master))
	q.Set(wire.ParamHasContent, strconv.FormatBool(s.HasContent))
	q.Set(wire.ParamShardMethod, s.ShardMethod)
	q.Set(wire.ParamLastUpdated, strconv.FormatInt(s.LastUpdated, 10))
	q.Set(wire.ParamLastIndexedChangeSetCommitTime, strconv.FormatInt(s.LastIndexedChangeSetCommitTime, 10))
	q.Set(wire.ParamLastIndexedChangeSetID, strconv.FormatInt(s.LastIndexedChangeSetID, 10))
	q.Set(wire.ParamLastIndexedTxCommitTime, strconv.FormatInt(s.LastIndexedTxCommitTime, 10))
	q.Set(wire.ParamLastIndexedTxID, strconv.FormatInt(s.LastIndexedTxID, 10))
}

// ShardStateFromQuery reads a shard state from transactions query parameters.
// It returns nil when the query carries no shard state.
func ShardStateFromQuery(q url.Values) (*ShardState, error) {
	if !q.Has(wire.ParamBaseURL) && !q.Has(wire.ParamShardMethod) {
		return nil, nil
	}
	s := &ShardState{
		BaseURL:     q.Get(wire.ParamBaseURL),
		HostName:    q.Get(wire.ParamHostName),
		Template:    q.Get(wire.ParamTemplate),
		ShardMethod: q.Get(wire.ParamShardMethod),
	}
	if stores := q.Get(wire.ParamStores); stores != "" {
		s.StoreRefs = strings.Split(stores, ",")
	}
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		if k, ok := strings.CutPrefix(key, wire.FlocPropertyPrefix); ok {
			if s.FlocProperties == nil {
				s.FlocProperties = map[string]string{}
			}
			s.FlocProperties[k] = values[0]
		}
		if k, ok := strings.CutPrefix(key, wire.StatePropertyPrefix); ok {
			if s.StateProperties == nil {
				s.StateProperties = map[string]string{}
			}
			s.StateProperties[k] = values[0]
		}
	}

	var err error
	if s.Instance, err = wire.Int(q, wire.ParamInstance, 0); err != nil {
		return nil, err
	}
	if s.NumberOfShards, err = wire.Int(q, wire.ParamNumberOfShards, 0); err != nil {
		return nil, err
	}
	if s.Port, err = wire.Int(q, wire.ParamPort, 0); err != nil {
		return nil, err
	}
	if s.Master, err = boolParam(q, wire.ParamIsMaster); err != nil {
		return nil, err
	}
	if s.HasContent, err = boolParam(q, wire.ParamHasContent); err != nil {
		return nil, err
	}
	for key, dst := range map[string]*int64{
		wire.ParamLastUpdated:                    &s.LastUpdated,
		wire.ParamLastIndexedChangeSetCommitTime: &s.LastIndexedChangeSetCommitTime,
		wire.ParamLastIndexedChangeSetID:         &s.LastIndexedChangeSetID,
		wire.ParamLastIndexedTxCommitTime:        &s.LastIndexedTxCommitTime,
		wire.ParamLastIndexedTxID:                &s.LastIndexedTxID,
	} {
		v, err := wire.Int64(q, key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			*dst = *v
		}
	}
	return s, nil
}

func boolParam(q url.Values, key string) (bool, error) {
	s := q.Get(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &wire.ParamError{Name: key, Value: s, Err: err}
	}
	return b, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
