package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Order is the direction of a single index key.
type Order int

const (
	Ascending  Order = 1
	Descending Order = -1
)

// IndexKey is one field of an index key pattern.
type IndexKey struct {
	Field string
	Order Order
}

// Role is an authorization grant scoped to one database.
type Role struct {
	Name     string
	Database string
}

func (r Role) String() string {
	return r.Name + "@" + r.Database
}

type Credential struct {
	Username string
	Password string
	Roles    []Role
}

// IndexSpec describes one secondary index on one collection.
type IndexSpec struct {
	Collection         string
	Name               string
	Keys               []IndexKey
	Unique             bool
	ExpireAfterSeconds *int32
	// Unmanaged lists options found on an existing index that a declaration
	// cannot express, e.g. "sparse" or a partial filter.
	Unmanaged          []string
}

// IndexName returns the explicit name or the store's default name
// (fields and orders joined by underscores, e.g. "article_id_1_user_id_1").
func (i IndexSpec) IndexName() string {
	if i.Name != "" {
		return i.Name
	}

	parts := make([]string, 0, len(i.Keys)*2)
	for _, k := range i.Keys {
		parts = append(parts, k.Field, strconv.Itoa(int(k.Order)))
	}
	return strings.Join(parts, "_")
}

// KeyPattern renders the key pattern, e.g. "article_id:1,user_id:1".
func (i IndexSpec) KeyPattern() string {
	parts := make([]string, 0, len(i.Keys))
	for _, k := range i.Keys {
		parts = append(parts, k.Field+":"+strconv.Itoa(int(k.Order)))
	}
	return strings.Join(parts, ",")
}

func (i IndexSpec) IsTTL() bool {
	return i.ExpireAfterSeconds != nil
}

// SameKeys reports whether both indexes share the exact ordered key pattern.
func (i IndexSpec) SameKeys(other IndexSpec) bool {
	if len(i.Keys) != len(other.Keys) {
		return false
	}
	for n := range i.Keys {
		if i.Keys[n] != other.Keys[n] {
			return false
		}
	}
	return true
}

// SameOptions compares the options that change store behaviour.
func (i IndexSpec) SameOptions(other IndexSpec) bool {
	if len(i.Unmanaged) > 0 || len(other.Unmanaged) > 0 {
		return false
	}
	if i.Unique != other.Unique {
		return false
	}
	if i.IsTTL() != other.IsTTL() {
		return false
	}
	return !i.IsTTL() || *i.ExpireAfterSeconds == *other.ExpireAfterSeconds
}

// Equivalent is true when other would be a no-op recreation of i.
func (i IndexSpec) Equivalent(other IndexSpec) bool {
	return i.SameKeys(other) && i.SameOptions(other)
}

// Describe renders the index for log lines and error messages.
func (i IndexSpec) Describe() string {
	var opts []string
	if i.Unique {
		opts = append(opts, "unique")
	}
	if i.IsTTL() {
		opts = append(opts, fmt.Sprintf("expireAfterSeconds=%d", *i.ExpireAfterSeconds))
	}
	opts = append(opts, i.Unmanaged...)
	desc := fmt.Sprintf("%s.%s {%s}", i.Collection, i.IndexName(), i.KeyPattern())
	if len(opts) > 0 {
		desc += " " + strings.Join(opts, ",")
	}
	return desc
}

// Spec is everything the provisioner ensures on the target store.
type Spec struct {
	Database    string
	Credential  Credential
	Collections []string
	Indexes     []IndexSpec
}

// Validate rejects malformed specs before any store call is made.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Database) == "" {
		return specError("database", "database name cannot be empty")
	}
	if strings.ContainsAny(s.Database, `/\. "$`) {
		return specError(s.Database, "database name contains an invalid character")
	}

	if err := s.validateCredential(); err != nil {
		return err
	}

	if len(s.Collections) == 0 {
		return specError("collections", "at least one collection is required")
	}

	seen := make(map[string]bool, len(s.Collections))
	for _, name := range s.Collections {
		if strings.TrimSpace(name) == "" {
			return specError("collection", "collection name cannot be empty")
		}
		if strings.HasPrefix(name, "system.") || strings.Contains(name, "$") {
			return specError(name, "invalid collection name")
		}
		if seen[name] {
			return specError(name, "collection listed twice")
		}
		seen[name] = true
	}

	for _, idx := range s.Indexes {
		if !seen[idx.Collection] {
			return specError(idx.Describe(), fmt.Sprintf("index targets undeclared collection %q", idx.Collection))
		}
		if len(idx.Keys) == 0 {
			return specError(idx.Collection, "index has no keys")
		}
		fields := make(map[string]bool, len(idx.Keys))
		for _, k := range idx.Keys {
			if strings.TrimSpace(k.Field) == "" {
				return specError(idx.Collection, "index key field cannot be empty")
			}
			if k.Order != Ascending && k.Order != Descending {
				return specError(idx.Describe(), fmt.Sprintf("key %q has order %d, want 1 or -1", k.Field, k.Order))
			}
			if fields[k.Field] {
				return specError(idx.Describe(), fmt.Sprintf("key %q repeated", k.Field))
			}
			fields[k.Field] = true
		}
		if idx.IsTTL() {
			if *idx.ExpireAfterSeconds < 0 {
				return specError(idx.Describe(), "expireAfterSeconds cannot be negative")
			}
			if len(idx.Keys) != 1 {
				return specError(idx.Describe(), "TTL index must have exactly one key")
			}
		}
	}

	_, _, err := s.NormalizedIndexes()
	return err
}

func (s Spec) validateCredential() error {
	c := s.Credential
	if strings.TrimSpace(c.Username) == "" {
		return specError("credential", "username cannot be empty")
	}
	if c.Password == "" {
		return specError(c.Username, "password must be supplied through configuration")
	}
	if len(c.Roles) == 0 {
		return specError(c.Username, "credential needs at least one role")
	}
	for _, r := range c.Roles {
		if r.Name == "" {
			return specError(c.Username, "role name cannot be empty")
		}
		if r.Database != s.Database {
			return specError(c.Username, fmt.Sprintf("role %s must be scoped to %s", r, s.Database))
		}
	}
	return nil
}

// NormalizedIndexes collapses definitions that share a key pattern on the
// same collection. A plain definition is absorbed by a TTL definition with
// the same keys; the absorbed entries are returned as coalesced.
func (s Spec) NormalizedIndexes() (kept []IndexSpec, coalesced []IndexSpec, err error) {
	for _, idx := range s.Indexes {
		merged := false
		for n := range kept {
			cur := kept[n]
			if cur.Collection != idx.Collection {
				continue
			}
			if !cur.SameKeys(idx) {
				if cur.IndexName() == idx.IndexName() {
					return nil, nil, specError(idx.Describe(), "index name reused with different keys")
				}
				continue
			}

			switch {
			case cur.Equivalent(idx):
				coalesced = append(coalesced, idx)
			case absorbs(cur, idx):
				coalesced = append(coalesced, idx)
			case absorbs(idx, cur):
				if cur.Name != "" && idx.Name == "" {
					idx.Name = cur.Name
				}
				kept[n] = idx
				coalesced = append(coalesced, cur)
			default:
				return nil, nil, specError(idx.Describe(), fmt.Sprintf("conflicts with %s", cur.Describe()))
			}
			merged = true
			break
		}
		if !merged {
			kept = append(kept, idx)
		}
	}
	return kept, coalesced, nil
}

// absorbs reports whether ttl makes plain redundant.
func absorbs(ttl, plain IndexSpec) bool {
	return ttl.IsTTL() && !plain.IsTTL() && ttl.Unique == plain.Unique &&
		(plain.Name == "" || plain.Name == ttl.IndexName())
}

// IndexesFor returns the normalized indexes declared on one collection.
func IndexesFor(indexes []IndexSpec, collection string) []IndexSpec {
	var out []IndexSpec
	for _, idx := range indexes {
		if idx.Collection == collection {
			out = append(out, idx)
		}
	}
	return out
}
