// Package identity resolves assignment principal ids to directory
// objects. Lookups are batched through directoryObjects/getByIds and
// cached for the lifetime of the resolver, so a principal holding roles
// across several services is fetched once per run.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/graph"
)

type directoryReader interface {
	GetDirectoryObjectsByIDs(ctx context.Context, ids []string) ([]graph.DirectoryObject, error)
	ListGroupTransitiveMembers(ctx context.Context, groupID string) ([]graph.DirectoryObject, error)
}

// Principal is a resolved directory object. Deleted or otherwise
// unresolvable principals degrade to a placeholder with DisplayName
// "Unknown" rather than failing the run.
type Principal struct {
	ID           string
	Type         assignment.PrincipalType
	DisplayName  string
	UPN          string
	Enabled      *bool
	OnPremSynced *bool
}

type Resolver struct {
	graph directoryReader

	mu    sync.Mutex
	cache map[string]Principal
}

func NewResolver(g directoryReader) *Resolver {
	return &Resolver{
		graph: g,
		cache: make(map[string]Principal),
	}
}

// Resolve returns a principal for every requested id. Ids the directory
// cannot resolve are still present in the result as placeholders.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (map[string]Principal, error) {
	if r.graph == nil {
		return nil, errors.New("identity resolver directory reader is nil")
	}

	out := make(map[string]Principal, len(ids))
	var missing []string

	r.mu.Lock()
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, done := out[id]; done {
			continue
		}
		if p, ok := r.cache[id]; ok {
			out[id] = p
			continue
		}
		missing = append(missing, id)
		out[id] = placeholder(id)
	}
	r.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	objects, err := r.graph.GetDirectoryObjectsByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	for _, obj := range objects {
		p := principalFromObject(obj)
		r.cache[p.ID] = p
		out[p.ID] = p
	}
	// Negative-cache unresolved ids so a deleted principal is not
	// re-fetched by every collector that references it.
	for _, id := range missing {
		if _, ok := r.cache[id]; !ok {
			r.cache[id] = placeholder(id)
		}
	}
	r.mu.Unlock()

	return out, nil
}

// Lookup resolves a single principal id.
func (r *Resolver) Lookup(ctx context.Context, id string) (Principal, error) {
	resolved, err := r.Resolve(ctx, []string{id})
	if err != nil {
		return Principal{}, err
	}
	p, ok := resolved[strings.TrimSpace(id)]
	if !ok {
		return placeholder(id), nil
	}
	return p, nil
}

// ExpandGroup returns the user members of a group, nested groups
// included, as resolved principals. The members are added to the cache.
func (r *Resolver) ExpandGroup(ctx context.Context, groupID string) ([]Principal, error) {
	if r.graph == nil {
		return nil, errors.New("identity resolver directory reader is nil")
	}

	members, err := r.graph.ListGroupTransitiveMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	out := make([]Principal, 0, len(members))
	r.mu.Lock()
	for _, obj := range members {
		p := principalFromObject(obj)
		r.cache[p.ID] = p
		out = append(out, p)
	}
	r.mu.Unlock()

	return out, nil
}

func principalFromObject(obj graph.DirectoryObject) Principal {
	p := Principal{
		ID:           strings.TrimSpace(obj.ID),
		Type:         assignment.PrincipalUnknown,
		DisplayName:  strings.TrimSpace(obj.DisplayName),
		Enabled:      obj.AccountEnabled,
		OnPremSynced: obj.OnPremisesSyncEnabled,
	}

	switch {
	case obj.IsUser():
		p.Type = assignment.PrincipalUser
		p.UPN = strings.TrimSpace(obj.UserPrincipalName)
	case obj.IsGroup():
		p.Type = assignment.PrincipalGroup
	case obj.IsServicePrincipal():
		p.Type = assignment.PrincipalServicePrincipal
	case strings.TrimSpace(obj.UserPrincipalName) != "":
		// Member listings omit @odata.type on some tenants.
		p.Type = assignment.PrincipalUser
		p.UPN = strings.TrimSpace(obj.UserPrincipalName)
	}

	if p.DisplayName == "" {
		p.DisplayName = assignment.UnknownPrincipal
	}
	return p
}

func placeholder(id string) Principal {
	return Principal{
		ID:          strings.TrimSpace(id),
		Type:        assignment.PrincipalUnknown,
		DisplayName: assignment.UnknownPrincipal,
	}
}
