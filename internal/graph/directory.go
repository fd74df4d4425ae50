package graph

import (
	"context"
	"encoding/json"
	"strings"
)

// getByIds accepts at most 1000 ids per request.
const getByIDsBatchSize = 1000

// DirectoryObject is the shared shape returned by directoryObjects/getByIds.
// ODataType discriminates users, groups and service principals.
type DirectoryObject struct {
	ID                    string `json:"id"`
	ODataType             string `json:"@odata.type"`
	DisplayName           string `json:"displayName"`
	UserPrincipalName     string `json:"userPrincipalName"`
	AccountEnabled        *bool  `json:"accountEnabled"`
	OnPremisesSyncEnabled *bool  `json:"onPremisesSyncEnabled"`
	AppID                 string `json:"appId"`
}

// IsUser reports whether the object is a user.
func (o DirectoryObject) IsUser() bool {
	return strings.EqualFold(o.ODataType, "#microsoft.graph.user")
}

// IsGroup reports whether the object is a group.
func (o DirectoryObject) IsGroup() bool {
	return strings.EqualFold(o.ODataType, "#microsoft.graph.group")
}

// IsServicePrincipal reports whether the object is a service principal.
func (o DirectoryObject) IsServicePrincipal() bool {
	return strings.EqualFold(o.ODataType, "#microsoft.graph.servicePrincipal")
}

// GetDirectoryObjectsByIDs resolves directory object ids in batches of up
// to 1000. Ids that do not resolve are silently absent from the result,
// matching the Graph API contract.
func (c *Client) GetDirectoryObjectsByIDs(ctx context.Context, ids []string) ([]DirectoryObject, error) {
	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return nil, nil
	}

	endpoint, err := c.graphURL(c.graphBaseURL, "/directoryObjects/getByIds", nil)
	if err != nil {
		return nil, err
	}

	var out []DirectoryObject
	for start := 0; start < len(unique); start += getByIDsBatchSize {
		end := start + getByIDsBatchSize
		if end > len(unique) {
			end = len(unique)
		}

		payload := map[string]any{
			"ids":   unique[start:end],
			"types": []string{"user", "group", "servicePrincipal"},
		}
		body, err := c.post(ctx, endpoint, payload)
		if err != nil {
			return nil, err
		}

		var page struct {
			Value []DirectoryObject `json:"value"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Value...)
	}
	return out, nil
}

// ListGroupTransitiveMembers expands a group to its user members,
// including users reached through nested groups.
func (c *Client) ListGroupTransitiveMembers(ctx context.Context, groupID string) ([]DirectoryObject, error) {
	endpoint, err := c.graphURL(c.graphBaseURL, "/groups/"+groupID+"/transitiveMembers/microsoft.graph.user", nil)
	if err != nil {
		return nil, err
	}
	items, err := c.listPagedRaw(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	out := make([]DirectoryObject, 0, len(items))
	for _, raw := range items {
		var obj DirectoryObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		if obj.ODataType == "" {
			obj.ODataType = "#microsoft.graph.user"
		}
		out = append(out, obj)
	}
	return out, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
