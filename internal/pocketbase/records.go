package pocketbase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

const pageSize = 200

var _ dashboard.Gateway = (*Client)(nil)
var _ dashboard.FileUploader = (*Client)(nil)

func recordsPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/records"
}

func recordPath(collection, id string) string {
	return recordsPath(collection) + "/" + url.PathEscape(id)
}

// OwnerFilter renders the PocketBase filter scoping rows to p.
func OwnerFilter(p dashboard.Principal) string {
	v := strings.ReplaceAll(string(p), `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return fmt.Sprintf(`%s = "%s"`, dashboard.OwnerField, v)
}

type listPage struct {
	Page       int                `json:"page"`
	PerPage    int                `json:"perPage"`
	TotalPages int                `json:"totalPages"`
	TotalItems int                `json:"totalItems"`
	Items      []dashboard.Record `json:"items"`
}

// List pages through every row of collection owned by scope.
func (c *Client) List(ctx context.Context, collection string, scope dashboard.Principal, orderBy string) ([]dashboard.Record, error) {
	fail := func(err error) ([]dashboard.Record, error) {
		return nil, &dashboard.FetchError{Collection: collection, Err: classify(err)}
	}
	if scope == "" {
		return fail(&dashboard.AuthError{Reason: "no principal"})
	}
	var out []dashboard.Record
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("perPage", strconv.Itoa(pageSize))
		q.Set("filter", OwnerFilter(scope))
		if orderBy != "" {
			q.Set("sort", orderBy)
		}
		var doc listPage
		if err := c.doJSON(ctx, http.MethodGet, recordsPath(collection)+"?"+q.Encode(), nil, &doc); err != nil {
			return fail(err)
		}
		out = append(out, doc.Items...)
		if doc.TotalPages <= page || len(doc.Items) == 0 {
			break
		}
	}
	c.log.Debug("listed records", zap.String("collection", collection), zap.Int("rows", len(out)))
	return out, nil
}

// Insert creates rec. Its owner must equal scope.
func (c *Client) Insert(ctx context.Context, collection string, scope dashboard.Principal, rec dashboard.Record) (dashboard.Record, error) {
	fail := func(err error) (dashboard.Record, error) {
		return nil, &dashboard.WriteError{Op: "insert", Collection: collection, Err: classifyWrite(err)}
	}
	if scope == "" {
		return fail(&dashboard.AuthError{Reason: "no principal"})
	}
	if rec.Owner() != scope {
		return fail(dashboard.ErrScopeMismatch)
	}
	var stored dashboard.Record
	if err := c.doJSON(ctx, http.MethodPost, recordsPath(collection), rec, &stored); err != nil {
		return fail(err)
	}
	return stored, nil
}

// Update patches the row with id. The server's owner rule rejects rows of
// other principals; an owner field in patch must equal scope.
func (c *Client) Update(ctx context.Context, collection, id string, patch dashboard.Record, scope dashboard.Principal) (dashboard.Record, error) {
	fail := func(err error) (dashboard.Record, error) {
		return nil, &dashboard.WriteError{Op: "update", Collection: collection, ID: id, Err: classifyWrite(err)}
	}
	if scope == "" {
		return fail(&dashboard.AuthError{Reason: "no principal"})
	}
	if _, ok := patch[dashboard.OwnerField]; ok && patch.Owner() != scope {
		return fail(dashboard.ErrScopeMismatch)
	}
	var stored dashboard.Record
	if err := c.doJSON(ctx, http.MethodPatch, recordPath(collection, id), patch, &stored); err != nil {
		return fail(err)
	}
	if stored.Owner() != "" && stored.Owner() != scope {
		return fail(dashboard.ErrScopeMismatch)
	}
	return stored, nil
}

// Delete removes the row with id.
func (c *Client) Delete(ctx context.Context, collection, id string, scope dashboard.Principal) error {
	if scope == "" {
		return &dashboard.WriteError{Op: "delete", Collection: collection, ID: id, Err: &dashboard.AuthError{Reason: "no principal"}}
	}
	if err := c.doJSON(ctx, http.MethodDelete, recordPath(collection, id), nil, nil); err != nil {
		return &dashboard.WriteError{Op: "delete", Collection: collection, ID: id, Err: classifyWrite(err)}
	}
	return nil
}

// classify turns auth failures into AuthError and leaves other errors as is.
func classify(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		return &dashboard.AuthError{Reason: apiErr.Message, Err: apiErr}
	}
	return err
}

// classifyWrite also reports owner rule rejections as scope mismatches.
// PocketBase answers 404 for rows the rule hides and 403 for writes it
// forbids.
func classifyWrite(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Status {
	case http.StatusUnauthorized:
		return &dashboard.AuthError{Reason: apiErr.Message, Err: apiErr}
	case http.StatusNotFound, http.StatusForbidden:
		return fmt.Errorf("%w: %w", dashboard.ErrScopeMismatch, apiErr)
	}
	return apiErr
}
