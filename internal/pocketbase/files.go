package pocketbase

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// UploadFile attaches data to field of the record as a multipart PATCH.
// PocketBase stores the file under the record, so the owner rule that
// guards the record guards the file.
func (c *Client) UploadFile(ctx context.Context, collection, id, field, filename string, data []byte, scope dashboard.Principal) (dashboard.Record, error) {
	fail := func(err error) (dashboard.Record, error) {
		return nil, &dashboard.WriteError{Op: "upload", Collection: collection, ID: id, Err: classifyWrite(err)}
	}
	contentType, err := dashboard.CheckLogo(filename, data)
	if err != nil {
		return nil, err
	}
	if scope == "" {
		return fail(&dashboard.AuthError{Reason: "no principal"})
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+url.PathEscape(filename)+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPatch, recordPath(collection, id), &body, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var stored dashboard.Record
	if err := c.send(req, &stored); err != nil {
		return fail(err)
	}
	if stored.Owner() != "" && stored.Owner() != scope {
		return fail(dashboard.ErrScopeMismatch)
	}
	return stored, nil
}

// FileURL is the public URL of a stored file.
func (c *Client) FileURL(collection, id, filename string) string {
	return c.baseURL + "/api/files/" + url.PathEscape(collection) + "/" + url.PathEscape(id) + "/" + url.PathEscape(filename)
}
