package cluster

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/grailbio/base/errors"

	"github.com/dreamware/isc/internal/layout"
)

// Client talks to the coordinator on behalf of the demo client.
type Client struct {
	// Addr is the coordinator base URL, e.g. http://127.0.0.1:8080.
	Addr string
}

// NewClient returns a coordinator client for addr.
func NewClient(addr string) *Client {
	return &Client{Addr: strings.TrimRight(addr, "/")}
}

// NextService returns the first service of category registered after the
// service with id after; the empty id starts the walk. ok is false once the
// catalog is exhausted.
func (c *Client) NextService(ctx context.Context, after, category string) (node NodeInfo, ok bool, err error) {
	q := url.Values{"after": {after}, "category": {category}}
	var resp NextServiceResponse
	err = GetJSON(ctx, c.Addr+"/services/next?"+q.Encode(), &resp)
	switch {
	case IsNotFound(err):
		return NodeInfo{}, false, nil
	case err != nil:
		return NodeInfo{}, false, errors.E(fmt.Sprintf("catalog walk after %q", after), err)
	}
	return resp.Service, true, nil
}

// Object fetches the layout of an object.
func (c *Client) Object(ctx context.Context, id string) (*layout.Object, error) {
	var obj layout.Object
	err := GetJSON(ctx, c.Addr+"/objects/"+url.PathEscape(id), &obj)
	switch {
	case IsNotFound(err):
		return nil, errors.E(errors.NotExist, fmt.Sprintf("object %s", id))
	case err != nil:
		return nil, errors.E(fmt.Sprintf("open object %s", id), err)
	}
	return &obj, nil
}

// PutObject registers the layout of an object, replacing any previous one.
func (c *Client) PutObject(ctx context.Context, obj *layout.Object) error {
	if err := PutJSON(ctx, c.Addr+"/objects/"+url.PathEscape(obj.ID), obj, nil); err != nil {
		return errors.E(fmt.Sprintf("register object %s", obj.ID), err)
	}
	return nil
}

// PutChunk uploads the chunk of object held by the node at addr.
func PutChunk(ctx context.Context, addr, object string, chunk []byte) error {
	target := strings.TrimRight(addr, "/") + "/objects/" + url.PathEscape(object)
	if err := PutBytes(ctx, target, chunk); err != nil {
		return errors.E(fmt.Sprintf("store chunk of %s on %s", object, addr), err)
	}
	return nil
}
