package driven

import (
	"context"
	"encoding/json"
	"net/url"
)

// VideoAPI defines the driven port for the remote video service wire protocol.
// Implementations enforce the request spacing the service allows but do not
// retry; retry and credential recovery belong to the application layer.
type VideoAPI interface {
	// Call invokes one API method. API-level failures are returned as
	// *model.APIError, network or HTTP failures as *model.TransportError.
	Call(ctx context.Context, token, method string, params url.Values) (json.RawMessage, error)

	// Upload streams the file at path to uploadURL, reporting bytes sent.
	Upload(ctx context.Context, uploadURL, path string, progress func(sent, total int64)) error

	// AuthorizeURL returns the URL that starts interactive authorization.
	AuthorizeURL() string
}
