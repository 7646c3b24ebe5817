package driven

import (
	"context"
	"net/url"
)

// Authorizer defines the driven port for interactive user consent. Given the
// authorization URL it returns the parameters of the redirect fragment
// (access_token, user_id, expires_in). It returns model.ErrAuthDeclined if the
// user cancels. Authorize may block for as long as the user takes.
type Authorizer interface {
	Authorize(ctx context.Context, authURL string) (url.Values, error)
}
