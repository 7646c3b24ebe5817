package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Retry defaults for one logical remote call.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// uploadMethod names the streaming transfer in errors and logs.
const uploadMethod = "video.upload"

// APIClient performs logical calls against the video service on top of the
// VideoAPI transport. Each call gets a fixed attempt budget. Transient errors
// are retried after a delay. An auth-invalid error triggers credential
// recovery and an immediate retry. Both kinds of retry consume the budget.
type APIClient struct {
	api         driven.VideoAPI
	tokens      *TokenManager
	maxAttempts int
	retryDelay  time.Duration
}

// NewAPIClient creates an APIClient. Non-positive maxAttempts or retryDelay
// fall back to the defaults.
func NewAPIClient(api driven.VideoAPI, tokens *TokenManager, maxAttempts int, retryDelay time.Duration) *APIClient {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &APIClient{api: api, tokens: tokens, maxAttempts: maxAttempts, retryDelay: retryDelay}
}

// Call performs one logical API call with retry and auth recovery.
func (c *APIClient) Call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, method, true, func(ctx context.Context, token string) error {
		raw, err := c.api.Call(ctx, token, method, params)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	return out, err
}

// do runs attempt under the retry policy. When withToken is set, each attempt
// reads the current access token so a recovered credential is picked up.
func (c *APIClient) do(ctx context.Context, method string, withToken bool, attempt func(ctx context.Context, token string) error) error {
	var (
		attempts  int
		lastErr   error
		skipDelay bool
	)

	base := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewConstant(c.retryDelay))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := base.Next()
		if stop {
			return 0, true
		}
		if skipDelay {
			skipDelay = false
			return 0, false
		}
		return d, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		var token string
		if withToken {
			var err error
			token, err = c.token(ctx)
			if err != nil {
				lastErr = err
				return err
			}
		}

		err := attempt(ctx, token)
		if err == nil {
			return nil
		}
		lastErr = err

		switch kind := model.Classify(err); kind {
		case model.KindAuthInvalid:
			if !withToken || attempts >= c.maxAttempts {
				return err
			}
			slog.Warn("api call rejected credential", "method", method, "attempt", attempts)
			if rerr := c.tokens.RecoverAuth(ctx, token); rerr != nil {
				lastErr = rerr
				return rerr
			}
			skipDelay = true
			return retry.RetryableError(err)
		case model.KindTransient:
			slog.Warn("api call failed, will retry",
				"method", method, "attempt", attempts, "max_attempts", c.maxAttempts, "error", err)
			return retry.RetryableError(err)
		default:
			return err
		}
	})
	if err == nil {
		return nil
	}

	if lastErr == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		lastErr = err
	}
	return &model.CallError{Method: method, Attempts: attempts, Err: lastErr}
}

// token returns the current access token, authorizing first if none is stored.
func (c *APIClient) token(ctx context.Context) (string, error) {
	token, err := c.tokens.AccessToken(ctx)
	if errors.Is(err, model.ErrNoCredential) {
		if err := c.tokens.RecoverAuth(ctx, ""); err != nil {
			return "", err
		}
		return c.tokens.AccessToken(ctx)
	}
	return token, err
}

// ResolveUploadDestination asks the service where to send a new video.
func (c *APIClient) ResolveUploadDestination(ctx context.Context, req model.UploadRequest) (model.UploadDestination, error) {
	params := url.Values{}
	params.Set("name", req.Title)
	params.Set("description", req.Description)
	if req.GroupID != 0 {
		params.Set("group_id", strconv.FormatInt(req.GroupID, 10))
	}
	if req.Privacy == model.PrivacyPrivate {
		params.Set("is_private", "1")
	}

	raw, err := c.Call(ctx, "video.save", params)
	if err != nil {
		return model.UploadDestination{}, err
	}

	var resp struct {
		UploadURL string `json:"upload_url"`
		OwnerID   int64  `json:"owner_id"`
		VideoID   int64  `json:"video_id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.UploadDestination{}, fmt.Errorf("decode video.save response: %w", err)
	}
	if resp.UploadURL == "" {
		return model.UploadDestination{}, errors.New("video.save returned no upload_url")
	}

	return model.UploadDestination{UploadURL: resp.UploadURL, OwnerID: resp.OwnerID, VideoID: resp.VideoID}, nil
}

// StreamUpload sends the file to dest. sink receives the percentage sent,
// only when it increases, including across transient retries.
func (c *APIClient) StreamUpload(ctx context.Context, dest model.UploadDestination, path string, sink model.ProgressSink) error {
	last := -1
	progress := func(sent, total int64) {
		if sink == nil || total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		if pct > last {
			last = pct
			sink(pct)
		}
	}

	return c.do(ctx, uploadMethod, false, func(ctx context.Context, _ string) error {
		return c.api.Upload(ctx, dest.UploadURL, path, progress)
	})
}

// FinalizeMetadata sets title, description and privacy on the uploaded video.
func (c *APIClient) FinalizeMetadata(ctx context.Context, dest model.UploadDestination, req model.UploadRequest) error {
	ownerID := dest.OwnerID
	if req.GroupID != 0 {
		ownerID = -req.GroupID
	}

	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(ownerID, 10))
	params.Set("video_id", strconv.FormatInt(dest.VideoID, 10))
	params.Set("name", req.Title)
	params.Set("desc", req.Description)
	params.Set("privacy_view", strconv.Itoa(req.Privacy.ViewCode()))

	_, err := c.Call(ctx, "video.edit", params)
	return err
}

// UploadableGroups lists communities where the user may upload videos.
func (c *APIClient) UploadableGroups(ctx context.Context) ([]model.Group, error) {
	params := url.Values{}
	params.Set("filter", "admin,editor,moder")
	params.Set("extended", "1")
	params.Set("fields", "can_upload_video")

	raw, err := c.Call(ctx, "groups.get", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []struct {
			model.Group
			CanUploadVideo int `json:"can_upload_video"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode groups.get response: %w", err)
	}

	groups := []model.Group{}
	for _, item := range resp.Items {
		if item.CanUploadVideo == 1 {
			groups = append(groups, item.Group)
		}
	}
	return groups, nil
}

// CurrentUser returns the account the stored token belongs to.
func (c *APIClient) CurrentUser(ctx context.Context) (*model.User, error) {
	raw, err := c.Call(ctx, validateMethod, nil)
	if err != nil {
		return nil, err
	}

	var users []model.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("decode users.get response: %w", err)
	}
	if len(users) == 0 {
		return nil, errors.New("users.get returned no user")
	}
	return &users[0], nil
}

// DeleteVideo removes an uploaded video.
func (c *APIClient) DeleteVideo(ctx context.Context, ownerID, videoID int64) error {
	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(ownerID, 10))
	params.Set("video_id", strconv.FormatInt(videoID, 10))

	_, err := c.Call(ctx, "video.delete", params)
	return err
}
