package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Mastodon publishes statuses to a single instance. Mastodon exposes no
// impression counts, so collected engagement rates are always zero.
type Mastodon struct {
	api *apiClient
}

func NewMastodon(creds Credentials, cfg ClientConfig) *Mastodon {
	return &Mastodon{api: newAPIClient("mastodon", creds, cfg)}
}

func (m *Mastodon) Name() string { return "mastodon" }

type mastodonStatus struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	FavouritesCount int64  `json:"favourites_count"`
	ReblogsCount    int64  `json:"reblogs_count"`
	RepliesCount    int64  `json:"replies_count"`
}

func (m *Mastodon) Publish(ctx context.Context, tenantID, text string) (*Post, error) {
	cred, err := m.api.credential(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var headers map[string]string
	if key := IdempotencyKey(ctx); key != "" {
		headers = map[string]string{"Idempotency-Key": key}
	}
	var status mastodonStatus
	if _, _, err := m.api.call(ctx, cred.AccessToken, http.MethodPost, "/api/v1/statuses",
		map[string]string{"status": text, "visibility": "public"}, &status, headers, false); err != nil {
		return nil, err
	}
	if status.ID == "" {
		return nil, newError("mastodon", KindTransient, errors.New("response carried no status id"))
	}
	return &Post{PlatformPostID: status.ID, PostURL: status.URL}, nil
}

func (m *Mastodon) FetchEngagement(ctx context.Context, tenantID, platformPostID string) (*Metrics, error) {
	cred, err := m.api.credential(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var status mastodonStatus
	code, _, err := m.api.call(ctx, cred.AccessToken, http.MethodGet,
		"/api/v1/statuses/"+url.PathEscape(platformPostID), nil, &status, nil, true)
	if err != nil {
		return nil, err
	}
	if code == http.StatusNotFound || status.ID == "" {
		return nil, nil
	}
	return &Metrics{
		Likes:   status.FavouritesCount,
		Reposts: status.ReblogsCount,
		Replies: status.RepliesCount,
	}, nil
}
