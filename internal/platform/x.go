package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// X publishes to the X (Twitter) v2 API.
type X struct {
	api *apiClient
}

func NewX(creds Credentials, cfg ClientConfig) *X {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twitter.com"
	}
	return &X{api: newAPIClient("x", creds, cfg)}
}

func (x *X) Name() string { return "x" }

func (x *X) Publish(ctx context.Context, tenantID, text string) (*Post, error) {
	cred, err := x.api.credential(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if _, _, err := x.api.call(ctx, cred.AccessToken, http.MethodPost, "/2/tweets",
		map[string]string{"text": text}, &resp, nil, false); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, newError("x", KindTransient, errors.New("response carried no post id"))
	}
	return &Post{
		PlatformPostID: resp.Data.ID,
		PostURL:        "https://x.com/i/web/status/" + resp.Data.ID,
	}, nil
}

func (x *X) FetchEngagement(ctx context.Context, tenantID, platformPostID string) (*Metrics, error) {
	cred, err := x.api.credential(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data *struct {
			PublicMetrics *struct {
				LikeCount       int64 `json:"like_count"`
				RetweetCount    int64 `json:"retweet_count"`
				ReplyCount      int64 `json:"reply_count"`
				QuoteCount      int64 `json:"quote_count"`
				ImpressionCount int64 `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	path := "/2/tweets/" + url.PathEscape(platformPostID) + "?tweet.fields=public_metrics"
	status, _, err := x.api.call(ctx, cred.AccessToken, http.MethodGet, path, nil, &resp, nil, true)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || resp.Data == nil || resp.Data.PublicMetrics == nil {
		return nil, nil
	}
	m := resp.Data.PublicMetrics
	return &Metrics{
		Likes:       m.LikeCount,
		Reposts:     m.RetweetCount + m.QuoteCount,
		Replies:     m.ReplyCount,
		Impressions: m.ImpressionCount,
	}, nil
}
