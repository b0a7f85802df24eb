package platform

import (
	"context"
	"errors"
	"net/http"
)

// LinkedIn publishes member shares. Share statistics require an
// organization scope the pipeline does not request, so no metrics are
// collected.
type LinkedIn struct {
	api *apiClient
}

func NewLinkedIn(creds Credentials, cfg ClientConfig) *LinkedIn {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.linkedin.com"
	}
	return &LinkedIn{api: newAPIClient("linkedin", creds, cfg)}
}

func (l *LinkedIn) Name() string { return "linkedin" }

func (l *LinkedIn) SupportsMetrics() bool { return false }

type linkedInShare struct {
	Author          string `json:"author"`
	LifecycleState  string `json:"lifecycleState"`
	SpecificContent struct {
		ShareContent struct {
			ShareCommentary struct {
				Text string `json:"text"`
			} `json:"shareCommentary"`
			ShareMediaCategory string `json:"shareMediaCategory"`
		} `json:"com.linkedin.ugc.ShareContent"`
	} `json:"specificContent"`
	Visibility struct {
		MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
	} `json:"visibility"`
}

func (l *LinkedIn) Publish(ctx context.Context, tenantID, text string) (*Post, error) {
	cred, err := l.api.credential(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cred.ExternalUserID == "" {
		return nil, newError("linkedin", KindCredentialMissing, errors.New("credential has no member id"))
	}

	var share linkedInShare
	share.Author = "urn:li:person:" + cred.ExternalUserID
	share.LifecycleState = "PUBLISHED"
	share.SpecificContent.ShareContent.ShareCommentary.Text = text
	share.SpecificContent.ShareContent.ShareMediaCategory = "NONE"
	share.Visibility.MemberNetworkVisibility = "PUBLIC"

	var resp struct {
		ID string `json:"id"`
	}
	_, headers, err := l.api.call(ctx, cred.AccessToken, http.MethodPost, "/v2/ugcPosts", share, &resp,
		map[string]string{"X-Restli-Protocol-Version": "2.0.0"}, false)
	if err != nil {
		return nil, err
	}
	id := resp.ID
	if id == "" {
		id = headers.Get("X-RestLi-Id")
	}
	if id == "" {
		return nil, newError("linkedin", KindTransient, errors.New("response carried no share id"))
	}
	return &Post{
		PlatformPostID: id,
		PostURL:        "https://www.linkedin.com/feed/update/" + id,
	}, nil
}

func (l *LinkedIn) FetchEngagement(context.Context, string, string) (*Metrics, error) {
	return nil, nil
}
