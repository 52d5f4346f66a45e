package thirdparty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
)

// WechatConfig configures the WeChat open platform app.
type WechatConfig struct {
	AppID     string `env:"WECHAT_APP_ID"`
	AppSecret string `env:"WECHAT_APP_SECRET"`
	BaseURL   string `env:"WECHAT_BASE_URL" envDefault:"https://api.weixin.qq.com"`
}

func (c WechatConfig) Enabled() bool { return c.AppID != "" && c.AppSecret != "" }

// WechatProvider exchanges a WeChat OAuth code for the user's openid.
type WechatProvider struct {
	cfg    WechatConfig
	client *http.Client
	now    func() time.Time
}

func NewWechatProvider(cfg WechatConfig, client *http.Client) *WechatProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.weixin.qq.com"
	}
	return &WechatProvider{cfg: cfg, client: client, now: time.Now}
}

func (p *WechatProvider) Name() entity.Provider { return entity.ProviderWechat }

type wechatError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type wechatToken struct {
	wechatError
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	Scope        string `json:"scope"`
	UnionID      string `json:"unionid"`
}

type wechatUser struct {
	wechatError
	OpenID     string `json:"openid"`
	Nickname   string `json:"nickname"`
	Sex        int    `json:"sex"`
	HeadImgURL string `json:"headimgurl"`
	UnionID    string `json:"unionid"`
}

func (p *WechatProvider) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wechat %s: http %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Exchange trades code for an access token and openid, then loads the
// public profile. A failed profile lookup keeps the verified openid.
func (p *WechatProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	if code == "" {
		return nil, ErrEmptyCredential
	}
	var tok wechatToken
	err := p.get(ctx, "/sns/oauth2/access_token", url.Values{
		"appid":      {p.cfg.AppID},
		"secret":     {p.cfg.AppSecret},
		"code":       {code},
		"grant_type": {"authorization_code"},
	}, &tok)
	if err != nil {
		return nil, fmt.Errorf("wechat token exchange: %w", err)
	}
	if tok.ErrCode != 0 || tok.OpenID == "" {
		return nil, fmt.Errorf("wechat token exchange: %d %s", tok.ErrCode, tok.ErrMsg)
	}

	id := &Identity{
		Provider:     entity.ProviderWechat,
		ExternalID:   tok.OpenID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if tok.ExpiresIn > 0 {
		exp := p.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		id.ExpiresAt = &exp
	}

	var info wechatUser
	err = p.get(ctx, "/sns/userinfo", url.Values{"access_token": {tok.AccessToken}, "openid": {tok.OpenID}}, &info)
	if err == nil && info.ErrCode == 0 {
		id.Nickname = info.Nickname
		id.AvatarURL = info.HeadImgURL
		id.Gender = wechatGender(info.Sex)
	}
	return id, nil
}

func wechatGender(sex int) string {
	switch sex {
	case 1:
		return "male"
	case 2:
		return "female"
	default:
		return ""
	}
}
