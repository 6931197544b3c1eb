// Package reddit is an HTTP client for the subset of the reddit API that
// reorg needs: identity, subscriptions, multireddits.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	gosync "sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/gkontridze/reorg/internal/models"
	"github.com/gkontridze/reorg/internal/sync"
)

const (
	pageSize        = 100
	maxPages        = 50
	maxErrorBody    = 512
	multiVisibility = "private"
)

// Options configures a Client. Zero durations and rates use the defaults
// from internal/config.
type Options struct {
	APIURL       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string

	Timeout           time.Duration
	RequestsPerMinute int

	// Transport is the base round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	// TokenSource overrides the password grant.
	TokenSource oauth2.TokenSource
}

// Client talks to the reddit API as a script app. It implements
// sync.RemoteClient. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu       gosync.Mutex
	username string
	// raw collection names as reddit spells them, keyed by normalized name
	rawNames map[models.Name]string
}

var _ sync.RemoteClient = (*Client)(nil)

// New creates a client. No request is made until the first call.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 60
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	ua := &userAgentTransport{userAgent: opts.UserAgent, base: base}

	src := opts.TokenSource
	if src == nil {
		tokenHTTP := &http.Client{Transport: ua, Timeout: opts.Timeout}
		src = &passwordTokenSource{
			ctx: context.WithValue(context.Background(), oauth2.HTTPClient, tokenHTTP),
			conf: &oauth2.Config{
				ClientID:     opts.ClientID,
				ClientSecret: opts.ClientSecret,
				Endpoint: oauth2.Endpoint{
					TokenURL:  opts.TokenURL,
					AuthStyle: oauth2.AuthStyleInHeader,
				},
			},
			username: opts.Username,
			password: opts.Password,
		}
	}

	return &Client{
		baseURL: strings.TrimRight(opts.APIURL, "/"),
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, src),
				Base:   ua,
			},
		},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1),
		username: opts.Username,
		rawNames: make(map[models.Name]string),
	}
}

// --- Response types ---

// Identity is the authenticated account.
type Identity struct {
	Name string `json:"name"`
}

// Subreddit is a subscribed sub.
type Subreddit struct {
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Subscribers int    `json:"subscribers"`
}

// Multi is a multireddit owned by the authenticated account.
type Multi struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Visibility  string `json:"visibility"`
	Subreddits  []struct {
		Name string `json:"name"`
	} `json:"subreddits"`
}

// SubNames returns the multi's member sub names as reddit reports them.
func (m *Multi) SubNames() []string {
	out := make([]string, len(m.Subreddits))
	for i, s := range m.Subreddits {
		out[i] = s.Name
	}
	return out
}

type thing[T any] struct {
	Kind string `json:"kind"`
	Data T      `json:"data"`
}

type listing[T any] struct {
	Data struct {
		After    string     `json:"after"`
		Children []thing[T] `json:"children"`
	} `json:"data"`
}

// --- Identity and listings ---

// Me returns the authenticated account and remembers its name for
// multireddit paths.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var me Identity
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &me); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	if me.Name == "" {
		return nil, fmt.Errorf("me: %w: no authenticated user", sync.ErrUnauthorized)
	}
	c.mu.Lock()
	c.username = me.Name
	c.mu.Unlock()
	return &me, nil
}

// Subscriptions returns every sub the account is subscribed to.
func (c *Client) Subscriptions(ctx context.Context) ([]Subreddit, error) {
	var (
		out   []Subreddit
		after string
	)
	for page := 0; page < maxPages; page++ {
		q := url.Values{"limit": {fmt.Sprint(pageSize)}, "raw_json": {"1"}}
		if after != "" {
			q.Set("after", after)
		}
		var l listing[Subreddit]
		if err := c.do(ctx, http.MethodGet, "/subreddits/mine/subscriber?"+q.Encode(), nil, &l); err != nil {
			return nil, fmt.Errorf("subscriptions: %w", err)
		}
		for _, ch := range l.Data.Children {
			out = append(out, ch.Data)
		}
		if l.Data.After == "" || l.Data.After == after {
			return out, nil
		}
		after = l.Data.After
	}
	slog.Warn("subscription listing truncated", "pages", maxPages)
	return out, nil
}

// Multireddits returns the account's multireddits with their members.
func (c *Client) Multireddits(ctx context.Context) ([]Multi, error) {
	var things []thing[Multi]
	if err := c.do(ctx, http.MethodGet, "/api/multi/mine", nil, &things); err != nil {
		return nil, fmt.Errorf("multireddits: %w", err)
	}
	out := make([]Multi, len(things))
	for i, th := range things {
		out[i] = th.Data
	}
	return out, nil
}

// --- sync.RemoteReader ---

// ListSubscriptions returns the subscribed subs as normalized identifiers.
func (c *Client) ListSubscriptions(ctx context.Context) ([]models.ItemID, error) {
	subs, err := c.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.ItemID, 0, len(subs))
	for _, s := range subs {
		if it, ok := parseRemoteItem(s.DisplayName, ""); ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// ListCollections returns the names of the account's multireddits.
func (c *Client) ListCollections(ctx context.Context) ([]models.Name, error) {
	multis, err := c.Multireddits(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Name, 0, len(multis))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range multis {
		name, err := models.ParseName(m.Name)
		if err != nil {
			slog.Warn("skipping multireddit with unsupported name", "name", m.Name)
			continue
		}
		c.rawNames[name] = m.Name
		out = append(out, name)
	}
	return out, nil
}

// CollectionItems returns the members of one multireddit.
func (c *Client) CollectionItems(ctx context.Context, name models.Name) ([]models.ItemID, error) {
	var th thing[Multi]
	if err := c.do(ctx, http.MethodGet, c.multiPath(name), nil, &th); err != nil {
		return nil, fmt.Errorf("multireddit %s: %w", name, err)
	}
	out := make([]models.ItemID, 0, len(th.Data.Subreddits))
	for _, s := range th.Data.Subreddits {
		if it, ok := parseRemoteItem(s.Name, string(name)); ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// --- sync.RemoteWriter ---

type multiModel struct {
	DisplayName string     `json:"display_name,omitempty"`
	Subreddits  []subModel `json:"subreddits,omitempty"`
	Visibility  string     `json:"visibility,omitempty"`
	Name        string     `json:"name,omitempty"`
}

type subModel struct {
	Name string `json:"name"`
}

// CreateCollection creates a private multireddit with the given members.
func (c *Client) CreateCollection(ctx context.Context, name models.Name, items []models.ItemID) error {
	m := multiModel{
		DisplayName: DisplayName(name),
		Subreddits:  make([]subModel, len(items)),
		Visibility:  multiVisibility,
	}
	for i, it := range items {
		m.Subreddits[i] = subModel{Name: string(it)}
	}
	form, err := modelForm(m)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, c.multiPath(name), form, nil); err != nil {
		return fmt.Errorf("create multireddit %s: %w", name, err)
	}
	c.mu.Lock()
	c.rawNames[name] = string(name)
	c.mu.Unlock()
	return nil
}

// DeleteCollection deletes a multireddit. Subscriptions are untouched.
func (c *Client) DeleteCollection(ctx context.Context, name models.Name) error {
	if err := c.do(ctx, http.MethodDelete, c.multiPath(name), nil, nil); err != nil {
		return fmt.Errorf("delete multireddit %s: %w", name, err)
	}
	c.mu.Lock()
	delete(c.rawNames, name)
	c.mu.Unlock()
	return nil
}

// AddItems adds members one request at a time; the first failure stops it.
func (c *Client) AddItems(ctx context.Context, name models.Name, items []models.ItemID) error {
	for _, it := range items {
		form, err := modelForm(multiModel{Name: string(it)})
		if err != nil {
			return err
		}
		path := c.multiPath(name) + "/r/" + url.PathEscape(string(it))
		if err := c.do(ctx, http.MethodPut, path, form, nil); err != nil {
			return fmt.Errorf("add %s to multireddit %s: %w", it, name, err)
		}
	}
	return nil
}

// Subscribe subscribes the account to a sub.
func (c *Client) Subscribe(ctx context.Context, item models.ItemID) error {
	form := url.Values{"action": {"sub"}, "sr_name": {string(item)}}
	if err := c.do(ctx, http.MethodPost, "/api/subscribe", form, nil); err != nil {
		return fmt.Errorf("subscribe %s: %w", item, err)
	}
	return nil
}

// DisplayName is the display name given to newly created multireddits:
// the name with its first letter upper-cased.
func DisplayName(name models.Name) string {
	s := string(name)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (c *Client) multiPath(name models.Name) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.rawNames[name]
	if !ok {
		raw = string(name)
	}
	return "/api/multi/user/" + url.PathEscape(c.username) + "/m/" + url.PathEscape(raw)
}

func parseRemoteItem(s, where string) (models.ItemID, bool) {
	it, err := models.ParseItem(s)
	if err != nil {
		slog.Warn("skipping sub with unsupported name", "sub", s, "multi", where)
		return "", false
	}
	return it, true
}

func modelForm(m multiModel) (url.Values, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return url.Values{"model": {string(data)}}, nil
}

// --- HTTP helpers ---

// apiError is a non-success response that maps to no sentinel.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// errorBody covers the error shapes reddit returns.
type errorBody struct {
	Message     string `json:"message"`
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
	JSON        struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
}

func (b *errorBody) text() string {
	switch {
	case b.Explanation != "":
		return b.Explanation
	case b.Reason != "":
		return b.Reason
	case b.Message != "":
		return b.Message
	case len(b.JSON.Errors) > 0:
		parts := make([]string, 0, len(b.JSON.Errors))
		for _, e := range b.JSON.Errors {
			parts = append(parts, fmt.Sprint(e...))
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	slog.Debug("reddit request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", sync.ErrTransient, err)
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, respBody)
	}

	// Some endpoints report failures inside a 200 body.
	var eb errorBody
	if json.Unmarshal(respBody, &eb) == nil && len(eb.JSON.Errors) > 0 {
		return &apiError{Status: resp.StatusCode, Message: eb.text()}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func statusError(status int, body []byte) error {
	var eb errorBody
	msg := ""
	if json.Unmarshal(body, &eb) == nil {
		msg = eb.text()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		sentinel = sync.ErrUnauthorized
	case status == http.StatusForbidden:
		sentinel = sync.ErrForbidden
	case status == http.StatusNotFound:
		sentinel = sync.ErrNotFound
	case status == http.StatusTooManyRequests:
		sentinel = sync.ErrRateLimited
	case status >= 500:
		sentinel = sync.ErrTransient
	default:
		return &apiError{Status: status, Message: msg}
	}
	if msg == "" {
		return fmt.Errorf("%w (HTTP %d)", sentinel, status)
	}
	return fmt.Errorf("%w (HTTP %d): %s", sentinel, status, msg)
}

// classifyTransportError keeps token failures as unauthorized and context
// errors as-is; everything else is transient.
func classifyTransportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, sync.ErrUnauthorized):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", sync.ErrTransient, err)
}

// --- Transports ---

// userAgentTransport sets the User-Agent reddit requires on every request.
type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req2)
}

// passwordTokenSource fetches a fresh token with the resource owner
// password grant each time it is asked.
type passwordTokenSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: token request: %v", sync.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%w: token request: %v", sync.ErrTransient, err)
	}
	slog.Debug("acquired reddit token", "expiry", tok.Expiry)
	return tok, nil
}
