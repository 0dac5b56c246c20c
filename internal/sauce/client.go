// Package sauce reports sessions to a Sauce Labs style grid: it derives job
// ids and job URLs from live sessions and updates job records over REST.
package sauce

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/luispater/webtest/internal/config"
	"github.com/luispater/webtest/internal/webdriver"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/net/http/httpproxy"
)

// Client talks to the grid's reporting API.
type Client struct {
	username  string
	accessKey string
	apiURL    string
	appURL    string
	http      *http.Client
}

// NewClient builds a client from the grid configuration. Requests go through
// grid.proxy-url when set, otherwise through the proxy of the environment.
func NewClient(grid config.AppConfigGrid) *Client {
	proxyConfig := httpproxy.FromEnvironment()
	if grid.ProxyURL != "" {
		proxyConfig = &httpproxy.Config{
			HTTPProxy:  grid.ProxyURL,
			HTTPSProxy: grid.ProxyURL,
		}
	}
	proxyFunc := proxyConfig.ProxyFunc()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(r *http.Request) (*url.URL, error) {
		return proxyFunc(r.URL)
	}

	return &Client{
		username:  grid.Username,
		accessKey: grid.AccessKey,
		apiURL:    strings.TrimSuffix(grid.APIURL, "/"),
		appURL:    strings.TrimSuffix(grid.AppURL, "/"),
		http: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// JobID returns the grid job id of a session, which is its wire-protocol
// session id. Local sessions have none and yield "".
func (c *Client) JobID(s webdriver.Session) (string, error) {
	rs, ok := s.(webdriver.RemoteSession)
	if !ok {
		return "", nil
	}
	return rs.SessionID(), nil
}

// JobURL returns the job page of a session, or "" when it has no job id.
func (c *Client) JobURL(s webdriver.Session) (string, error) {
	id, err := c.JobID(s)
	if err != nil || id == "" {
		return "", err
	}
	return c.JobURLFor(id), nil
}

// JobURLFor builds the job page URL. With credentials it carries the auth
// token that lets the page be opened without logging in.
func (c *Client) JobURLFor(jobID string) string {
	u := fmt.Sprintf("%s/jobs/%s", c.appURL, url.PathEscape(jobID))
	if c.username == "" || c.accessKey == "" {
		return u
	}
	return u + "?auth=" + c.AuthToken(jobID)
}

// AuthToken is the hex HMAC-MD5 of the job id keyed with "username:accesskey".
func (c *Client) AuthToken(jobID string) string {
	mac := hmac.New(md5.New, []byte(c.username+":"+c.accessKey))
	mac.Write([]byte(jobID))
	return hex.EncodeToString(mac.Sum(nil))
}

// JobUpdate holds the job fields to change. Nil and empty fields are left untouched.
type JobUpdate struct {
	Name   *string
	Passed *bool
	Build  string
	Tags   []string
}

func (u JobUpdate) body() (string, error) {
	body := "{}"
	var err error
	if u.Name != nil {
		if body, err = sjson.Set(body, "name", *u.Name); err != nil {
			return "", err
		}
	}
	if u.Passed != nil {
		if body, err = sjson.Set(body, "passed", *u.Passed); err != nil {
			return "", err
		}
	}
	if u.Build != "" {
		if body, err = sjson.Set(body, "build", u.Build); err != nil {
			return "", err
		}
	}
	if len(u.Tags) > 0 {
		if body, err = sjson.Set(body, "tags", u.Tags); err != nil {
			return "", err
		}
	}
	return body, nil
}

// Job is the subset of a job record the client decodes.
type Job struct {
	ID       string
	Name     string
	Status   string
	Passed   *bool
	Browser  string
	Build    string
	VideoURL string
	LogURL   string
	Tags     []string
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("grid api returned %d: %s", e.StatusCode, e.Body)
}

// UpdateJob changes the job record.
func (c *Client) UpdateJob(ctx context.Context, jobID string, update JobUpdate) error {
	body, err := update.body()
	if err != nil {
		return fmt.Errorf("encode job update: %w", err)
	}
	_, err = c.do(ctx, http.MethodPut, c.jobPath(jobID), body)
	return err
}

// Job fetches the job record.
func (c *Client) Job(ctx context.Context, jobID string) (*Job, error) {
	data, err := c.do(ctx, http.MethodGet, c.jobPath(jobID), "")
	if err != nil {
		return nil, err
	}
	return parseJob(data), nil
}

// ReportResult marks the job passed or failed.
func (c *Client) ReportResult(ctx context.Context, jobID string, passed bool) error {
	log.Debugf("Reporting job %s passed=%t", jobID, passed)
	return c.UpdateJob(ctx, jobID, JobUpdate{Passed: &passed})
}

func (c *Client) jobPath(jobID string) string {
	return fmt.Sprintf("%s/%s/jobs/%s", c.apiURL, url.PathEscape(c.username), url.PathEscape(jobID))
}

func (c *Client) do(ctx context.Context, method, endpoint, body string) ([]byte, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.accessKey)
	req.Header.Set("Accept", "application/json")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func parseJob(data []byte) *Job {
	result := gjson.ParseBytes(data)
	job := &Job{
		ID:       result.Get("id").String(),
		Name:     result.Get("name").String(),
		Status:   result.Get("status").String(),
		Browser:  result.Get("browser").String(),
		Build:    result.Get("build").String(),
		VideoURL: result.Get("video_url").String(),
		LogURL:   result.Get("log_url").String(),
	}
	if passed := result.Get("passed"); passed.Type == gjson.True || passed.Type == gjson.False {
		v := passed.Bool()
		job.Passed = &v
	}
	for _, tag := range result.Get("tags").Array() {
		job.Tags = append(job.Tags, tag.String())
	}
	return job
}
