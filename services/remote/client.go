// Package remotesvc talks to the hosted backend: a PostgREST data API under /rest/v1
// and a GoTrue auth API under /auth/v1, both authorized by the project API key.
package remotesvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/escola/core"
)

const (
	restPath = "/rest/v1"
	authPath = "/auth/v1"

	mimeJSON   = "application/json"
	mimeObject = "application/vnd.pgrst.object+json"
)

// Client implements core.DataService, session.Authenticator and user.Registrar over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *rest.Client
}

func NewClient(conf *core.Config) (*Client, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
	).Check(); err != nil {
		return nil, err
	}
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.Remote.URL, "remote URL"),
		vala.StringNotEmpty(conf.Remote.APIKey, "remote API key"),
	).Check(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(conf.Remote.URL, "/"),
		apiKey:  conf.Remote.APIKey,
		timeout: conf.Remote.Timeout,
		http:    &rest.Client{HTTPClient: &http.Client{}},
	}, nil
}

type request struct {
	method  string
	path    string // with the query string
	headers map[string]string
	token   string // bearer token; the API key when empty
	body    interface{}
}

// do sends req and returns the response of a successful call.
// Rejected calls return a *core.RemoteError; transport failures a *core.ConnectionError.
func (c *Client) do(ctx context.Context, req request) (*rest.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	token := req.token
	if token == "" {
		token = c.apiKey
	}
	r := rest.Request{
		Method:  rest.Method(req.method),
		BaseURL: c.baseURL + req.path,
		Headers: map[string]string{
			"apikey":        c.apiKey,
			"Authorization": "Bearer " + token,
			"Accept":        mimeJSON,
		},
	}
	for k, v := range req.headers {
		r.Headers[k] = v
	}
	if req.body != nil {
		body, err := json.Marshal(req.body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		r.Body = body
		r.Headers["Content-Type"] = mimeJSON
	}

	httpReq, err := rest.BuildRequestObject(r)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	httpRes, err := c.http.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return nil, core.NewConnectionError(err)
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return nil, core.NewConnectionError(err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, remoteError(res)
	}
	return res, nil
}

// errorBody covers the error payloads of both APIs.
type errorBody struct {
	Code        json.RawMessage `json:"code"`
	ErrorCode   string          `json:"error_code"`
	Error       string          `json:"error"`
	Message     string          `json:"message"`
	Msg         string          `json:"msg"`
	Description string          `json:"error_description"`
}

func remoteError(res *rest.Response) *core.RemoteError {
	rErr := &core.RemoteError{StatusCode: res.StatusCode, Message: http.StatusText(res.StatusCode)}

	var body errorBody
	if err := json.Unmarshal([]byte(res.Body), &body); err != nil {
		if msg := strings.TrimSpace(res.Body); msg != "" {
			rErr.Message = msg
		}
		return rErr
	}

	var code string
	_ = json.Unmarshal(body.Code, &code) // numeric codes are HTTP statuses
	for _, c := range []string{body.ErrorCode, code, body.Error} {
		if c != "" {
			rErr.Code = c
			break
		}
	}
	for _, m := range []string{body.Message, body.Msg, body.Description, body.Error} {
		if m != "" {
			rErr.Message = m
			break
		}
	}
	return rErr
}

func decode(res *rest.Response, dest interface{}) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Body), dest); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}
