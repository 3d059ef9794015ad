package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"docguard/internal/integrity"
	"docguard/internal/session/models"
	id "docguard/pkg/domain"
	dErrors "docguard/pkg/domain-errors"
)

const (
	maxResponseBytes       = 1 << 20
	defaultMaxArtifactSize = 512 << 20
)

// Client talks to the issuing backend: issuance, artifact download,
// revocation and search.
type Client struct {
	baseURL     *url.URL
	http        *http.Client
	logger      *slog.Logger
	maxArtifact int64
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

func WithMaxArtifactSize(n int64) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxArtifact = n
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer base url must be an absolute http(s) url")
	}
	c := &Client{
		baseURL:     u,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      slog.Default(),
		maxArtifact: defaultMaxArtifactSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue requests a viewing grant. Anything short of a complete, well-formed
// response is a network error; no grant is ever built from partial data.
func (c *Client) Issue(ctx context.Context, documentID id.DocumentID, viewerID id.ViewerID, deviceID id.DeviceID) (Grant, error) {
	body, err := c.postJSON(ctx, "issue", IssueRequest{
		DocumentID: documentID.String(),
		ViewerID:   viewerID.String(),
		DeviceID:   deviceID.String(),
	})
	if err != nil {
		return Grant{}, err
	}
	if err := validate(issueSchema, body); err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeNetwork, "malformed issue response")
	}

	var resp issueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeNetwork, "malformed issue response")
	}
	grant, err := parseGrant(resp)
	if err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeNetwork, "malformed issue response")
	}
	c.logger.InfoContext(ctx, "grant issued",
		"document_id", documentID.String(),
		"total_pages", grant.TotalPages,
		"expires_at", grant.ExpiresAt,
	)
	return grant, nil
}

func parseGrant(resp issueResponse) (Grant, error) {
	u, err := url.Parse(resp.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Grant{}, fmt.Errorf("artifact url %q is not absolute http(s)", resp.URL)
	}
	checksum, err := integrity.ParseChecksum(resp.ChecksumSHA256)
	if err != nil {
		return Grant{}, err
	}
	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	if err != nil {
		return Grant{}, fmt.Errorf("expiresAt: %w", err)
	}
	if resp.TotalPages < 1 {
		return Grant{}, fmt.Errorf("totalPages must be at least 1")
	}
	return Grant{
		URL:        u.String(),
		Checksum:   checksum,
		ExpiresAt:  expiresAt.UTC(),
		TotalPages: resp.TotalPages,
	}, nil
}

// Download streams the artifact at rawURL into a new private file in dir and
// returns its path. On any failure the partial file is removed.
func (c *Client) Download(ctx context.Context, rawURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid artifact url")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportError(ctx, err, "artifact download failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", dErrors.New(dErrors.CodeNetwork, fmt.Sprintf("artifact download returned %d", resp.StatusCode))
	}

	f, err := os.CreateTemp(dir, "artifact-*.pdf")
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "creating artifact file")
	}
	path := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = integrity.SecureDelete(path)
		return "", err
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, c.maxArtifact+1))
	if err != nil {
		return fail(transportError(ctx, err, "artifact download interrupted"))
	}
	if n > c.maxArtifact {
		return fail(dErrors.New(dErrors.CodeNetwork, "artifact exceeds size limit"))
	}
	if err := f.Sync(); err != nil {
		return fail(dErrors.Wrap(err, dErrors.CodeInternal, "syncing artifact file"))
	}
	if err := f.Close(); err != nil {
		_ = integrity.SecureDelete(path)
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "closing artifact file")
	}
	c.logger.DebugContext(ctx, "artifact downloaded", "bytes", n)
	return path, nil
}

// Revoke reports the end of a session. A response without ok=true is an error.
func (c *Client) Revoke(ctx context.Context, documentID id.DocumentID, viewerID id.ViewerID, deviceID id.DeviceID, reason models.LockReason) error {
	body, err := c.postJSON(ctx, "revoke", RevokeRequest{
		DocumentID: documentID.String(),
		ViewerID:   viewerID.String(),
		DeviceID:   deviceID.String(),
		Reason:     reason.String(),
	})
	if err != nil {
		return err
	}
	var resp RevokeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return dErrors.Wrap(err, dErrors.CodeNetwork, "malformed revoke response")
	}
	if !resp.OK {
		return dErrors.New(dErrors.CodeNetwork, "revoke not acknowledged")
	}
	return nil
}

// Search is a pass-through to the backend's full text search.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	if req.DocumentID == "" || strings.TrimSpace(req.Query) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "documentId and query are required")
	}
	q := url.Values{}
	q.Set("documentId", req.DocumentID)
	q.Set("query", req.Query)
	if req.From > 0 {
		q.Set("from", strconv.Itoa(req.From))
	}
	if req.To > 0 {
		q.Set("to", strconv.Itoa(req.To))
	}
	endpoint := c.endpoint("search")
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "building search request")
	}
	httpReq.Header.Set("Accept", "application/json")
	body, err := c.do(ctx, httpReq, "search")
	if err != nil {
		return nil, err
	}
	if err := validate(searchSchema, body); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNetwork, "malformed search response")
	}
	var hits []SearchHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNetwork, "malformed search response")
	}
	return hits, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	return &u
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encoding "+path+" request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path).String(), bytes.NewReader(buf))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "building "+path+" request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(ctx, req, path)
}

func (c *Client) do(ctx context.Context, req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, err, op+" request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, err, "reading "+op+" response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(ctx, "issuer returned error status", "op", op, "status", resp.StatusCode)
		return nil, dErrors.New(dErrors.CodeNetwork, fmt.Sprintf("%s returned %d", op, resp.StatusCode))
	}
	return body, nil
}

func validate(schema *jsonschema.Schema, body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

func transportError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return dErrors.Wrap(err, dErrors.CodeCancelled, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeNetwork, msg)
}
