package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/chunk"
	"github.com/seqdag/seqdag/delta"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/manifest"
)

// Client fetches manifests, chunks, sequences and delta payloads from a
// remote Server, verifying every response's content-hash header before
// trusting its body. It implements syncengine.Fetcher.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

// NewClientWithHTTP lets callers supply a custom *http.Client (timeouts,
// TLS config, transport), e.g. for tests against an httptest.Server.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, http: httpClient}
}

func (c *Client) buildURL(elems ...string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	u.Path = path.Join(append([]string{u.Path}, elems...)...)
	return u.String()
}

func (c *Client) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", bioerr.StorageError("transport.Client.get", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", bioerr.StorageError("transport.Client.get", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", bioerr.StorageError("transport.Client.get", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", bioerr.NotFound("transport.Client.get", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", bioerr.StorageError("transport.Client.get", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body))
	}
	return body, resp.Header.Get(ContentHashHeader), nil
}

// FetchManifest retrieves manifestID at version ("" or "head" for the
// latest).
func (c *Client) FetchManifest(ctx context.Context, manifestID, version string) (manifest.Manifest, error) {
	if version == "" {
		version = "head"
	}
	body, hashHeader, err := c.get(ctx, c.buildURL("manifest", manifestID, version))
	if err != nil {
		return manifest.Manifest{}, err
	}
	var m manifest.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return manifest.Manifest{}, bioerr.New(bioerr.KindSchema, "transport.Client.FetchManifest", manifestID, err)
	}
	actual, err := m.ContentHash()
	if err != nil {
		return manifest.Manifest{}, bioerr.StorageError("transport.Client.FetchManifest", err)
	}
	if err := verifyHeader(hashHeader, actual); err != nil {
		return manifest.Manifest{}, err
	}
	return m, nil
}

// FetchChunk implements syncengine.Fetcher.
func (c *Client) FetchChunk(ctx context.Context, hash hashcodec.Hash) (chunk.Chunk, error) {
	body, hashHeader, err := c.get(ctx, c.buildURL("chunk", hash.String()))
	if err != nil {
		return chunk.Chunk{}, err
	}
	var ch chunk.Chunk
	if err := json.Unmarshal(body, &ch); err != nil {
		return chunk.Chunk{}, bioerr.New(bioerr.KindSchema, "transport.Client.FetchChunk", hash.String(), err)
	}
	if err := verifyHeader(hashHeader, ch.Hash()); err != nil {
		return chunk.Chunk{}, err
	}
	return ch, nil
}

// FetchSequence implements syncengine.Fetcher.
func (c *Client) FetchSequence(ctx context.Context, hash hashcodec.Hash) ([]byte, error) {
	body, hashHeader, err := c.get(ctx, c.buildURL("sequence", hash.String()))
	if err != nil {
		return nil, err
	}
	if err := verifyHeader(hashHeader, hashcodec.HashSequence(body)); err != nil {
		return nil, err
	}
	return body, nil
}

// FetchDeltaOps implements syncengine.Fetcher.
func (c *Client) FetchDeltaOps(ctx context.Context, hash hashcodec.Hash) ([]delta.Op, error) {
	body, hashHeader, err := c.get(ctx, c.buildURL("delta", hash.String()))
	if err != nil {
		return nil, err
	}
	ops, err := delta.DecodeOps(body)
	if err != nil {
		return nil, bioerr.New(bioerr.KindSchema, "transport.Client.FetchDeltaOps", hash.String(), err)
	}
	if err := verifyHeader(hashHeader, delta.PayloadHash(ops)); err != nil {
		return nil, err
	}
	return ops, nil
}

func verifyHeader(header string, actual hashcodec.Hash) error {
	if header == "" {
		return nil // peer didn't send one; caller's own content-hash checks still apply upstream
	}
	raw, err := hex.DecodeString(header)
	if err != nil {
		return bioerr.New(bioerr.KindSchema, "transport.Client", "", fmt.Errorf("malformed content-hash header %q: %w", header, err))
	}
	expected, ok := hashcodec.HashFromBytes(raw)
	if !ok {
		return bioerr.New(bioerr.KindSchema, "transport.Client", "", fmt.Errorf("wrong-length content-hash header %q", header))
	}
	if expected != actual {
		return bioerr.VerificationError("transport.Client", "", expected.Bytes(), actual.Bytes())
	}
	return nil
}
