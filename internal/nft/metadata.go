package nft

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/zephyra-labs/zephyra-cli/internal/httpx"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
)

// PlaceholderImage is shown when a token's metadata cannot be decoded.
const PlaceholderImage = "data:image/svg+xml;base64,PHN2ZyB4bWxucz0iaHR0cDovL3d3dy53My5vcmcvMjAwMC9zdmciIHZpZXdCb3g9IjAgMCAxMDAgMTAwIj48cmVjdCB3aWR0aD0iMTAwIiBoZWlnaHQ9IjEwMCIgZmlsbD0iI2RkZCIvPjx0ZXh0IHg9IjUwIiB5PSI1NSIgdGV4dC1hbmNob3I9Im1pZGRsZSIgZm9udC1zaXplPSIxMiI+Pz88L3RleHQ+PC9zdmc+"

type document struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	ImageData   string `json:"image_data"`
}

// Resolver decodes token metadata documents.
type Resolver struct {
	http    *httpx.Client
	gateway string
}

// NewResolver accepts a nil client; remote documents then fail to decode.
func NewResolver(client *httpx.Client, gateway string) *Resolver {
	return &Resolver{http: client, gateway: registry.NormalizeGateway(gateway)}
}

// Resolve never fails: decode problems become a placeholder record.
func (r *Resolver) Resolve(ctx context.Context, tokenID *big.Int, tokenURI string) model.NFTRecord {
	record := model.NFTRecord{TokenID: tokenID.String()}
	doc, err := r.fetch(ctx, strings.TrimSpace(tokenURI))
	if err == nil {
		record.Image, err = r.image(doc)
	}
	if err != nil {
		record.Name = fmt.Sprintf("Token #%s", tokenID)
		record.Image = PlaceholderImage
		record.DecodeError = err.Error()
		return record
	}
	record.Name = doc.Name
	if record.Name == "" {
		record.Name = fmt.Sprintf("Token #%s", tokenID)
	}
	record.Description = doc.Description
	return record
}

func (r *Resolver) fetch(ctx context.Context, uri string) (document, error) {
	var raw []byte
	switch {
	case uri == "":
		return document{}, errors.New("empty token uri")
	case strings.HasPrefix(uri, "data:"):
		payload, err := decodeDataURI(uri, "application/json")
		if err != nil {
			return document{}, err
		}
		raw = payload
	case strings.HasPrefix(uri, "ipfs://"):
		return r.fetchRemote(ctx, r.ipfsURL(uri))
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return r.fetchRemote(ctx, uri)
	default:
		return document{}, fmt.Errorf("unsupported token uri scheme in %q", truncate(uri))
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("decode metadata JSON: %w", err)
	}
	return doc, nil
}

func (r *Resolver) fetchRemote(ctx context.Context, endpoint string) (document, error) {
	if r.http == nil {
		return document{}, errors.New("remote metadata fetching is disabled")
	}
	if !registry.IsAllowedGatewayURL(endpoint) {
		return document{}, fmt.Errorf("refusing to fetch metadata over insecure url %q", endpoint)
	}
	var doc document
	if err := r.http.GetJSON(ctx, endpoint, &doc); err != nil {
		return document{}, err
	}
	return doc, nil
}

// image applies the precedence: direct reference, then content-addressed,
// then embedded data.
func (r *Resolver) image(doc document) (string, error) {
	img := strings.TrimSpace(doc.Image)
	switch {
	case strings.HasPrefix(img, "https://"), strings.HasPrefix(img, "http://"), strings.HasPrefix(img, "data:image/"):
		return img, nil
	case strings.HasPrefix(img, "ipfs://"):
		return r.ipfsURL(img), nil
	case strings.HasPrefix(img, "<svg"):
		return svgDataURI(img), nil
	case img != "":
		return "", fmt.Errorf("unrecognized image reference %q", truncate(img))
	}
	data := strings.TrimSpace(doc.ImageData)
	switch {
	case strings.HasPrefix(data, "<svg"):
		return svgDataURI(data), nil
	case strings.HasPrefix(data, "data:image/"):
		return data, nil
	case data != "":
		return "", errors.New("unrecognized image_data encoding")
	}
	return "", errors.New("metadata has no image")
}

func (r *Resolver) ipfsURL(ref string) string {
	path := strings.TrimPrefix(ref, "ipfs://")
	path = strings.TrimPrefix(path, "ipfs/")
	return r.gateway + strings.TrimLeft(path, "/")
}

// decodeDataURI handles base64 and plain (optionally percent-encoded) payloads.
func decodeDataURI(uri, wantMediaType string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data uri")
	}
	params := strings.Split(header, ";")
	if mediaType := strings.ToLower(strings.TrimSpace(params[0])); mediaType != wantMediaType {
		return nil, fmt.Errorf("unexpected data uri media type %q", mediaType)
	}
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			decoded, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				return nil, fmt.Errorf("decode base64 payload: %w", err)
			}
			return decoded, nil
		}
	}
	if strings.Contains(payload, "%") {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data uri payload: %w", err)
		}
		return []byte(unescaped), nil
	}
	return []byte(payload), nil
}

func svgDataURI(svg string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

func truncate(s string) string {
	if len(s) <= 48 {
		return s
	}
	return s[:48] + "..."
}
