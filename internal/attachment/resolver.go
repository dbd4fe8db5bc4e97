// Package attachment turns request attachments into files that can be
// committed next to the generated page.
package attachment

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/yokitheyo/pagesmith/internal/model"
)

const (
	DefaultMaxBytes = 5 * 1024 * 1024
	downloadTimeout = 30 * time.Second
)

// Names the generated project owns; attachments with these names are renamed.
var reserved = map[string]bool{"index.html": true, "readme.md": true}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Textual reports whether the content can be shown to the model verbatim.
func (f File) Textual() bool {
	return strings.HasPrefix(f.ContentType, "text/") ||
		f.ContentType == "application/json" ||
		f.ContentType == "image/svg+xml"
}

type Resolver struct {
	client   *http.Client
	maxBytes int64
	allowed  map[string]bool
}

func NewResolver(maxBytes int64, allowedTypes []string, client *http.Client) *Resolver {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if client == nil {
		client = &http.Client{Timeout: downloadTimeout}
	}
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[normalizeType(t)] = true
	}
	return &Resolver{client: client, maxBytes: maxBytes, allowed: allowed}
}

// Resolve fetches every attachment. Attachments that cannot be used are
// reported in failed and skipped; the rest are returned with unique names.
func (r *Resolver) Resolve(ctx context.Context, atts []model.Attachment) (files []File, failed []string) {
	used := map[string]int{}
	for _, att := range atts {
		label := att.Name
		if label == "" {
			label = att.URL
		}

		var (
			data []byte
			ct   string
			err  error
		)
		switch {
		case strings.HasPrefix(att.URL, "data:"):
			data, ct, err = decodeDataURI(att.URL)
		case strings.HasPrefix(att.URL, "http://"), strings.HasPrefix(att.URL, "https://"):
			data, ct, err = r.download(ctx, att.URL)
		default:
			err = errors.New("unsupported url scheme")
		}
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s (%v)", label, err))
			continue
		}
		if !r.allowed[ct] {
			failed = append(failed, fmt.Sprintf("%s (invalid type: %s)", label, ct))
			continue
		}
		if int64(len(data)) > r.maxBytes {
			failed = append(failed, fmt.Sprintf("%s (file too large: %d bytes)", label, len(data)))
			continue
		}

		name := uniqueName(fileName(att.Name, att.URL, ct), used)
		files = append(files, File{Name: name, ContentType: ct, Data: data})
	}
	return files, failed
}

func (r *Resolver) download(ctx context.Context, raw string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "invalid url")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "network error")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > r.maxBytes {
		return nil, "", errors.Errorf("file too large: %d bytes", resp.ContentLength)
	}

	lr := &io.LimitedReader{R: resp.Body, N: r.maxBytes + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, "", errors.Wrap(err, "copy error")
	}
	if lr.N <= 0 {
		return nil, "", errors.New("file too large")
	}

	ct := normalizeType(resp.Header.Get("Content-Type"))
	if ct == "" || ct == "application/octet-stream" {
		if byExt := normalizeType(mime.TypeByExtension(path.Ext(req.URL.Path))); byExt != "" {
			ct = byExt
		}
	}
	return data, ct, nil
}

// decodeDataURI handles data:[<mediatype>][;base64],<data>.
func decodeDataURI(raw string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, "", errors.New("decode error: malformed data uri")
	}
	isBase64 := strings.HasSuffix(meta, ";base64")
	meta = strings.TrimSuffix(meta, ";base64")

	ct := normalizeType(meta)
	if ct == "" {
		ct = "text/plain"
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(payload)
		}
		if err != nil {
			return nil, "", errors.Wrap(err, "decode error")
		}
		return data, ct, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", errors.Wrap(err, "decode error")
	}
	return []byte(text), ct, nil
}

func normalizeType(ct string) string {
	main := strings.Split(ct, ";")[0]
	return strings.TrimSpace(strings.ToLower(main))
}

func fileName(name, rawURL, contentType string) string {
	baseName := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if baseName == "" || baseName == "." || baseName == "/" {
		baseName = ""
		if !strings.HasPrefix(rawURL, "data:") {
			if u, err := url.Parse(rawURL); err == nil {
				baseName = path.Base(u.Path)
			}
		}
	}
	if baseName == "" || baseName == "." || baseName == "/" {
		baseName = "file"
	}

	if path.Ext(baseName) == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			baseName += exts[0]
		}
	}
	if reserved[strings.ToLower(baseName)] {
		baseName = "attachment-" + baseName
	}
	return baseName
}

// uniqueName returns name, or name with the lowest free "-N" suffix. used
// holds every name handed out so far and the last suffix tried per base.
func uniqueName(name string, used map[string]int) string {
	if used[name] == 0 {
		used[name] = 1
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := used[name] + 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if used[candidate] == 0 {
			used[name] = n
			used[candidate] = 1
			return candidate
		}
	}
}
