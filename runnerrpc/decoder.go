// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/Query-farm/runner-rpc/container"
)

// WireResponse is a fully read runner response.
type WireResponse struct {
	Status int
	Body   []byte
	Header http.Header
}

// decodeResponse validates resp against the wire contract and reconstructs
// the returned value. Checks run in order and the first failure wins.
func decodeResponse(codec Codec, runner string, resp *WireResponse) (any, error) {
	if resp.Status != http.StatusOK {
		return nil, &RemoteFault{Runner: runner, Status: resp.Status, Body: resp.Body}
	}

	protoErr := func(reason string, err error) error {
		return &ProtocolError{Runner: runner, Status: resp.Status, Body: resp.Body, Reason: reason, Err: err}
	}

	metaHeader, ok := headerValue(resp.Header, HeaderPayloadMeta)
	if !ok {
		return nil, protoErr(HeaderPayloadMeta+" header not set, an exception might have occurred in the remote server", nil)
	}
	contentType, ok := headerValue(resp.Header, HeaderContentType)
	if !ok {
		return nil, protoErr("Content-Type header not set, an exception might have occurred in the remote server", nil)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), ContentTypePrefix) {
		return nil, protoErr(fmt.Sprintf("invalid Content-Type %q", contentType), nil)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(metaHeader), &meta); err != nil {
		return nil, &ValidationError{Runner: runner, Reason: fmt.Sprintf("invalid %s %q", HeaderPayloadMeta, metaHeader), Err: err}
	}

	tag := contentType[len(ContentTypePrefix):]
	if i := strings.IndexByte(tag, ';'); i >= 0 {
		tag = tag[:i]
	}
	tag = strings.TrimSpace(tag)

	body, err := decompress(resp.Header.Get(HeaderContentEncoding), resp.Body)
	if err != nil {
		return nil, protoErr("decompressing body", err)
	}

	v, err := codec.FromPayload(container.Payload{Data: body, Meta: meta, Container: tag})
	if err != nil {
		return nil, protoErr(fmt.Sprintf("decoding %s payload", tag), err)
	}
	return v, nil
}

// headerValue reports whether key is present at all, even with an empty value.
func headerValue(h http.Header, key string) (string, bool) {
	vals, ok := h[http.CanonicalHeaderKey(key)]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// decompress undoes a Content-Encoding the transport left in place.
func decompress(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "zstd":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(body, nil)
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding %q", encoding)
	}
}
