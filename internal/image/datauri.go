package imagepkg

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

var ErrMalformedDataURI = errors.New("malformed data URI")

// DataURI encodes data as a base64 data: URI of the given media type.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI splits a data: URI into its media type and payload.
func ParseDataURI(uri string) (mediaType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrMalformedDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrMalformedDataURI
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta = m
		isBase64 = true
	}
	mediaType = meta
	if mediaType == "" {
		mediaType = "text/plain;charset=US-ASCII"
	}

	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// some encoders drop the padding
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return "", nil, errors.Join(ErrMalformedDataURI, err)
		}
		return mediaType, data, nil
	}

	s, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, errors.Join(ErrMalformedDataURI, err)
	}
	return mediaType, []byte(s), nil
}

func fetchDataURI(ctx context.Context, uri string) (*Fetched, error) {
	_, data, err := ParseDataURI(uri)
	if err != nil {
		return nil, err
	}
	return &Fetched{Data: data}, nil
}
