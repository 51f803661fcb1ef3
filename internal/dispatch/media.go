// ABOUTME: Decoding and sniffing of base64 media carried in client payloads
// ABOUTME: Accepts raw base64 or data URLs and checks the real content type, not the declared one

package dispatch

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	errBadEncoding = errors.New("payload is not valid base64")
	errBadMedia    = errors.New("payload has an unsupported media type")
)

// maxMediaBytes bounds decoded media independently of the frame read limit.
const maxMediaBytes = 8 << 20

// decodeMedia decodes b64, which may be a data URL, and returns the bytes and
// their sniffed MIME type.
func decodeMedia(b64 string) ([]byte, string, error) {
	s := strings.TrimSpace(b64)
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", errBadEncoding
		}
		s = payload
	}
	if base64.StdEncoding.DecodedLen(len(s)) > maxMediaBytes {
		return nil, "", fmt.Errorf("%w: larger than %d bytes", errBadMedia, maxMediaBytes)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, "", errBadEncoding
		}
	}
	if len(data) == 0 {
		return nil, "", errBadEncoding
	}
	return data, mimetype.Detect(data).String(), nil
}

func decodeImage(b64 string) ([]byte, string, error) {
	data, mime, err := decodeMedia(b64)
	if err != nil {
		return nil, "", err
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("%w: expected an image, got %s", errBadMedia, mime)
	}
	return data, mime, nil
}

// decodeAudio accepts anything that is not obviously another kind of media.
// Browser recorders emit webm/ogg containers that sniff as video.
func decodeAudio(b64 string) ([]byte, string, error) {
	data, mime, err := decodeMedia(b64)
	if err != nil {
		return nil, "", err
	}
	switch {
	case strings.HasPrefix(mime, "audio/"),
		strings.HasPrefix(mime, "video/webm"),
		strings.HasPrefix(mime, "video/mp4"),
		strings.HasPrefix(mime, "video/ogg"),
		strings.HasPrefix(mime, "application/ogg"),
		mime == "application/octet-stream":
		return data, mime, nil
	default:
		return nil, "", fmt.Errorf("%w: expected audio, got %s", errBadMedia, mime)
	}
}
