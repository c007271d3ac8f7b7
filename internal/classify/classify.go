// Package classify decides how an image generation response is encoded and
// turns it into something the view can display.
//
// A response is either binary image bytes (declared by an image/* content
// type) or text. Text is either an already embeddable reference (http, https
// or data URI) or a bare base64 payload whose format is sniffed from its
// leading characters.
package classify

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"unicode"

	"voxcanvas/internal/domain"
)

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"

	// DefaultImageMime is used when a server declares an image without a subtype.
	DefaultImageMime = MimePNG

	downloadBase = "generated-image"
)

// Kind is the detected encoding of a response.
type Kind string

const (
	KindBinary     Kind = "binary"
	KindEmbeddable Kind = "embeddable"
	KindBase64     Kind = "base64"
)

// Result is a classified response. Binary results carry Data and must be
// turned into a revocable handle by the caller; text results carry a ready
// Reference.
type Result struct {
	Kind      Kind
	Reference string
	MimeType  string
	Data      []byte
}

var embeddablePrefixes = []string{"http://", "https://", "data:"}

// base64 renderings of the JPEG SOI marker and the PNG signature.
const (
	jpegSignature = "/9j"
	pngSignature  = "iVBOR"
)

// Response classifies a response by its declared content type.
func Response(contentType string, body []byte) (Result, error) {
	if IsImageContentType(contentType) {
		return Result{
			Kind:     KindBinary,
			MimeType: BinaryMime(contentType),
			Data:     body,
		}, nil
	}
	return Text(string(body))
}

// IsImageContentType reports whether a declared content type is in the image family.
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// BinaryMime normalizes a declared image content type, falling back to PNG
// when the subtype is missing or unparsable.
func BinaryMime(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return DefaultImageMime
	}
	family, subtype, ok := strings.Cut(mediaType, "/")
	if !ok || family != "image" || subtype == "" {
		return DefaultImageMime
	}
	return mediaType
}

// Text classifies a textual response body.
func Text(text string) (Result, error) {
	if text == "" {
		return Result{}, domain.ErrEmptyImagePayload
	}

	if IsEmbeddable(text) {
		return Result{Kind: KindEmbeddable, Reference: text}, nil
	}

	mimeType := SniffBase64(text)
	return Result{
		Kind:      KindBase64,
		Reference: DataURI(mimeType, text),
		MimeType:  mimeType,
	}, nil
}

// IsEmbeddable reports whether text is already a reference the view can load.
func IsEmbeddable(text string) bool {
	for _, prefix := range embeddablePrefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// SniffBase64 infers the image type of a base64 payload from its encoded
// prefix without decoding it. Leading whitespace is tolerated before the JPEG
// marker only.
func SniffBase64(text string) string {
	if strings.HasPrefix(strings.TrimLeftFunc(text, unicode.IsSpace), jpegSignature) {
		return MimeJPEG
	}
	if strings.HasPrefix(text, pngSignature) {
		return MimePNG
	}
	return MimePNG
}

// DataURI wraps a base64 payload verbatim.
func DataURI(mimeType string, payload string) string {
	return "data:" + mimeType + ";base64," + payload
}

// DecodeDataURI returns the media type and decoded bytes of a data URI.
func DecodeDataURI(reference string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(reference, "data:")
	if !ok {
		return "", nil, errors.New("not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URI has no payload")
	}

	mediaType := header
	isBase64 := false
	if strings.HasSuffix(header, ";base64") {
		mediaType = strings.TrimSuffix(header, ";base64")
		isBase64 = true
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("invalid data URI payload: %w", err)
		}
		return mediaType, []byte(decoded), nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
		if err != nil {
			return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
	}
	return mediaType, data, nil
}

// DownloadExtension derives the file extension offered for a download.
func DownloadExtension(mimeType string) string {
	if mimeType == "" {
		return "png"
	}
	if strings.Contains(mimeType, "jpeg") {
		return "jpg"
	}
	_, subtype, ok := strings.Cut(mimeType, "/")
	if !ok || subtype == "" {
		return "png"
	}
	return subtype
}

// DownloadName is the file name offered when saving a generated image.
func DownloadName(mimeType string) string {
	return downloadBase + "." + DownloadExtension(mimeType)
}
