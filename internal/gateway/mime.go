package gateway

import (
	"net/url"
	"path"
	"strings"
)

// mimeFromExtension maps the allow-listed artifact extensions to MIME types.
// Unknown extensions return "" and fall back to the stored content-type.
func mimeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case "css":
		return "text/css"
	case "js":
		return "text/javascript"
	case "html":
		return "text/html"
	case "png":
		return "image/png"
	case "jpeg", "jpg":
		return "image/jpeg"
	case "txt", "log":
		return "text/plain"
	default:
		return ""
	}
}

// executableMimes are rendered as plain text outside preview mode so cached
// user content is never served as a script or stylesheet.
func isExecutableMime(mime string) bool {
	return mime == "text/css" || mime == "text/javascript"
}

// displayableMimes may be rendered inline without a disposition header.
func isDisplayableMime(mime string) bool {
	return mime == "text/html"
}

// RequestType is the caller's declared read intent.
type RequestType string

const (
	TypeDefault  RequestType = ""
	TypeDownload RequestType = "download"
	TypePreview  RequestType = "preview"
)

// negotiate derives the response content-type and content-disposition for an
// artifact read. storedType is the content-type persisted at write time.
func negotiate(objectPath string, reqType RequestType, storedType string) (contentType, disposition string) {
	fileName := path.Base(objectPath)
	ext := strings.TrimPrefix(path.Ext(fileName), ".")
	encoded := url.PathEscape(fileName)

	if reqType == TypeDownload {
		return "application/octet-stream", `attachment; filename="` + encoded + `"`
	}

	mime := mimeFromExtension(ext)
	if reqType != TypePreview && isExecutableMime(mime) {
		mime = "text/plain"
	}
	if mime == "" {
		mime = storedType
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	if !isDisplayableMime(mime) {
		disposition = `inline; filename="` + encoded + `"`
	}
	return mime, disposition
}
