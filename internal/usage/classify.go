package usage

import "strings"

// Classify maps a MIME type onto a usage category. Parameters such as
// charset are ignored.
func Classify(mime string) Category {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	switch {
	case strings.HasPrefix(mime, "image/"):
		return CategoryImages
	case strings.HasPrefix(mime, "video/"):
		return CategoryVideos
	case mime == "application/pdf",
		mime == "application/msword",
		strings.HasPrefix(mime, "application/vnd.openxml"),
		strings.HasPrefix(mime, "application/vnd.ms-excel"),
		strings.HasPrefix(mime, "text/"):
		return CategoryDocuments
	default:
		return CategoryOther
	}
}
