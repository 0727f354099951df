package services

import (
	"mime"
	"path/filepath"
	"strings"
)

var allowedMIME = map[string]struct{}{
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"image/webp":      {},
	"video/mp4":       {},
	"video/webm":      {},
	"video/ogg":       {},
	"video/quicktime": {},
	"video/x-msvideo": {},
}

// Browsers often send video containers as application/octet-stream
var videoByExt = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
}

// NormalizeMIME corrects the declared content type using the file extension
func NormalizeMIME(filename, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	ext := strings.ToLower(filepath.Ext(filename))

	if v, ok := videoByExt[ext]; ok && !strings.Contains(declared, "video") {
		return v
	}
	if declared == "" || declared == "application/octet-stream" {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			guessed, _, _ = strings.Cut(guessed, ";")
			return guessed
		}
	}
	return declared
}

// AllowedMIME reports whether uploads of this content type are accepted
func AllowedMIME(mimeType string) bool {
	_, ok := allowedMIME[mimeType]
	return ok
}
