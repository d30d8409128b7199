package files

import (
	"mime"
	"path"
	"strings"
)

// Streaming and caption types the platform mime table does not reliably carry.
var mediaMimeTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".m4s":  "video/iso.segment",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".vtt":  "text/vtt",
	".json": "application/json",
}

// DetectMimeType guesses a content type from the locator extension.
func DetectMimeType(locator string) string {
	ext := strings.ToLower(path.Ext(locator))
	if mt, ok := mediaMimeTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
