package app

import (
	"log/slog"
	"mime"
)

// Minimal container images ship without /etc/mime.types, so static assets
// and uploaded media would otherwise be served as application/octet-stream.
var assetTypes = map[string]string{
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

func init() {
	for ext, typ := range assetTypes {
		ensureMimeType(ext, typ)
	}
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		slog.Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
	}
}
