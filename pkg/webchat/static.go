package webchat

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

var mimeTypes = map[string]string{
	".html":  "text/html",
	".js":    "application/javascript",
	".css":   "text/css",
	".json":  "application/json",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff2": "font/woff2",
	".woff":  "font/woff",
	".ttf":   "font/ttf",
}

func contentTypeFor(name string) string {
	if ct, ok := mimeTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// NewSPAHandler serves files from staticFS and falls back to index.html for
// any path that is not a file, so client-side routes resolve.
func NewSPAHandler(staticFS fs.FS) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if staticFS == nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		name := strings.TrimPrefix(path.Clean("/"+req.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}
		if st, err := fs.Stat(staticFS, name); err != nil || st.IsDir() {
			name = "index.html"
		}
		content, err := fs.ReadFile(staticFS, name)
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentTypeFor(name))
		w.WriteHeader(http.StatusOK)
		if req.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(content)
	})
}
