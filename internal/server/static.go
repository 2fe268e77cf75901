package server

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambda-web-adapter/internal/adapters/storage"
	"lambda-web-adapter/pkg/lambda"
)

const immutableCacheControl = "public,max-age=31536000,immutable"

// serveDir answers GET and HEAD requests for files under dir. Files whose
// path starts with immutable get a year-long cache header. It returns nil
// when dir is empty or missing so the step can be left out of the chain.
func serveDir(dir, immutable string) gin.HandlerFunc {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}

	return func(c *gin.Context) {
		if !lambda.IsPrerenderMethod(c.Request.Method) {
			return
		}

		name := path.Clean("/" + c.Request.URL.Path)
		full := filepath.Join(dir, filepath.FromSlash(name))

		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			return
		}

		f, err := os.Open(full)
		if err != nil {
			return
		}
		defer f.Close()

		if immutable != "" && strings.HasPrefix(name, immutable) {
			c.Header("Cache-Control", immutableCacheControl)
		}
		c.Header("ETag", fmt.Sprintf(`W/"%d-%d"`, info.Size(), info.ModTime().Unix()))
		if c.Writer.Header().Get("Content-Type") == "" {
			c.Header("Content-Type", storage.ContentTypeFor(name))
		}

		http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
		c.Abort()
	}
}

// servePrerendered answers with a prerendered page when the path names one,
// and redirects with 308 when only the trailing-slash twin does.
func (s *Server) servePrerendered(c *gin.Context) {
	if s.opts.Files == nil || !lambda.IsPrerenderMethod(c.Request.Method) {
		return
	}

	pathname := c.Request.URL.Path

	if file, ok := s.opts.Table.Lookup(pathname); ok {
		rc, md, err := s.opts.Files.Open(c.Request.Context(), file)
		if err != nil {
			if !storage.IsNotFound(err) {
				_ = c.Error(err)
			}
			logrus.WithFields(logrus.Fields{
				"path": pathname,
				"file": file,
			}).Warn("Prerendered file unavailable, falling back to the application")
			return
		}
		defer rc.Close()

		s.opts.Metrics.PrerenderedHit("server")

		contentType := md.ContentType
		if contentType == "" {
			contentType = "text/html"
		}
		c.DataFromReader(http.StatusOK, md.Size, contentType, rc, nil)
		c.Abort()
		return
	}

	if location, ok := s.opts.Table.Redirect(pathname); ok {
		if query := c.Request.URL.RawQuery; query != "" {
			location += "?" + query
		}
		c.Redirect(http.StatusPermanentRedirect, location)
		c.Abort()
	}
}
