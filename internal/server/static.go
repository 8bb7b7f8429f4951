package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic serves the dashboard bundle when one is present and installs
// the fallback route. Unknown /api paths always answer with a JSON 404.
func (s *Server) mountStatic() {
	index := s.indexFile()
	s.engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || index == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"kind": "not_found", "message": "endpoint not found"}})
			return
		}
		c.File(index)
	})
	if index == "" {
		return
	}

	s.engine.GET("/", func(c *gin.Context) { c.File(index) })
	if dir := filepath.Join(s.staticDir, "assets"); isDir(dir) {
		s.engine.StaticFS("/assets", gin.Dir(dir, false))
	}
	if icon := filepath.Join(s.staticDir, "favicon.ico"); fileExists(icon) {
		s.engine.StaticFile("/favicon.ico", icon)
	}
}

// indexFile returns the bundle's index.html, or "" to run API only.
func (s *Server) indexFile() string {
	if s.staticDir == "" {
		s.logger.Info("no static directory configured, serving API only")
		return ""
	}
	if !isDir(s.staticDir) {
		s.logger.Warn("static directory missing", "path", s.staticDir)
		return ""
	}
	index := filepath.Join(s.staticDir, "index.html")
	if !fileExists(index) {
		s.logger.Warn("index.html not found", "path", index)
		return ""
	}
	return index
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
