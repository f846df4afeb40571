package server

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleTenantAssets sirve {AssetsDir}/{tenant}/assets/{path}. Son las
// imágenes de header de los menús; WhatsApp las baja por URL pública.
func (s *Server) handleTenantAssets(c *gin.Context) {
	tenant := c.Param("tenant")
	if tenant == "" || tenant == "." || strings.Contains(tenant, "..") || strings.ContainsAny(tenant, `/\`) {
		c.Status(http.StatusBadRequest)
		return
	}

	rel := strings.TrimPrefix(c.Param("path"), "/")
	clean := filepath.Clean(rel)
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, string(filepath.Separator)+".."+string(filepath.Separator)) {
		c.Status(http.StatusBadRequest)
		return
	}

	baseDir := filepath.Join(s.opts.AssetsDir, tenant, "assets")
	filePath := filepath.Join(baseDir, clean)

	absBase, err1 := filepath.Abs(baseDir)
	absFile, err2 := filepath.Abs(filePath)
	if err1 != nil || err2 != nil || !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) {
		c.Status(http.StatusBadRequest)
		return
	}

	if ct := mime.TypeByExtension(filepath.Ext(absFile)); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.File(absFile)
}
