package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quillpost/internal/service"
	"go.uber.org/zap"
)

// PreviewFile 返回已上传图片的内容
func (a *API) PreviewFile(c *gin.Context) {
	file, err := a.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		a.logger.Error("failed to load file", zap.String("id", c.Param("id")), zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	if file.ContentType != "" {
		c.Header("Content-Type", file.ContentType)
	}
	c.File(file.Path)
}
