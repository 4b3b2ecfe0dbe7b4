package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/banner"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/event"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

type bannerResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Template    string `json:"template"`
	ImageURL    string `json:"image_url"`
	InviteURL   string `json:"invite_url"`
	QRURL       string `json:"qr_url"`
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createBanner(c *gin.Context) {
	var rec event.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.renderer.Render(c.Request.Context(), rec)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	item := s.results.Put(rec, res)
	c.JSON(http.StatusCreated, bannerResponse{
		ID:          item.ID,
		Title:       res.Title,
		Description: res.Description,
		Width:       res.Width,
		Height:      res.Height,
		Template:    res.Template,
		ImageURL:    s.link(item.ID, "image"),
		InviteURL:   s.link(item.ID, "invite"),
		QRURL:       s.link(item.ID, "qr"),
	})
}

func (s *Server) bannerImage(c *gin.Context) {
	item, ok := s.lookup(c)
	if !ok {
		return
	}
	res := item.Result
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename(item, res.Format.Ext())))
	c.Header("Last-Modified", item.CreatedAt.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, res.ContentType, res.Bitmap)
}

func (s *Server) bannerInvite(c *gin.Context) {
	item, ok := s.lookup(c)
	if !ok {
		return
	}
	ics, err := event.Invite(item.Record, item.Result.Title, item.CreatedAt)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename(item, "ics")))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", ics)
}

// bannerQR encodes the image link so a phone can fetch the banner.
func (s *Server) bannerQR(c *gin.Context) {
	item, ok := s.lookup(c)
	if !ok {
		return
	}
	size := defaultQRSize
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v > 0 {
		size = min(v, maxQRSize)
	}
	target := s.link(item.ID, "image")
	if s.publicURL == "" {
		target = requestOrigin(c) + target
	}
	b, err := qrcode.Encode(target, qrcode.Medium, size)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}

func (s *Server) lookup(c *gin.Context) (*Rendered, bool) {
	item, ok := s.results.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "banner not found or expired"})
		return nil, false
	}
	return item, true
}

func (s *Server) link(id, kind string) string {
	return fmt.Sprintf("%s/api/banner/%s/%s", s.publicURL, id, kind)
}

func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}

func filename(item *Rendered, ext string) string {
	name := strings.TrimSpace(item.Record.Logon)
	if name == "" {
		name = "banner"
	}
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '/' || r == '\\' || r < ' ' {
			return '_'
		}
		return r
	}, name)
	return name + "." + ext
}

// statusOf maps render failures to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, banner.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, banner.ErrMalformedTemplate), errors.Is(err, banner.ErrViewBoxMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, banner.ErrRasterizeTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
