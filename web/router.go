package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"github.com/grovesocial/grove/activitypub"
	"github.com/grovesocial/grove/service"
	"github.com/grovesocial/grove/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const activityJSON = "application/activity+json; charset=utf-8"

// Router wires the HTTP surface: webfinger, actor and object documents,
// inboxes, RSS and metrics. Inbox POSTs only persist the envelope; all
// verification and side effects run in the engine workers.
func Router(conf *util.AppConfig, services *service.Services, engine *activitypub.Engine) error {
	log.Info("Starting HTTP server", "host", conf.Conf.Host, "port", conf.Conf.HttpPort)
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := GetRSS(services, 50)
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}
		c.Render(200, render.String{Format: rss})
	})

	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if conf.Conf.Federation.Enabled {
		// Stricter rate limit for federation endpoints: 5 req/sec per IP
		apLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))
		maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024) // 1MB

		g.GET("/.well-known/webfinger", func(c *gin.Context) {
			c.Header("Content-Type", "application/json; charset=utf-8")

			resource := c.Query("resource")
			if resource == "" || !strings.HasPrefix(resource, "acct:") {
				c.Render(404, render.String{Format: GetWebFingerNotFound()})
				return
			}
			resource = strings.TrimPrefix(resource, "acct:")
			resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.Domain))
			resp, err := GetWebfinger(resource, services)
			if err != nil {
				c.Render(404, render.String{Format: GetWebFingerNotFound()})
				return
			}
			c.Render(200, render.String{Format: resp})
		})

		g.GET("/u/:username", func(c *gin.Context) {
			c.Header("Content-Type", activityJSON)
			doc, err := GetUserActor(c.Param("username"), services)
			if err != nil {
				c.JSON(404, gin.H{"error": "Actor not found"})
				return
			}
			c.Render(200, render.String{Format: doc})
		})

		g.GET("/m/:name", func(c *gin.Context) {
			c.Header("Content-Type", activityJSON)
			doc, err := GetMagazineActor(c.Param("name"), services)
			if err != nil {
				c.JSON(404, gin.H{"error": "Actor not found"})
				return
			}
			c.Render(200, render.String{Format: doc})
		})

		g.GET("/u/:username/followers", func(c *gin.Context) {
			serveFollowers(c, services, func() (string, error) {
				actor, err := services.Users.GetLocalByUsername(c.Param("username"))
				if err != nil {
					return "", err
				}
				return GetFollowersCollection(actor, services)
			})
		})

		g.GET("/m/:name/followers", func(c *gin.Context) {
			serveFollowers(c, services, func() (string, error) {
				mag, err := services.Magazines.GetByName(c.Param("name"))
				if err != nil {
					return "", err
				}
				actor, err := services.Users.GetByID(mag.ActorId)
				if err != nil {
					return "", err
				}
				return GetFollowersCollection(actor, services)
			})
		})

		g.GET("/u/:username/outbox", func(c *gin.Context) {
			c.Header("Content-Type", activityJSON)
			actor, err := services.Users.GetLocalByUsername(c.Param("username"))
			if err != nil {
				c.JSON(404, gin.H{"error": "Actor not found"})
				return
			}
			doc, err := GetOutboxCollection(actor)
			if err != nil {
				c.JSON(500, gin.H{"error": "Internal error"})
				return
			}
			c.Render(200, render.String{Format: doc})
		})

		g.GET("/e/:id", func(c *gin.Context) {
			serveObject(c, func(id uuid.UUID) (string, bool, error) {
				return GetEntryObject(id, services)
			})
		})
		g.GET("/p/:id", func(c *gin.Context) {
			serveObject(c, func(id uuid.UUID) (string, bool, error) {
				return GetPostObject(id, services)
			})
		})
		g.GET("/c/:id", func(c *gin.Context) {
			serveObject(c, func(id uuid.UUID) (string, bool, error) {
				return GetCommentObject(id, services)
			})
		})

		inbox := engine.Inbox()
		g.POST("/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
			acceptInbound(c, inbox, "shared")
		})
		g.POST("/u/:username/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
			acceptInbound(c, inbox, c.Param("username"))
		})
		g.POST("/m/:name/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
			acceptInbound(c, inbox, c.Param("name"))
		})
	}

	return g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
}

func serveFollowers(c *gin.Context, services *service.Services, build func() (string, error)) {
	c.Header("Content-Type", activityJSON)
	doc, err := build()
	if err != nil {
		c.JSON(404, gin.H{"error": "Actor not found"})
		return
	}
	c.Render(200, render.String{Format: doc})
}

func serveObject(c *gin.Context, get func(uuid.UUID) (string, bool, error)) {
	c.Header("Content-Type", activityJSON)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(404, gin.H{"error": "Invalid object ID"})
		return
	}
	doc, gone, err := get(id)
	if errors.Is(err, ErrNotPublic) {
		c.JSON(404, gin.H{"error": "Object not found"})
		return
	}
	if err != nil {
		c.JSON(404, gin.H{"error": "Object not found"})
		return
	}
	if gone {
		c.Render(410, render.String{Format: doc})
		return
	}
	c.Render(200, render.String{Format: doc})
}

// acceptInbound persists the raw delivery and answers 202. The stored
// headers keep Host explicitly; Go moves it off the header map and the
// signature covers it.
func acceptInbound(c *gin.Context, inbox *activitypub.Inbox, target string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(400)
		return
	}

	var probe struct {
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Actor == "" {
		c.Status(400)
		return
	}

	headers := c.Request.Header.Clone()
	headers.Set("Host", c.Request.Host)

	err = inbox.Enqueue(target, c.Request.Method, c.Request.URL.Path, headers, body, probe.Actor)
	if err != nil {
		log.Error("Failed to enqueue inbound activity", "err", err)
		c.Status(500)
		return
	}
	c.Status(202)
}
