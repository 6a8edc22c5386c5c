package web

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"
	"github.com/grovesocial/grove/service"
)

// GetRSS renders the newest public entries as an RSS feed.
func GetRSS(services *service.Services, limit int) (string, error) {
	entries, err := services.Entries.ListPublic(limit)
	if err != nil {
		return "", err
	}

	instance := services.Domain()
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Grove - %s", instance),
		Link:        &feeds.Link{Href: fmt.Sprintf("https://%s/feed", instance)},
		Description: fmt.Sprintf("newest public entries on %s", instance),
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, entry := range entries {
		author, err := services.Users.GetByID(entry.AuthorId)
		if err != nil {
			continue
		}
		link := entry.URL
		if link == "" {
			link = entry.ObjectURI
		}
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      entry.ObjectURI,
				Title:   entry.Title,
				Link:    &feeds.Link{Href: link},
				Content: entry.Body,
				Author:  &feeds.Author{Name: author.Handle()},
				Created: entry.CreatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}
