// Package news fetches headlines from Google News topic pages.
package news

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/AceNexus/LineBot/internal/errors"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
	"github.com/AceNexus/LineBot/internal/scraper"
)

// Topic is one selectable Google News topic.
type Topic struct {
	ID   int
	Name string
	URL  string
}

// Item is a single headline.
type Item struct {
	Title string
	URL   string
}

const (
	// MaxCount is the most headlines a single request may return.
	MaxCount = 10

	googleNewsBase = "https://news.google.com/"
	shortenerBase  = "https://tinyurl.com/api-create.php?url="
)

// Topic IDs and URLs follow the Google News Traditional Chinese edition.
var topics = []Topic{
	{1, "台灣", googleNewsBase + "topics/CAAqJQgKIh9DQkFTRVFvSUwyMHZNRFptTXpJU0JYcG9MVlJYS0FBUAE?hl=zh-TW&gl=TW&ceid=TW%3Azh-Hant"},
	{2, "國際", googleNewsBase + "topics/CAAqKggKIiRDQkFTRlFvSUwyMHZNRGx1YlY4U0JYcG9MVlJYR2dKVVZ5Z0FQAQ?hl=zh-TW&gl=TW&ceid=TW%3Azh-Hant"},
	{3, "商業", googleNewsBase + "topics/CAAqKggKIiRDQkFTRlFvSUwyMHZNRGx6TVdZU0JYcG9MVlJYR2dKVVZ5Z0FQAQ?hl=zh-TW&gl=TW&ceid=TW%3Azh-Hant"},
	{4, "科技", googleNewsBase + "topics/CAAqLAgKIiZDQkFTRmdvSkwyMHZNR1ptZHpWbUVnVjZhQzFVVnhvQ1ZGY29BQVAB?hl=zh-TW&gl=TW&ceid=TW%3Azh-Hant"},
	{5, "娛樂", googleNewsBase + "topics/CAAqKggKIiRDQkFTRlFvSUwyMHZNREpxYW5RU0JYcG9MVlJYR2dKVVZ5Z0FQAQ?hl=zh-TW&gl=TW&ceid=TW%3Azh-Hant"},
	{6, "體育", googleNewsBase + "topics/CAAqKggKIiRDQkFTRlFvSUwyMHZNRFp1ZEdvU0JYcG9MVlJYR2dKVVZ5Z0FQAQ?hl=zh-TW&gl=TW&ceid=TW%3Azh-Hant"},
	{7, "健康", googleNewsBase + "topics/CAAqJQgKIh9DQkFTRVFvSUwyMHZNR3QwTlRFU0JYcG9MVlJYS0FBUAE?hl=zh-TW&gl=TW&ceid=TW%3Azh-Hant"},
}

// Topics returns the selectable topics in menu order.
func Topics() []Topic {
	out := make([]Topic, len(topics))
	copy(out, topics)
	return out
}

// TopicName returns the display name for a topic ID, or "" if unknown.
func TopicName(id int) string {
	for _, t := range topics {
		if t.ID == id {
			return t.Name
		}
	}
	return ""
}

// ValidTopic reports whether id is a selectable topic.
func ValidTopic(id int) bool {
	return TopicName(id) != ""
}

// Provider scrapes Google News topic pages.
type Provider struct {
	client  *scraper.Client
	log     *logger.Logger
	metrics *metrics.Metrics

	// overridable in tests
	topicURL  func(id int) string
	shortener string
	linkBase  string
}

// New creates a news provider.
func New(client *scraper.Client, log *logger.Logger, m *metrics.Metrics) *Provider {
	return &Provider{
		client:  client,
		log:     log.WithModule("news"),
		metrics: m,
		topicURL: func(id int) string {
			for _, t := range topics {
				if t.ID == id {
					return t.URL
				}
			}
			return ""
		},
		shortener: shortenerBase,
		linkBase:  googleNewsBase,
	}
}

// Fetch returns up to count shuffled headlines for the topic.
func (p *Provider) Fetch(ctx context.Context, topicID, count int) ([]Item, error) {
	start := time.Now()
	items, err := p.fetch(ctx, topicID, count)
	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordProviderRequest("news", status, time.Since(start).Seconds())
	}
	return items, err
}

func (p *Provider) fetch(ctx context.Context, topicID, count int) ([]Item, error) {
	if !ValidTopic(topicID) {
		return nil, fmt.Errorf("unknown news topic %d", topicID)
	}
	if count < 1 {
		count = 1
	}
	if count > MaxCount {
		count = MaxCount
	}

	doc, err := p.client.GetDocument(ctx, p.topicURL(topicID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news topic %d: %w", topicID, err)
	}

	var items []Item
	doc.Find("a.gPFEn").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		if title == "" || href == "" {
			return
		}
		items = append(items, Item{Title: title, URL: p.resolveLink(href)})
	})
	if len(items) == 0 {
		return nil, fmt.Errorf("no headlines found for topic %d: %w", topicID, apperrors.ErrNotFound)
	}

	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	if len(items) > count {
		items = items[:count]
	}

	for i := range items {
		items[i].URL = p.shorten(ctx, items[i].URL)
	}
	return items, nil
}

// resolveLink turns the relative article href into an absolute,
// percent-decoded Google News link.
func (p *Provider) resolveLink(href string) string {
	base, err := url.Parse(p.linkBase)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	full := base.ResolveReference(ref).String()
	if decoded, err := url.QueryUnescape(full); err == nil {
		return decoded
	}
	return full
}

// shorten converts a long article link via TinyURL, best effort.
func (p *Provider) shorten(ctx context.Context, long string) string {
	short, err := p.client.GetString(ctx, p.shortener+url.QueryEscape(long))
	if err != nil || !strings.HasPrefix(short, "http") {
		if err != nil {
			p.log.Warnf("url shortening failed: %v", err)
		}
		return long
	}
	return short
}
