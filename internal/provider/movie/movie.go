// Package movie scrapes the LINE TODAY trending movie chart.
package movie

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/AceNexus/LineBot/internal/errors"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/metrics"
	"github.com/AceNexus/LineBot/internal/scraper"
)

// Movie is one chart entry.
type Movie struct {
	Title        string
	EnglishTitle string
	Rating       string
	Certificate  string
	Runtime      string
	ReleaseInfo  string
	Genres       string
	PosterURL    string
	TrailerURL   string
}

const (
	// MaxMovies caps the chart length.
	MaxMovies = 10

	chartURL = "https://today.line.me/tw/v2/movie/chart/trending"
	siteBase = "https://today.line.me"
)

var (
	posterPattern  = regexp.MustCompile(`(?i)url\(['"]?(.*?)['"]?\)`)
	runtimePattern = regexp.MustCompile(`(\d+小時\d+分)`)
	releasePattern = regexp.MustCompile(`上映(\d+週|\d+天)`)
	genreSplit     = regexp.MustCompile(`[•\s]+`)
)

// Provider scrapes the movie chart.
type Provider struct {
	client  *scraper.Client
	log     *logger.Logger
	metrics *metrics.Metrics

	// overridable in tests
	chartURL string
	siteBase string
}

// New creates a movie provider.
func New(client *scraper.Client, log *logger.Logger, m *metrics.Metrics) *Provider {
	return &Provider{
		client:   client,
		log:      log.WithModule("movie"),
		metrics:  m,
		chartURL: chartURL,
		siteBase: siteBase,
	}
}

// Fetch returns up to MaxMovies trending movies.
func (p *Provider) Fetch(ctx context.Context) ([]Movie, error) {
	start := time.Now()
	movies, err := p.fetch(ctx)
	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordProviderRequest("movie", status, time.Since(start).Seconds())
	}
	return movies, err
}

func (p *Provider) fetch(ctx context.Context) ([]Movie, error) {
	doc, err := p.client.GetDocument(ctx, p.chartURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch movie chart: %w", err)
	}

	var movies []Movie
	doc.Find("li.detailList-item").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := p.parseItem(s)
		if m.Title == "" {
			return true
		}
		movies = append(movies, m)
		return len(movies) < MaxMovies
	})

	if len(movies) == 0 {
		return nil, fmt.Errorf("no movies found in chart: %w", apperrors.ErrNotFound)
	}
	p.log.Infof("fetched %d movies from chart", len(movies))
	return movies, nil
}

func (p *Provider) parseItem(s *goquery.Selection) Movie {
	var m Movie

	m.Title = strings.TrimSpace(s.Find("h2.detailListItem-title").Text())
	m.EnglishTitle = strings.TrimSpace(s.Find("h3.detailListItem-engTitle").Text())
	m.Rating = strings.TrimSpace(s.Find("span.iconInfo-text").First().Text())
	m.Certificate = strings.TrimSpace(s.Find("div.detailListItem-certificate span.glnBadge-text").Text())

	if style, ok := s.Find("figure.detailListItem-posterImage").Attr("style"); ok {
		if match := posterPattern.FindStringSubmatch(style); len(match) == 2 {
			u := strings.Trim(match[1], `'" `)
			if u != "" && !strings.HasPrefix(u, "data:") {
				m.PosterURL = u
			}
		}
	}

	status := s.Find("div.detailListItem-status").Text()
	if match := runtimePattern.FindStringSubmatch(status); len(match) == 2 {
		m.Runtime = match[1]
	}
	if match := releasePattern.FindStringSubmatch(status); len(match) == 2 {
		m.ReleaseInfo = "上映" + match[1]
	}

	// Category text looks like "保護級動作 • 冒險"; genres follow the rating.
	category := strings.TrimSpace(s.Find("div.detailListItem-category").Text())
	if idx := strings.LastIndex(category, "級"); idx >= 0 {
		genres := category[idx+len("級"):]
		parts := genreSplit.Split(genres, -1)
		var kept []string
		for _, part := range parts {
			if part != "" {
				kept = append(kept, part)
			}
		}
		if len(kept) > 0 {
			m.Genres = strings.Join(kept, " • ")
		}
	}

	if href, ok := s.Find("a.detailListItem-trailer").Attr("href"); ok && href != "" {
		m.TrailerURL = p.siteBase + href
	}

	return m
}
