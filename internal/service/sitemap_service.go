package service

import (
	"encoding/xml"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

const sitemapXMLNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []SitemapURL `xml:"url"`
}

// SitemapURL 对应一个 <url> 条目。
type SitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// SitemapService 为可见内容生成站点地图条目，并按 TTL 缓存。
type SitemapService struct {
	pages      *PageService
	articles   *ArticleService
	products   *ProductService
	categories *CategoryService

	baseURL         string
	defaultLanguage string
	ttl             time.Duration
	now             func() time.Time

	mu      sync.RWMutex
	urls    []SitemapURL
	fetched time.Time
}

// NewSitemapService 创建 SitemapService，ttl 非正数时默认一小时。
func NewSitemapService(pages *PageService, articles *ArticleService, products *ProductService, categories *CategoryService, baseURL, defaultLanguage string, ttl time.Duration) *SitemapService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if strings.TrimSpace(defaultLanguage) == "" {
		defaultLanguage = "en"
	}
	return &SitemapService{
		pages:           pages,
		articles:        articles,
		products:        products,
		categories:      categories,
		baseURL:         strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		defaultLanguage: defaultLanguage,
		ttl:             ttl,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Invalidate 清空缓存，下次读取时重建。
func (s *SitemapService) Invalidate() {
	s.mu.Lock()
	s.urls = nil
	s.mu.Unlock()
}

func (s *SitemapService) valid() bool {
	return s.urls != nil && s.now().Sub(s.fetched) < s.ttl
}

// URLs 返回缓存的条目，过期时重建。
func (s *SitemapService) URLs() ([]SitemapURL, error) {
	s.mu.RLock()
	if s.valid() {
		urls := s.urls
		s.mu.RUnlock()
		return urls, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid() {
		return s.urls, nil
	}
	urls, err := s.build()
	if err != nil {
		return nil, err
	}
	s.urls = urls
	s.fetched = s.now()
	return urls, nil
}

// Render 把站点地图 XML 写入 w。
func (s *SitemapService) Render(w io.Writer) error {
	urls, err := s.URLs()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(sitemapURLSet{XMLNS: sitemapXMLNS, URLs: urls})
}

func (s *SitemapService) build() ([]SitemapURL, error) {
	now := s.now()
	urls := []SitemapURL{}
	seen := map[string]bool{}
	add := func(loc string, modified time.Time) {
		if seen[loc] {
			return
		}
		seen[loc] = true
		entry := SitemapURL{Loc: loc}
		if !modified.IsZero() {
			entry.LastMod = modified.UTC().Format("2006-01-02")
		}
		urls = append(urls, entry)
	}

	if s.pages != nil {
		pages, err := s.pages.ListVisible(now)
		if err != nil {
			return nil, err
		}
		for _, page := range pages {
			path := "/p/" + url.PathEscape(page.Slug)
			if page.Slug == "home" {
				path = "/"
			}
			add(s.link(path, page.Language), page.UpdatedAt)
		}
	}

	if s.articles != nil {
		articles, err := s.articles.ListVisible(now)
		if err != nil {
			return nil, err
		}
		var latest time.Time
		for _, article := range articles {
			if article.UpdatedAt.After(latest) {
				latest = article.UpdatedAt
			}
		}
		add(s.link("/articles", ""), latest)
		for _, article := range articles {
			add(s.link("/articles/"+url.PathEscape(article.Slug), article.Language), article.UpdatedAt)
		}
	}

	if s.categories != nil {
		categories, err := s.categories.List()
		if err != nil {
			return nil, err
		}
		for _, category := range categories {
			add(s.link("/articles?category="+url.QueryEscape(category.Slug), ""), category.UpdatedAt)
		}
	}

	if s.products != nil {
		products, err := s.products.ListVisible(now, 0)
		if err != nil {
			return nil, err
		}
		for _, product := range products {
			add(s.link("/products/"+url.PathEscape(product.Slug), ""), product.UpdatedAt)
		}
	}
	return urls, nil
}

func (s *SitemapService) link(path, language string) string {
	loc := s.baseURL + path
	if language != "" && language != s.defaultLanguage {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		loc += sep + "lang=" + url.QueryEscape(language)
	}
	return loc
}
