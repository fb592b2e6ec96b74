package websearch

// Item is a single web search result. Link is the identity key: two items
// with the same Link are the same result regardless of other fields.
type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
	HTMLTitle   string `json:"htmlTitle,omitempty"`
	HTMLSnippet string `json:"htmlSnippet,omitempty"`
}

// CleanTitle returns the title with markup stripped and entities decoded,
// preferring the raw HTML variant when the API provides one.
func (it Item) CleanTitle() string {
	if it.HTMLTitle != "" {
		return StripHTML(it.HTMLTitle)
	}
	return StripHTML(it.Title)
}

// CleanSnippet returns the snippet with markup stripped and entities decoded.
func (it Item) CleanSnippet() string {
	if it.HTMLSnippet != "" {
		return StripHTML(it.HTMLSnippet)
	}
	return StripHTML(it.Snippet)
}

// Response is one page of search results.
type Response struct {
	Items        []Item
	TotalResults int64
	HasNextPage  bool
}

// Options tunes a single search call.
type Options struct {
	Count           int    // Number of results to request (API caps at 10 per page)
	StartIndex      int    // 1-based pagination offset
	Language        string // lr restriction, e.g. "lang_en"
	Region          string // gl restriction, e.g. "us"
	SafeMode        string // "off", "medium", "high"
	SiteRestriction string // Restrict results to one site
}
