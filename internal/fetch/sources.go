package fetch

import (
	"net/url"
	"strings"

	"github.com/abelbrown/wikiscroll/internal/catalog"
)

// Source is one Wikipedia featured-content feed.
type Source struct {
	Subcategory string // catalog subcategory that selects it
	Feed        string // value of the featuredfeed "feed" parameter
	Name        string // display name
}

// DefaultSources returns the featured feeds served under the Featured category.
func DefaultSources() []Source {
	return []Source{
		{Subcategory: "Articles", Feed: "featured", Name: "Today's featured article"},
		{Subcategory: "Picture", Feed: "potd", Name: "Picture of the day"},
		{Subcategory: "OnThisDay", Feed: "onthisday", Name: "On this day"},
	}
}

// SourceFor returns the feed for a subcategory. General selects the
// featured article feed.
func SourceFor(subcategory string) (Source, bool) {
	sources := DefaultSources()
	if subcategory == "" || subcategory == catalog.General {
		return sources[0], true
	}
	for _, src := range sources {
		if strings.EqualFold(src.Subcategory, subcategory) {
			return src, true
		}
	}
	return Source{}, false
}

// FeedURL builds the featuredfeed RSS URL for src against an api.php endpoint.
func FeedURL(endpoint string, src Source) string {
	params := url.Values{}
	params.Set("action", "featuredfeed")
	params.Set("feed", src.Feed)
	params.Set("feedformat", "rss")
	return endpoint + "?" + params.Encode()
}
