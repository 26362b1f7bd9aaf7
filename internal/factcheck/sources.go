package factcheck

// Domain allowlists per source filter. Providers fold the selected list into
// their search instructions; the lists are capped at 20 domains to fit
// provider-side filter limits.
var sourceDomains = map[SourceFilter][]string{
	FilterAuthoritative: {
		"wikipedia.org", "britannica.com", "nist.gov", "cdc.gov", "nasa.gov",
		"nih.gov", "fda.gov", "epa.gov", "stanford.edu", "mit.edu",
		"harvard.edu", "ox.ac.uk", "cambridge.org", "who.int", "un.org",
		"worldbank.org", "census.gov", "usgs.gov", "noaa.gov", "loc.gov",
	},
	FilterNews: {
		"reuters.com", "apnews.com", "bbc.com", "nytimes.com",
		"washingtonpost.com", "wsj.com", "theguardian.com", "ft.com",
		"bloomberg.com", "economist.com", "npr.org", "pbs.org", "cnbc.com",
		"axios.com", "propublica.org", "factcheck.org", "snopes.com",
		"politifact.com", "fullfact.org",
	},
	FilterSocial: {
		"reddit.com", "twitter.com", "x.com", "facebook.com", "youtube.com",
		"instagram.com", "tiktok.com", "linkedin.com", "quora.com",
		"medium.com",
	},
}

// Domains returns the allowlist for a filter, or nil for FilterAll.
func (f SourceFilter) Domains() []string {
	return sourceDomains[f]
}
