package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Instance.SiteURL == "" {
		cfg.Instance.SiteURL = "http://localhost:8080"
	}
	if cfg.Instance.SiteName == "" {
		cfg.Instance.SiteName = "podsearch"
	}
	if cfg.Instance.UserAgent == "" {
		cfg.Instance.UserAgent = "podsearch/1.0"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/podsearch/data/db/catalog.db"
	}
	if cfg.Storage.PodsDir == "" {
		cfg.Storage.PodsDir = "/usr/local/var/podsearch/data/pods"
	}
	if cfg.Languages.Dir == "" {
		cfg.Languages.Dir = "/usr/local/var/podsearch/data/languages"
	}
	if len(cfg.Languages.Installed) == 0 {
		cfg.Languages.Installed = []string{"en"}
	}
	if cfg.Languages.Default == "" {
		cfg.Languages.Default = cfg.Languages.Installed[0]
	}
	if cfg.Vectorizer.LogprobPower == 0 {
		cfg.Vectorizer.LogprobPower = 5
	}
	if cfg.Vectorizer.TopWords == 0 {
		cfg.Vectorizer.TopWords = 500
	}
	if cfg.Vectorizer.QueryCacheSize == 0 {
		cfg.Vectorizer.QueryCacheSize = 1000
	}
	if cfg.Search.MaxPods == 0 {
		cfg.Search.MaxPods = 3
	}
	if cfg.Search.ScoreFloor == 0 {
		cfg.Search.ScoreFloor = 1.0
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 50
	}
	if cfg.Search.LexicalBonus == 0 {
		cfg.Search.LexicalBonus = 10.0
	}
	if cfg.Search.ExpansionWeight == 0 {
		cfg.Search.ExpansionWeight = 0.5
	}
	if cfg.Search.PodWorkers == 0 {
		cfg.Search.PodWorkers = 4
	}
	if cfg.Search.SnippetWords == 0 {
		cfg.Search.SnippetWords = 50
	}
	if cfg.Federation.Timeout == 0 {
		cfg.Federation.Timeout = 3 * time.Second
	}
	if cfg.Federation.MaxPeers == 0 {
		cfg.Federation.MaxPeers = 2
	}
	if cfg.Federation.ExpansionLength == 0 {
		cfg.Federation.ExpansionLength = 10
	}
	if cfg.Federation.Workers == 0 {
		cfg.Federation.Workers = 4
	}
	if cfg.Federation.RefreshInterval == 0 {
		cfg.Federation.RefreshInterval = 10 * time.Minute
	}
	if cfg.Indexer.FetchTimeout == 0 {
		cfg.Indexer.FetchTimeout = 30 * time.Second
	}
	if cfg.Indexer.MaxBodyBytes == 0 {
		cfg.Indexer.MaxBodyBytes = 20 << 20
	}
	if cfg.Indexer.Workers == 0 {
		cfg.Indexer.Workers = 4
	}
	if cfg.Indexer.SnippetWords == 0 {
		cfg.Indexer.SnippetWords = cfg.Search.SnippetWords
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".html", ".htm", ".pdf"}
	}
	if cfg.Watch.Contributor == "" {
		cfg.Watch.Contributor = "local"
	}
	if cfg.Watch.DefaultTheme == "" {
		cfg.Watch.DefaultTheme = "inbox"
	}
}
