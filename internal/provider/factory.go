package provider

import (
	"fmt"

	"github.com/FranksOps/kwscout/internal/serp"
)

// Options carries the per-backend settings the factory may need. Only the
// section for the selected provider is read.
type Options struct {
	SerpAPI    serp.SerpAPIConfig
	DataForSEO serp.DataForSEOConfig
	Yahoo      serp.YahooConfig
	Adapter    Config
}

// New builds the provider registered under id ("serpapi" or "A",
// "dataforseo" or "B", "yahoo").
func New(id string, opts Options) (*Adapter, error) {
	src, err := serp.ParseSource(id)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}

	var b serp.Backend
	switch src {
	case serp.SourceSerpAPI:
		b, err = serp.NewSerpAPI(opts.SerpAPI)
	case serp.SourceDataForSEO:
		b, err = serp.NewDataForSEO(opts.DataForSEO)
	case serp.SourceYahoo:
		if opts.Yahoo.Logger == nil {
			opts.Yahoo.Logger = opts.Adapter.Logger
		}
		b, err = serp.NewYahoo(opts.Yahoo)
	}
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	return NewAdapter(b, opts.Adapter), nil
}
