package openailike

import "github.com/blueberrycongee/llmbatch/pkg/provider"

// Option configures the adapter.
type Option func(*Adapter)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(a *Adapter) {
		a.apiKey = key
	}
}

// WithBaseURL sets the base URL.
func WithBaseURL(url string) Option {
	return func(a *Adapter) {
		if url != "" {
			a.baseURL = url
		}
	}
}

// WithTokenSource sets a dynamic token source used instead of the API key.
func WithTokenSource(ts provider.TokenSource) Option {
	return func(a *Adapter) {
		a.tokenSource = ts
	}
}

// WithHeader adds a custom header.
func WithHeader(key, value string) Option {
	return func(a *Adapter) {
		a.headers[key] = value
	}
}

// WithEstimator overrides the token estimator.
func WithEstimator(fn EstimatorFunc) Option {
	return func(a *Adapter) {
		if fn != nil {
			a.estimate = fn
		}
	}
}
