package gemini

import "github.com/blueberrycongee/llmbatch/pkg/provider"

type Option func(*Adapter)

func WithAPIKey(key string) Option { return func(a *Adapter) { a.apiKey = key } }
func WithBaseURL(url string) Option {
	return func(a *Adapter) {
		if url != "" {
			a.baseURL = url
		}
	}
}
func WithAPIVersion(v string) Option {
	return func(a *Adapter) {
		if v != "" {
			a.apiVersion = v
		}
	}
}
func WithTokenSource(ts provider.TokenSource) Option {
	return func(a *Adapter) { a.tokenSource = ts }
}
func WithHeader(k, v string) Option { return func(a *Adapter) { a.headers[k] = v } }
