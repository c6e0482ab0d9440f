package api

import "github.com/cacheforge/semcache/cacheentry"

// checkRequest is the POST /v1/cache/check body.
type checkRequest struct {
	Prompt string           `json:"prompt"`
	UserID string           `json:"user_id,omitempty"`
	Scope  cacheentry.Scope `json:"scope,omitempty"`
}

type checkResponse struct {
	Hit      bool   `json:"hit"`
	Response string `json:"response,omitempty"`
}

// storeRequest is the POST /v1/cache/store body.
type storeRequest struct {
	Prompt   string            `json:"prompt"`
	Response string            `json:"response"`
	UserID   string            `json:"user_id,omitempty"`
	Scope    cacheentry.Scope  `json:"scope,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// batchCheckRequest is the POST /v1/cache/batch-check body.
type batchCheckRequest struct {
	Requests []batchCheckItem `json:"requests"`
	// Concurrency bounds the L2 fan-out; <= 0 means one worker per miss.
	Concurrency int `json:"concurrency,omitempty"`
}

type batchCheckItem struct {
	Prompt string           `json:"prompt"`
	UserID string           `json:"user_id,omitempty"`
	Scope  cacheentry.Scope `json:"scope,omitempty"`
}

type batchCheckResultDTO struct {
	Hit      bool   `json:"hit"`
	Response string `json:"response,omitempty"`
}

// invalidateTagsRequest is the POST /v1/cache/invalidate-tags body.
type invalidateTagsRequest struct {
	Tags     []string `json:"tags"`
	MatchAll bool     `json:"match_all,omitempty"`
}

type invalidateResponse struct {
	Invalidated bool `json:"invalidated"`
	Count       int  `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}
