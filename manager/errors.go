package manager

import "errors"

var (
	errEmptyPrompt     = errors.New("prompt must not be empty")
	errTaggingDisabled = errors.New("tagging is disabled (max_tags_per_entry is 0)")
	errTooManyTags     = errors.New("entry exceeds max_tags_per_entry")
)
