package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/tagscan/internal/export"
	"github.com/srg/tagscan/internal/session"
	"github.com/srg/tagscan/internal/source"
	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/tag"
)

// Command-level errors
var (
	// ErrNoTriggerLimit indicates scan was asked to run forever without --watch.
	ErrNoTriggerLimit = errors.New("scan needs --triggers, --duration or --watch")
)

// FormatUserError turns an error chain into a one-line message for the terminal.
// Known sentinels get a hint; anything else is printed as is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var hint string
	switch {
	case errors.Is(err, tag.ErrInvalidArgument):
		hint = "check the EPC and flag values"
	case errors.Is(err, source.ErrNotConnected):
		hint = "the reader is not connected; run 'tagscan devices' to list paired readers"
	case errors.Is(err, source.ErrUnknownDevice):
		hint = "run 'tagscan devices' to list paired readers"
	case errors.Is(err, storage.ErrUnknownDriver):
		hint = fmt.Sprintf("use --store with one of %v", storage.Drivers)
	case errors.Is(err, session.ErrPersist):
		hint = "tags were recorded in memory but not saved; check the storage backend"
	case errors.Is(err, export.ErrNoBucket):
		hint = "set export.bucket in the config file"
	}

	msg := strings.TrimSpace(err.Error())
	if hint == "" {
		return msg
	}
	return fmt.Sprintf("%s (%s)", msg, hint)
}
