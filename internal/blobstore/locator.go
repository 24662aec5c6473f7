// Package blobstore resolves blob-created notifications into canonical
// storage paths and issues short-lived read credentials for stored objects.
package blobstore

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Object is the canonical location of one stored file.
//
// Path is the container-prefixed storage path persisted on document rows
// ("email-attachments/<folder>/<file>"); Container and Name split the same
// location for credential issuance.
type Object struct {
	Path      string
	Container string
	Name      string
	Filename  string
}

// Notification is the payload of a blob-created trigger event. Either URL
// (as delivered by the event infrastructure) or Path may be set; URL wins.
type Notification struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"storagePath,omitempty"`
}

// Resolve parses a notification into a canonical object location. It is
// pure parsing: no I/O, no existence check.
func Resolve(n Notification) (Object, error) {
	raw := n.Path
	if n.URL != "" {
		u, err := url.Parse(n.URL)
		if err != nil {
			return Object{}, fmt.Errorf("parse notification url: %w", err)
		}
		raw = strings.TrimPrefix(u.Path, "/")
	}
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return Object{}, fmt.Errorf("notification carries no storage path")
	}

	container, name, ok := strings.Cut(raw, "/")
	if !ok || name == "" {
		return Object{}, fmt.Errorf("storage path %q has no object segment", raw)
	}

	return Object{
		Path:      raw,
		Container: container,
		Name:      name,
		Filename:  path.Base(name),
	}, nil
}
