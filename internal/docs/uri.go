package docs

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the URI scheme of provider documents.
const Scheme = "content"

// ErrInvalidURI is returned for URIs that are not provider URIs.
var ErrInvalidURI = errors.New("invalid document URI")

// URI addresses a document or a document tree:
//
//	content://<authority>/tree/<treeId>
//	content://<authority>/tree/<treeId>/document/<docId>
//	content://<authority>/document/<docId>
//
// Identifiers are path-escaped, so "primary:apks/a.apk" appears as
// "primary:apks%2Fa.apk".
type URI string

func (u URI) String() string { return string(u) }

// segments returns the authority and the unescaped path segments.
func (u URI) segments() (string, []string, error) {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidURI, u, err)
	}
	if parsed.Scheme != Scheme || parsed.Host == "" {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidURI, u)
	}

	raw := strings.Split(strings.Trim(parsed.EscapedPath(), "/"), "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		v, err := url.PathUnescape(s)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidURI, u, err)
		}
		segs = append(segs, v)
	}
	return parsed.Host, segs, nil
}

// Authority returns the provider authority, or "" for malformed URIs.
func (u URI) Authority() string {
	a, _, err := u.segments()
	if err != nil {
		return ""
	}
	return a
}

// ParseURI validates s as a tree or document URI.
func ParseURI(s string) (URI, error) {
	u := URI(s)
	if !IsTreeURI(u) && !IsDocumentURI(u) {
		return "", fmt.Errorf("%w: %s", ErrInvalidURI, s)
	}
	return u, nil
}

// IsTreeURI reports whether u is rooted in a tree, with or without a
// document part.
func IsTreeURI(u URI) bool {
	_, segs, err := u.segments()
	return err == nil && (len(segs) == 2 || len(segs) == 4) && segs[0] == "tree" &&
		(len(segs) == 2 || segs[2] == "document")
}

// IsDocumentURI reports whether u names a single document.
func IsDocumentURI(u URI) bool {
	_, segs, err := u.segments()
	if err != nil {
		return false
	}
	switch {
	case len(segs) == 2 && segs[0] == "document":
		return true
	case len(segs) == 4 && segs[0] == "tree" && segs[2] == "document":
		return true
	}
	return false
}

// DocumentID returns the document identifier of a document URI.
func DocumentID(u URI) (string, error) {
	_, segs, err := u.segments()
	if err != nil {
		return "", err
	}
	switch {
	case len(segs) == 2 && segs[0] == "document":
		return segs[1], nil
	case len(segs) == 4 && segs[0] == "tree" && segs[2] == "document":
		return segs[3], nil
	}
	return "", fmt.Errorf("%w: not a document: %s", ErrInvalidURI, u)
}

// TreeDocumentID returns the identifier of the tree root of u.
func TreeDocumentID(u URI) (string, error) {
	_, segs, err := u.segments()
	if err != nil {
		return "", err
	}
	if len(segs) >= 2 && segs[0] == "tree" {
		return segs[1], nil
	}
	return "", fmt.Errorf("%w: not a tree: %s", ErrInvalidURI, u)
}

// Key identifies the document u points at independently of the tree it was
// reached through: "<authority>/<documentId>". A plain tree URI names its
// root document. Malformed URIs are their own key.
func Key(u URI) string {
	c, err := Canonical(u)
	if err != nil {
		return u.String()
	}
	id, err := DocumentID(c)
	if err != nil {
		return u.String()
	}
	return c.Authority() + "/" + id
}

// BuildTreeURI builds the URI of a tree rooted at treeID.
func BuildTreeURI(authority, treeID string) URI {
	return URI(fmt.Sprintf("%s://%s/tree/%s", Scheme, authority, url.PathEscape(treeID)))
}

// BuildDocumentURI builds a single-document URI.
func BuildDocumentURI(authority, docID string) URI {
	return URI(fmt.Sprintf("%s://%s/document/%s", Scheme, authority, url.PathEscape(docID)))
}

// BuildDocumentURIUsingTree builds the URI of docID inside the tree of u.
func BuildDocumentURIUsingTree(tree URI, docID string) (URI, error) {
	authority, _, err := tree.segments()
	if err != nil {
		return "", err
	}
	treeID, err := TreeDocumentID(tree)
	if err != nil {
		return "", err
	}
	return URI(fmt.Sprintf("%s://%s/tree/%s/document/%s", Scheme, authority,
		url.PathEscape(treeID), url.PathEscape(docID))), nil
}

// Canonical returns the URI naming the document that u points at. A plain
// tree URI resolves to its root document. Single-document URIs are
// returned unchanged.
func Canonical(u URI) (URI, error) {
	if IsDocumentURI(u) {
		if IsTreeURI(u) {
			id, err := DocumentID(u)
			if err != nil {
				return "", err
			}
			return BuildDocumentURIUsingTree(u, id)
		}
		return u, nil
	}
	id, err := TreeDocumentID(u)
	if err != nil {
		return "", err
	}
	return BuildDocumentURIUsingTree(u, id)
}
