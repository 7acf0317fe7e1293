// Package reference encodes and decodes inline note references of the form
// [[note:<id>|<title>]] embedded in note content.
package reference

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// ConnectedLabel prefixes the first reference in read views.
	ConnectedLabel = "Connected Notes | "
	// Bullet prefixes every following reference in read views.
	Bullet = "• "
)

const tokenPattern = `\[\[note:([a-f0-9-]+)\|([^\]]*)\]\]`

var (
	tokenRe     = regexp.MustCompile(tokenPattern)
	exactRe     = regexp.MustCompile(`^` + tokenPattern + `$`)
	strippingRe = regexp.MustCompile(tokenPattern + `\n?`)
	idRe        = regexp.MustCompile(`^[a-f0-9-]+$`)
)

// Reference is the logical form of a token: the target note id and the title
// the target had when the reference was inserted.
type Reference struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Valid reports whether id and title can be encoded into a token that parses
// back to the same pair.
func Valid(id, title string) bool {
	return ValidID(id) && !strings.Contains(title, "]")
}

// ValidID reports whether id fits the token grammar.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}

// SanitizeTitle drops the characters a title snapshot cannot carry.
func SanitizeTitle(title string) string {
	return strings.ReplaceAll(title, "]", "")
}

// Encode returns the token for (id, title).
func Encode(id, title string) string {
	return fmt.Sprintf("[[note:%s|%s]]", id, title)
}

// Append adds a token for (id, title) at the end of content, on its own line
// when content is not empty.
func Append(content, id, title string) string {
	token := Encode(id, title)
	if content == "" {
		return token
	}
	return content + "\n" + token
}

// Parse decodes a single token. Input that does not match the grammar
// exactly yields ok == false.
func Parse(token string) (ref Reference, ok bool) {
	m := exactRe.FindStringSubmatch(token)
	if m == nil {
		return Reference{}, false
	}
	return Reference{ID: m[1], Title: m[2]}, true
}

// Remove deletes every token targeting id, together with the newline that
// follows it, and trims surrounding whitespace. Other text and tokens are
// left as they are.
func Remove(content, id string) string {
	re := regexp.MustCompile(`\[\[note:` + regexp.QuoteMeta(id) + `\|[^\]]*\]\]\n?`)
	return strings.TrimSpace(removeAll(re, content))
}

// removeAll deletes matches until none are left. Deleting one token can join
// the text around it into a new one, e.g. "[[note:a" + token + "|b]]".
func removeAll(re *regexp.Regexp, s string) string {
	for {
		next := re.ReplaceAllString(s, "")
		if next == s {
			return s
		}
		s = next
	}
}

// Extract returns every well-formed reference in content, in order of
// appearance. Duplicates are kept.
func Extract(content string) []Reference {
	matches := tokenRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Reference, 0, len(matches))
	for _, m := range matches {
		out = append(out, Reference{ID: m[1], Title: m[2]})
	}
	return out
}

// ExtractIDs returns the target id of every token in content, in order of
// appearance. Duplicates are kept.
func ExtractIDs(content string) []string {
	refs := Extract(content)
	if refs == nil {
		return nil
	}
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

// Strip removes all tokens from content so editing surfaces never show the
// raw syntax.
func Strip(content string) string {
	return strings.TrimSpace(removeAll(strippingRe, content))
}

// TitleFunc resolves the current title of a referenced note. ok is false
// when the note is unknown.
type TitleFunc func(id string) (title string, ok bool)

// RenderConnected rewrites tokens for read views. The first token becomes
// "Connected Notes | <title>", later ones a bulleted title. When titles is
// non-nil it is consulted first and the stored snapshot is the fallback.
func RenderConnected(content string, titles TitleFunc) string {
	n := 0
	return tokenRe.ReplaceAllStringFunc(content, func(tok string) string {
		ref, _ := Parse(tok)
		title := ref.Title
		if titles != nil {
			if live, ok := titles(ref.ID); ok {
				title = live
			}
		}
		n++
		if n == 1 {
			return ConnectedLabel + title
		}
		return Bullet + title
	})
}
