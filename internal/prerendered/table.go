// Package prerendered maps every URL form of a prerendered page to the one
// file that holds it.
package prerendered

import (
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Table maps candidate request paths to prerendered file paths. Lookups are
// exact string matches.
type Table map[string]string

// Lookup returns the file for a request path.
func (t Table) Lookup(requestPath string) (string, bool) {
	file, ok := t[requestPath]
	return file, ok
}

// Collision records a key generated by two different files. The later file
// wins, which makes routing for that key depend on the input order.
type Collision struct {
	Key      string `json:"key"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// Candidates returns every request path that should resolve to file.
//
// For "about.html": about.html, /about.html, about, /about, about/index,
// /about/index, about/index.html, /about/index.html. A nested index page
// such as "blog/index.html" also answers "blog", "/blog" and "/blog/"; the
// site root "index.html" answers "/" and "".
func Candidates(file string) []string {
	noExt := strings.TrimSuffix(file, ".html")

	candidates := []string{
		file,
		"/" + file,
		noExt,
		"/" + noExt,
	}

	if strings.HasSuffix(file, ".html") {
		candidates = append(candidates,
			collapseIndex(file),
			noExt+"/index",
			"/"+noExt+"/index",
			noExt+"/index.html",
			"/"+noExt+"/index.html",
		)
	}

	// "blog/index.html" also answers "/blog" and "/blog/"
	if dir := collapseIndex(file); dir != file {
		candidates = append(candidates, "/"+dir, "/"+dir+"/")
	}

	if file == "index.html" {
		candidates = append(candidates, "/", "")
	}

	return candidates
}

// collapseIndex turns "a/index.html" into "a".
func collapseIndex(file string) string {
	if strings.HasSuffix(file, "/index.html") {
		return strings.TrimSuffix(file, "/index.html")
	}
	return file
}

// BuildTable generates the lookup table for a set of prerendered files,
// relative to the prerendered directory. Targets are joined onto prefix.
// Keys claimed by more than one file are returned and logged.
func BuildTable(files []string, prefix string) (Table, []Collision) {
	table := make(Table)
	var collisions []Collision

	for _, file := range files {
		target := file
		if prefix != "" {
			target = path.Join(prefix, file)
		}

		for _, key := range Candidates(file) {
			if previous, ok := table[key]; ok && previous != target {
				collisions = append(collisions, Collision{
					Key:      key,
					Previous: previous,
					Current:  target,
				})
			}
			table[key] = target
		}
	}

	for _, c := range collisions {
		logrus.WithFields(logrus.Fields{
			"key":      c.Key,
			"previous": c.Previous,
			"current":  c.Current,
		}).Warn("Ambiguous prerendered route, last file wins")
	}

	return table, collisions
}

// Keys returns the table keys in sorted order.
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Redirect implements trailing-slash normalisation for prerendered pages: if
// requestPath is not a page but the same path with its trailing slash added
// or removed is, that path is returned.
func (t Table) Redirect(requestPath string) (string, bool) {
	if requestPath == "" {
		return "", false
	}
	if _, ok := t[requestPath]; ok {
		return "", false
	}

	var location string
	if strings.HasSuffix(requestPath, "/") {
		location = strings.TrimSuffix(requestPath, "/")
	} else {
		location = requestPath + "/"
	}

	if location == "" {
		return "", false
	}
	if _, ok := t[location]; ok {
		return location, true
	}
	return "", false
}
