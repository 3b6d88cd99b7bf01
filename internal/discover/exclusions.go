package discover

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Exclusions is a set of blocked domains. A blocked domain also blocks all
// of its subdomains: blocking example.com blocks news.example.com.
type Exclusions struct {
	domains map[string]struct{}
}

// NewExclusions builds an exclusion set from any number of domain lists
// (config, rules file, store blocklist).
func NewExclusions(lists ...[]string) *Exclusions {
	e := &Exclusions{domains: make(map[string]struct{})}
	for _, list := range lists {
		e.Add(list...)
	}
	return e
}

// Add inserts domains into the set. Entries are lowercased and stripped of
// a leading www. so they match normalized hosts.
func (e *Exclusions) Add(domains ...string) {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "www.")
		if d == "" {
			continue
		}
		e.domains[d] = struct{}{}
	}
}

// Blocked reports whether host matches a blocked domain exactly or as a
// subdomain.
func (e *Exclusions) Blocked(host string) bool {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")

	for blocked := range e.domains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

// Len returns the number of blocked domains.
func (e *Exclusions) Len() int { return len(e.domains) }

// exclusionsFile is the YAML rules file shape.
type exclusionsFile struct {
	Domains []string `yaml:"domains"`
}

// LoadExclusionsFile reads a YAML rules file of the form:
//
//	domains:
//	  - pinterest.com
//	  - facebook.com
func LoadExclusionsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "discover: read exclusions file")
	}

	var f exclusionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "discover: parse exclusions file")
	}
	return f.Domains, nil
}
