// Package proxy finds a usable free proxy for the browser to route
// through. Free proxy lists are unreliable, so candidates are scored,
// checked against a live endpoint, and the best scorer kept as a
// fallback when nothing passes.
package proxy

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Candidate is one row of the public proxy list.
type Candidate struct {
	IP        string
	Port      string
	Country   string
	Anonymity string
	HTTPS     bool
}

// URL renders the candidate as a proxy URL.
func (c Candidate) URL() string {
	scheme := "http"
	if c.HTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%s", scheme, c.IP, c.Port)
}

// Score ranks candidates: HTTPS support beats plain HTTP, elite
// anonymity beats anonymous beats transparent.
func (c Candidate) Score() int {
	score := 0
	if c.HTTPS {
		score += 10
	}
	anonymity := strings.ToLower(c.Anonymity)
	switch {
	case strings.Contains(anonymity, "elite"):
		score += 5
	case strings.Contains(anonymity, "anonymous"):
		score += 2
	}
	return score
}

// ParseList extracts proxy candidates from the proxy-list HTML table.
// Rows without an IP and port are skipped.
func ParseList(r io.Reader, max int) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "proxy: parse list page")
	}

	table := doc.Find("table#proxylisttable")
	if table.Length() == 0 {
		table = doc.Find("table.table")
	}
	if table.Length() == 0 {
		table = doc.Find("table")
	}
	if table.Length() == 0 {
		return nil, eris.New("proxy: no table in list page")
	}

	var candidates []Candidate
	table.First().Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if max > 0 && len(candidates) >= max {
			return false
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return true
		}
		cell := func(i int) string { return strings.TrimSpace(cells.Eq(i).Text()) }

		ip, port := cell(0), cell(1)
		if ip == "" || port == "" {
			return true
		}
		candidates = append(candidates, Candidate{
			IP:        ip,
			Port:      port,
			Country:   cell(3),
			Anonymity: cell(4),
			HTTPS:     strings.EqualFold(cell(6), "yes"),
		})
		return true
	})

	return candidates, nil
}

// rank orders candidates best-first, preserving list order within equal
// scores.
func rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score() > ranked[j].Score()
	})
	return ranked
}
