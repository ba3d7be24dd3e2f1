package registry

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/registry-scraper/internal/model"
	"github.com/sells-group/registry-scraper/internal/resilience"
)

// FetchDetails retrieves the registered-agent fields from a business
// detail page. Missing fields come back empty; only a missing business
// or an expired session is an error.
func (c *httpClient) FetchDetails(ctx context.Context, session model.Session, registrationID string) (model.AgentDetails, error) {
	if registrationID == "" {
		return model.AgentDetails{}, eris.New("registry: empty registration id")
	}

	reqURL := c.baseURL + "/business/" + url.PathEscape(registrationID)
	body, status, err := c.get(ctx, reqURL, map[string]string{
		headerSessionToken: session.Token,
	})
	if err != nil {
		return model.AgentDetails{}, err
	}

	switch {
	case status == http.StatusNotFound:
		return model.AgentDetails{}, ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.AgentDetails{}, ErrSessionExpired
	case resilience.IsTransientHTTPStatus(status):
		return model.AgentDetails{}, resilience.NewTransientError(
			eris.Errorf("registry: details %s: status %d", registrationID, status), status)
	case status != http.StatusOK:
		return model.AgentDetails{}, eris.Errorf("registry: details %s: unexpected status %d", registrationID, status)
	}

	return parseDetailPage(body)
}

// parseDetailPage walks the card-based detail layout: each .card has a
// .small.muted label; the Registered Agent card holds the name in the
// first non-muted div after the label, the address in a muted div, and
// the email in a line starting with "Email:".
func parseDetailPage(body []byte) (model.AgentDetails, error) {
	content := string(body)
	if strings.Contains(content, "Not Found") || strings.Contains(content, "No business found") {
		return model.AgentDetails{}, ErrNotFound
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.AgentDetails{}, eris.Wrap(err, "registry: parse detail page")
	}

	var details model.AgentDetails
	doc.Find(".card").Each(func(_ int, card *goquery.Selection) {
		label := strings.TrimSpace(card.Find(".small.muted").First().Text())
		if label != "Registered Agent" {
			return
		}

		card.Find("div").Each(func(_ int, div *goquery.Selection) {
			text := strings.TrimSpace(div.Text())
			if text == "" || text == "Registered Agent" {
				return
			}

			switch {
			case strings.HasPrefix(text, "Email:"):
				if code := strings.TrimSpace(div.Find("code").Text()); code != "" {
					details.Email = code
				} else {
					details.Email = strings.TrimSpace(strings.TrimPrefix(text, "Email:"))
				}
			case div.HasClass("muted"):
				if details.Address == "" && !strings.Contains(text, "Email:") {
					details.Address = text
				}
			default:
				if details.Name == "" && !strings.Contains(text, "Email:") {
					details.Name = firstLine(text)
				}
			}
		})
	})

	return details, nil
}

// firstLine trims a div's text to its own line; goquery's Text()
// concatenates nested divs, so the agent card's wrapper div would
// otherwise swallow the address and email lines too.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
