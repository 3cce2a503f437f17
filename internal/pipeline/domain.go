package pipeline

import (
	"strings"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// freeMailProviders are consumer email domains that never identify an
// organization.
var freeMailProviders = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"aol.com":        {},
	"icloud.com":     {},
	"me.com":         {},
	"proton.me":      {},
	"protonmail.com": {},
	"gmx.com":        {},
	"mail.com":       {},
	"yandex.com":     {},
	"zoho.com":       {},
}

// DeriveDomain derives the organization web domain for a prospect: the
// explicit website field when present, otherwise the email address domain
// unless it belongs to a free-mail provider. Returns "" when nothing usable
// can be derived.
func DeriveDomain(p *model.Prospect) string {
	if site := strings.TrimSpace(p.Website); site != "" {
		site = strings.TrimPrefix(site, "https://")
		site = strings.TrimPrefix(site, "http://")
		if i := strings.IndexAny(site, "/?#"); i >= 0 {
			site = site[:i]
		}
		if d := model.DomainKey(site); d != "" {
			return d
		}
	}

	at := strings.LastIndex(p.Email, "@")
	if at < 0 || at == len(p.Email)-1 {
		return ""
	}
	domain := model.DomainKey(p.Email[at+1:])
	if _, free := freeMailProviders[domain]; free {
		return ""
	}
	return domain
}
