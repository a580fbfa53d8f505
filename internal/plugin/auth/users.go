package auth

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// userRecord is one row of a host's local credential file: itself an HTML
// microdata document, in keeping with the rest of the server's
// self-hosting configuration story. A record looks like:
//
//	<div itemscope itemtype="UserRecord">
//	  <span itemprop="username">alice</span>
//	  <span itemprop="passwordHash">$2a$10$...</span>
//	  <span itemprop="totpSecret">JBSWY3DPEHPK3PXP</span>
//	  <span itemprop="role">editor</span>
//	  <span itemprop="role">admin</span>
//	</div>
type userRecord struct {
	username     string
	passwordHash string
	totpSecret   string
	roles        []string
}

// usersFile is the conventional location of a host's local credential
// store, resolved relative to the host's document root.
const usersFile = "_rangeweave/users.html"

// loadUsers parses a host's local credential file. A missing file is not
// an error: hosts that only use OIDC never need one.
func loadUsers(root string) ([]userRecord, error) {
	path := filepath.Join(root, usersFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}

	var users []userRecord
	doc.Find(`[itemtype="UserRecord"]`).Each(func(_ int, s *goquery.Selection) {
		u := userRecord{
			username:     strings.TrimSpace(s.Find(`[itemprop="username"]`).First().Text()),
			passwordHash: strings.TrimSpace(s.Find(`[itemprop="passwordHash"]`).First().Text()),
			totpSecret:   strings.TrimSpace(s.Find(`[itemprop="totpSecret"]`).First().Text()),
		}
		s.Find(`[itemprop="role"]`).Each(func(_ int, r *goquery.Selection) {
			if role := strings.TrimSpace(r.Text()); role != "" {
				u.roles = append(u.roles, role)
			}
		})
		users = append(users, u)
	})
	return users, nil
}

func findUser(users []userRecord, username string) (userRecord, bool) {
	for _, u := range users {
		if u.username == username {
			return u, true
		}
	}
	return userRecord{}, false
}
