// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// An AuthFunc supplies credentials for a realm. Returning an empty
// username and password means no credentials are available.
type AuthFunc func(realm string) (username, password string)

type challenge struct {
	scheme string
	params map[string]string
}

func (c challenge) realm() string {
	return c.params["realm"]
}

// parseChallenges parses WWW-Authenticate or Proxy-Authenticate values.
// Each header value may hold several challenges.
func parseChallenges(values []string) []challenge {
	var out []challenge
	for _, v := range values {
		out = append(out, parseChallengeList(v)...)
	}
	return out
}

func parseChallengeList(s string) []challenge {
	var out []challenge
	var cur *challenge
	for {
		s = strings.TrimLeft(s, " \t,")
		if s == "" {
			break
		}
		tok, rest := splitToken(s)
		if tok == "" {
			break
		}
		r := strings.TrimLeft(rest, " \t")
		if strings.HasPrefix(r, "=") && cur != nil {
			val, after := parseValue(strings.TrimLeft(r[1:], " \t"))
			cur.params[strings.ToLower(tok)] = val
			s = after
			continue
		}
		out = append(out, challenge{scheme: strings.ToLower(tok), params: map[string]string{}})
		cur = &out[len(out)-1]
		s = rest
	}
	return out
}

func splitToken(s string) (tok, rest string) {
	i := strings.IndexAny(s, " \t,=")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func parseValue(s string) (val, rest string) {
	if !strings.HasPrefix(s, `"`) {
		i := strings.IndexAny(s, " \t,")
		if i < 0 {
			return s, ""
		}
		return s[:i], s[i:]
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), s[i+1:]
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), ""
}

// pickChallenge prefers Digest over Basic. It returns false when no
// supported scheme is offered.
func pickChallenge(cs []challenge) (challenge, bool) {
	var basic *challenge
	for i := range cs {
		switch cs[i].scheme {
		case "digest":
			return cs[i], true
		case "basic":
			if basic == nil {
				basic = &cs[i]
			}
		}
	}
	if basic != nil {
		return *basic, true
	}
	return challenge{}, false
}

func basicAuthorization(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func digestAuthorization(c challenge, r *http.Request, username, password string) (string, error) {
	if alg := c.params["algorithm"]; alg != "" && !strings.EqualFold(alg, "MD5") {
		return "", fmt.Errorf("transport: unsupported digest algorithm %q", alg)
	}
	realm := c.realm()
	nonce := c.params["nonce"]
	uri := r.URL.RequestURI()
	ha1 := md5hex(username + ":" + realm + ":" + password)
	ha2 := md5hex(r.Method + ":" + uri)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, username, realm, nonce, uri)
	if hasQopAuth(c.params["qop"]) {
		cnonce, err := newCnonce()
		if err != nil {
			return "", err
		}
		const nc = "00000001"
		response := md5hex(ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":auth:" + ha2)
		fmt.Fprintf(&b, `, qop=auth, nc=%s, cnonce="%s", response="%s"`, nc, cnonce, response)
	} else {
		fmt.Fprintf(&b, `, response="%s"`, md5hex(ha1+":"+nonce+":"+ha2))
	}
	if opaque, ok := c.params["opaque"]; ok {
		fmt.Fprintf(&b, `, opaque="%s"`, opaque)
	}
	b.WriteString(", algorithm=MD5")
	return b.String(), nil
}

func hasQopAuth(qop string) bool {
	for _, q := range strings.Split(qop, ",") {
		if strings.TrimSpace(q) == "auth" {
			return true
		}
	}
	return false
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCnonce() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
