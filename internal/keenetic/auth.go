package keenetic

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// authenticate runs the NDM challenge handshake and stores the session
// cookie in the client's jar.
//
// GET /auth answers 401 with X-NDM-Challenge and X-NDM-Realm headers. The
// password sent back is sha256(challenge + md5("login:realm:password")).
func (c *Client) authenticate(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	resp, err := c.send(ctx, http.MethodGet, "/auth", nil)
	if err != nil {
		return unavailable("auth probe", err)
	}
	drain(resp)

	// Another goroutine may have re-authenticated while we waited for
	// the lock; the probe succeeding means the session is valid again.
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return unavailable("auth probe", fmt.Errorf("unexpected status %s", resp.Status))
	}

	challenge := resp.Header.Get("X-NDM-Challenge")
	realm := resp.Header.Get("X-NDM-Realm")
	if challenge == "" || realm == "" {
		return unavailable("auth probe", fmt.Errorf("missing NDM challenge headers"))
	}

	resp, err = c.send(ctx, http.MethodPost, "/auth", map[string]string{
		"login":    c.login,
		"password": ndmPassword(c.login, realm, c.password, challenge),
	})
	if err != nil {
		return unavailable("auth", err)
	}
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		return unavailable("auth", fmt.Errorf("login rejected with status %s", resp.Status))
	}

	c.log.Debug("router session established")
	return nil
}

func ndmPassword(login, realm, password, challenge string) string {
	sum := md5.Sum([]byte(login + ":" + realm + ":" + password))
	hash := sha256.Sum256([]byte(challenge + hex.EncodeToString(sum[:])))
	return hex.EncodeToString(hash[:])
}
