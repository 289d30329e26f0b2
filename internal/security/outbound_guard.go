// Package security はSteam Web APIへの外向き通信の制限を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// maxRedirects は同一ホスト内で追従するリダイレクトの上限。
const maxRedirects = 5

// OutboundGuard はSteamクライアントの通信先を1つのベースURLに固定する。
// 接続先IPの検証はsafeurlがDNS解決後に行う。
type OutboundGuard struct {
	scheme string
	host   string
	port   int
}

// NewOutboundGuard はベースURLを検証し、その通信先に限定したOutboundGuardを返す。
//
// 拒否するもの:
//   - http/https以外のスキーム
//   - 認証情報・クエリ・フラグメントを含むURL（APIキーのクエリと混ざるため）
//   - localhostと、ループバック・プライベート・リンクローカル・未指定アドレスのIPリテラル
func NewOutboundGuard(rawBaseURL string) (*OutboundGuard, error) {
	if rawBaseURL == "" {
		return nil, errors.New("empty base URL")
	}

	u, err := url.Parse(rawBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	g := &OutboundGuard{scheme: strings.ToLower(u.Scheme)}
	switch g.scheme {
	case "https":
		g.port = 443
	case "http":
		g.port = 80
	default:
		return nil, fmt.Errorf("disallowed scheme %q: only http and https are allowed", u.Scheme)
	}

	if u.User != nil {
		return nil, errors.New("credentials are not allowed in base URL")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, errors.New("query and fragment are not allowed in base URL")
	}

	g.host = strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if g.host == "" {
		return nil, fmt.Errorf("empty host in base URL: %s", rawBaseURL)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port in base URL: %s", p)
		}
		g.port = port
	}

	if addr, err := netip.ParseAddr(g.host); err == nil {
		if isInternalAddr(addr) {
			return nil, fmt.Errorf("blocked IP address: %s", addr)
		}
		return g, nil
	}
	if g.host == "localhost" || strings.HasSuffix(g.host, ".localhost") {
		return nil, fmt.Errorf("blocked host: %s", g.host)
	}

	return g, nil
}

// Client は固定した通信先にのみ接続するHTTPクライアントを返す。
// 接続先ポートはベースURLのポートのみ許可し、別ホストへのリダイレクトは拒否する。
func (g *OutboundGuard) Client(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.scheme).
		SetAllowedPorts(g.port).
		SetCheckRedirect(g.checkRedirect).
		Build()

	return safeurl.Client(config).Client
}

// checkRedirect は同一ホスト・同一スキーム以外へのリダイレクトを拒否する。
func (g *OutboundGuard) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	host := strings.ToLower(strings.TrimSuffix(req.URL.Hostname(), "."))
	if host != g.host || !strings.EqualFold(req.URL.Scheme, g.scheme) {
		return fmt.Errorf("redirect to %s://%s is not allowed", req.URL.Scheme, req.URL.Host)
	}
	return nil
}

// isInternalAddr は外向き通信の宛先にしてはならないアドレスかどうかを返す。
// 169.254.169.254等のクラウドメタデータIPはリンクローカルに含まれる。
func isInternalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		(addr.Is4() && addr.As4()[0] == 0)
}
