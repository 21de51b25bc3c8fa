package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/rich1707/Customer-Churn/agent/internal/config"
	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Certificate status values.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// expiringDays is the window in which a still-valid certificate is flagged.
const expiringDays = 30

const dialTimeout = 10 * time.Second

// Check dials the TLS endpoint of an http source and describes its leaf
// certificate.
//
// Returns nil for file sources and plain-HTTP endpoints; there is no
// certificate to inspect.
func Check(ctx context.Context, src config.Source) *types.CertStatus {
	if src.Type != "http" {
		return nil
	}
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &types.CertStatus{
		Endpoint: src.Endpoint,
		AuthType: src.Auth.Mode,
	}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}
	describe(cs, peers[0].NotAfter, peers[0].Issuer.CommonName, time.Now())
	return cs
}

// describe fills the expiry fields of cs relative to now.
func describe(cs *types.CertStatus, notAfter time.Time, issuer string, now time.Time) {
	daysLeft := notAfter.Sub(now).Hours() / 24

	cs.NotAfter = notAfter.UTC().Format(time.RFC3339)
	cs.Issuer = issuer
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = StatusExpired
	case daysLeft <= expiringDays:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
}
