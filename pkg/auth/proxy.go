/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package auth

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

// ParseCIDRs parses a comma-separated CIDR whitelist. Empty string means no
// restriction. Bare addresses are accepted as /32 (or /128) networks.
func ParseCIDRs(s string) ([]*net.IPNet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var out []*net.IPNet

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if !strings.Contains(part, "/") {
			if ip := net.ParseIP(part); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}

				part = part + "/" + strconv.Itoa(bits)
			}
		}

		_, network, err := net.ParseCIDR(part)
		if err != nil {
			return nil, err
		}

		out = append(out, network)
	}

	return out, nil
}

// IPAllowed reports whether ip is inside at least one listed network. An
// empty list allows everything.
func IPAllowed(ip string, cidrs []*net.IPNet) bool {
	if len(cidrs) == 0 {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, network := range cidrs {
		if network.Contains(parsed) {
			return true
		}
	}

	return false
}

// isPrivateIP reports whether ip is loopback, link-local or RFC1918/ULA.
func isPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast()
}

// hasPublicCIDR reports whether any allowed network is a public range.
// A whitelist containing public IPs implies the bridge sits behind a
// reverse proxy whose peers are private.
func hasPublicCIDR(cidrs []*net.IPNet) bool {
	for _, network := range cidrs {
		ip := network.IP

		if !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()) {
			return true
		}
	}

	return false
}

// peerIP extracts the direct peer address from the request.
func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// SourceIP resolves the request's source IP under the configured
// trust-proxy mode. X-Forwarded-For is forgeable when the bridge is
// directly reachable, so auto trusts it only when the direct peer is
// private AND the whitelist names a public network.
func SourceIP(r *http.Request, mode models.TrustProxyMode, cidrs []*net.IPNet) string {
	direct := peerIP(r)

	trust := false

	switch mode {
	case models.TrustProxyAlways:
		trust = true
	case models.TrustProxyNever:
		trust = false
	default: // auto
		trust = direct != "" && isPrivateIP(direct) && hasPublicCIDR(cidrs)
	}

	if trust {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
			if first != "" {
				return first
			}
		}
	}

	return direct
}
