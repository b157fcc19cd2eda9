package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/sereniyou/payments/internal/platform/identity"
	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/response"
)

// AdminAuthMiddleware admits requests bearing the service role key. With no
// key configured every admin request is refused.
func AdminAuthMiddleware(serviceRoleKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := identity.BearerToken(c.GetHeader("Authorization"))
		if err != nil || serviceRoleKey == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(serviceRoleKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}
		c.Next()
	}
}

// CallbackGuardMiddleware enforces the optional shared token (?token=) and
// client IP allowlist on the provider callback. Entries in allowedIPs are
// addresses or CIDR prefixes. With both unset every request passes.
func CallbackGuardMiddleware(token string, allowedIPs []string) (gin.HandlerFunc, error) {
	prefixes := make([]netip.Prefix, 0, len(allowedIPs))
	for _, entry := range allowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid callback allowlist entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid callback allowlist entry %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return func(c *gin.Context) {
		log := logctx.FromGin(c, nil)
		if token != "" && subtle.ConstantTimeCompare([]byte(c.Query("token")), []byte(token)) != 1 {
			if log != nil {
				log.Warnw("mpesa_callback_rejected", "reason", "token", "client_ip", c.ClientIP())
			}
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		if len(prefixes) > 0 {
			ip, err := netip.ParseAddr(c.ClientIP())
			if err != nil || !lo.ContainsBy(prefixes, func(p netip.Prefix) bool { return p.Contains(ip.Unmap()) }) {
				if log != nil {
					log.Warnw("mpesa_callback_rejected", "reason", "ip", "client_ip", c.ClientIP())
				}
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}
		c.Next()
	}, nil
}
