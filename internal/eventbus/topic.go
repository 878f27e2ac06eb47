// Package eventbus implements C4: topic naming, the internal default
// broker (Redis Streams) and the external per-application broker (the
// CloudEvents-HTTP sender/receiver in pkg/event), plus the Mongo-backed
// Event Archive that seeds Integration Streams.
package eventbus

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// CommandsTopic is the single shared topic every endpoint instance and
// command-router shard reads to deliver commands across instances.
const CommandsTopic = "iot-commands"

// dnsLabelMaxLen is the DNS-label length limit (§3: Application names
// are "DNS-label shaped, ≤63 chars"). The "events-<app>" fast path is
// only safe for names already constrained to this shape; anything else
// falls back to the hashed form.
const dnsLabelMaxLen = 63

// EventsTopic returns the topic an application's device events are
// published to: "events-<app>" when app is itself DNS-label-shaped and
// within dnsLabelMaxLen, or a stable "evt-<md5>-<sanitized>" fallback
// otherwise, so that every application still gets a topic even when its
// name doesn't meet that shape (§4.4).
func EventsTopic(app string) string {
	if isDNSLabel(app) {
		return "events-" + app
	}
	sum := md5.Sum([]byte(app))
	sanitized := sanitize(app)
	if len(sanitized) > 32 {
		sanitized = sanitized[:32]
	}
	return fmt.Sprintf("evt-%s-%s", hex.EncodeToString(sum[:])[:8], sanitized)
}

// isDNSLabel reports whether s matches DNS-label syntax: lowercase
// alphanumerics and hyphens, starting and ending with an alphanumeric,
// at most dnsLabelMaxLen characters.
func isDNSLabel(s string) bool {
	if len(s) == 0 || len(s) > dnsLabelMaxLen {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(s)-1:
		default:
			return false
		}
	}
	return true
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// PartitionKey returns the percent-encoded "<app>/<device>" key used to
// route every event for one device to the same ordered partition,
// regardless of which broker implementation carries it.
func PartitionKey(app, device string) string {
	return url.PathEscape(app) + "/" + url.PathEscape(device)
}
