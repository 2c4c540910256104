package driver

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// telemetryHosts are analytics endpoints dashboards commonly pull in. They
// only add network noise to a session that waits on DOM stability.
var telemetryHosts = map[string]struct{}{
	"google-analytics.com": {},
	"googletagmanager.com": {},
	"hotjar.com":           {},
	"mixpanel.com":         {},
	"segment.io":           {},
	"segment.com":          {},
	"sentry.io":            {},
	"intercom.io":          {},
	"fullstory.com":        {},
	"clarity.ms":           {},
}

// isTelemetryHost checks if a hostname (or any parent domain) is blocklisted.
func isTelemetryHost(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := telemetryHosts[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// setupHijack installs a request interceptor that fails blocked resource
// types and telemetry hosts. Returns the running router so Close can stop it.
func setupHijack(page *rod.Page, blockedTypes []string) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if isTelemetryHost(hostOf(ctx.Request.URL().String())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks; it exits when router.Stop() is called.
	go router.Run()

	return router
}
