package model

import "strings"

// ServiceKind classifies a service once, at the boundary, so later decisions never
// substring-match raw service names.
type ServiceKind string

const (
	KindAPI             ServiceKind = "api"
	KindAlerts          ServiceKind = "alerts"
	KindAdminAPI        ServiceKind = "adminapi"
	KindWeb             ServiceKind = "web"
	KindLightserver     ServiceKind = "lightserver"
	KindCrawler         ServiceKind = "crawler"
	KindCrawlerRealtime ServiceKind = "crawler-realtime"
	KindRepeater        ServiceKind = "repeater"
	KindOther           ServiceKind = "other"
)

var exactKinds = map[string]ServiceKind{
	"api":         KindAPI,
	"alerts":      KindAlerts,
	"adminapi":    KindAdminAPI,
	"web":         KindWeb,
	"lightserver": KindLightserver,
	"crawler":     KindCrawler,
	"repeater":    KindRepeater,
}

// Workload is the resolved classification of a cluster/service pair.
type Workload struct {
	Kind ServiceKind
	// Stateful workers hold in-process state and must drain before a new revision starts.
	Stateful bool
}

// ClassifyService maps a service name to its kind. Market-session variants such as
// lightserver_pre_market and crawler-realtime-pre-regular-post-market belong to their
// family; everything unknown is KindOther.
func ClassifyService(service string) ServiceKind {
	if kind, ok := exactKinds[service]; ok {
		return kind
	}
	switch {
	case strings.HasPrefix(service, "lightserver_"):
		return KindLightserver
	case service == "crawler-realtime", strings.HasPrefix(service, "crawler-realtime-"):
		return KindCrawlerRealtime
	}
	return KindOther
}

// ClassifyWorkload resolves the workload for a deployment. A non-empty override replaces
// the kind derived from the service name.
func ClassifyWorkload(cluster, service string, override ServiceKind) Workload {
	kind := override
	if kind == "" {
		kind = ClassifyService(service)
	}
	return Workload{
		Kind:     kind,
		Stateful: kind == KindCrawlerRealtime || kind == KindRepeater || statefulCluster(cluster),
	}
}

func statefulCluster(cluster string) bool {
	return cluster == "crawler-realtime" || strings.HasPrefix(cluster, "crawler-realtime-") ||
		cluster == "repeater" || strings.HasPrefix(cluster, "repeater-")
}
