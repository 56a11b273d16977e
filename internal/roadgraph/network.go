package roadgraph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/paulmach/osm"
)

// NetworkType selects which ways are routable.
type NetworkType string

const (
	NetworkBike  NetworkType = "bike"
	NetworkWalk  NetworkType = "walk"
	NetworkDrive NetworkType = "drive"
	NetworkAll   NetworkType = "all"
)

// ParseNetworkType accepts the names used on the command line.
func ParseNetworkType(s string) (NetworkType, error) {
	nt := NetworkType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := networkFilters[nt]; !ok {
		return "", fmt.Errorf("unknown network type %q (want bike, walk, drive or all)", s)
	}
	return nt, nil
}

// Bidirectional reports whether oneway tags are ignored.
func (nt NetworkType) Bidirectional() bool {
	return nt == NetworkWalk
}

// tagRule drops a way when the tag value matches exclude. Like Overpass's !~
// operator the match is unanchored, so "motor" also excludes "motorway_link".
type tagRule struct {
	key     string
	exclude string
	re      *regexp.Regexp
}

func rule(key, exclude string) tagRule {
	return tagRule{key: key, exclude: exclude, re: regexp.MustCompile(exclude)}
}

// wayFilter mirrors the Overpass filters osmnx uses for each network type.
type wayFilter []tagRule

var networkFilters = map[NetworkType]wayFilter{
	NetworkBike: {
		rule("area", "yes"),
		rule("highway", "abandoned|bus_guideway|construction|corridor|elevator|escalator|footway|motor|no|planned|platform|proposed|raceway|razed|steps"),
		rule("bicycle", "no"),
		rule("service", "private"),
		rule("access", "private"),
	},
	NetworkWalk: {
		rule("area", "yes"),
		rule("highway", "abandoned|bus_guideway|construction|cycleway|motor|no|planned|platform|proposed|raceway|razed"),
		rule("foot", "no"),
		rule("service", "private"),
		rule("access", "private"),
	},
	NetworkDrive: {
		rule("area", "yes"),
		rule("highway", "abandoned|bridleway|bus_guideway|construction|corridor|cycleway|elevator|escalator|footway|no|path|pedestrian|planned|platform|proposed|raceway|razed|service|steps|track"),
		rule("motor_vehicle", "no"),
		rule("motorcar", "no"),
		rule("service", "alley|driveway|emergency_access|parking|parking_aisle|private"),
		rule("access", "private"),
	},
	NetworkAll: {
		rule("area", "yes"),
		rule("highway", "abandoned|construction|no|planned|platform|proposed|raceway|razed"),
	},
}

// Accepts reports whether a way with these tags belongs to the network.
func (f wayFilter) Accepts(tags osm.Tags) bool {
	if tags.Find("highway") == "" {
		return false
	}
	for _, r := range f {
		if v := tags.Find(r.key); v != "" && r.re.MatchString(v) {
			return false
		}
	}
	return true
}

// Overpass renders the filter in Overpass QL, e.g. ["highway"]["area"!~"yes"].
func (f wayFilter) Overpass() string {
	var b strings.Builder
	b.WriteString(`["highway"]`)
	for _, r := range f {
		fmt.Fprintf(&b, `[%q!~%q]`, r.key, r.exclude)
	}
	return b.String()
}

// onewayDirections returns whether traversal along and against the node order of
// a way is allowed.
func onewayDirections(tags osm.Tags, nt NetworkType) (forward, backward bool) {
	if nt.Bidirectional() {
		return true, true
	}
	if nt == NetworkBike && tags.Find("oneway:bicycle") == "no" {
		return true, true
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		return true, false
	case "-1", "reverse":
		return false, true
	case "no", "false", "0":
		return true, true
	}

	if tags.Find("junction") == "roundabout" {
		return true, false
	}
	return true, true
}
