package main

import (
	"math/rand"
	"net"
	"sort"
)

// rngSource is the randomness the weighted picker draws from. *rand.Rand
// already satisfies it, so production code and seeded tests share the
// same interface.
type rngSource interface {
	Float64() float64
}

func newRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// routableTypes are the RR types that go through geo/health/weight
// selection. Every other supported type is infrastructure metadata
// (NS, MX, TXT, CAA, SRV, PTR, SOA) and is returned unfiltered.
var routableTypes = map[string]bool{"A": true, "AAAA": true, "CNAME": true}

// selectAnswers runs the full dispatch pipeline from candidate rows for a
// single name down to the rows that belong in a response's answer
// section. It never mutates rows.
func selectAnswers(rows []RecordModel, qtype uint16, clientIP string, rng rngSource) []RecordModel {
	enabled := filterEnabled(rows)

	if qtype == TypeANY {
		return selectAny(enabled, clientIP, rng)
	}

	typeName, ok := rrTypeName(qtype)
	if !ok {
		return nil
	}

	if !routableTypes[typeName] {
		if !multiValuedTypes[typeName] {
			return nil
		}
		return filterByType(enabled, typeName)
	}

	working := filterByType(enabled, typeName)
	if typeName == "A" || typeName == "AAAA" {
		if cnames := filterByType(enabled, "CNAME"); len(cnames) > 0 {
			working = cnames
		}
	}

	return routePipeline(working, clientIP, rng)
}

func selectAny(enabled []RecordModel, clientIP string, rng rngSource) []RecordModel {
	byType := make(map[string][]RecordModel)
	var types []string
	for _, r := range enabled {
		if _, ok := byType[r.Type]; !ok {
			types = append(types, r.Type)
		}
		byType[r.Type] = append(byType[r.Type], r)
	}
	sort.Strings(types)

	var out []RecordModel
	for _, t := range types {
		group := byType[t]
		if routableTypes[t] {
			out = append(out, routePipeline(group, clientIP, rng)...)
		} else {
			out = append(out, group...)
		}
	}
	return out
}

// routePipeline applies the geo filter, the health filter, and the
// weighted pick, in that order, to a single type's candidate set.
func routePipeline(rows []RecordModel, clientIP string, rng rngSource) []RecordModel {
	rows = geoFilter(rows, clientIP)
	rows = healthFilter(rows)
	return weightedPick(rows, rng)
}

func filterEnabled(rows []RecordModel) []RecordModel {
	out := make([]RecordModel, 0, len(rows))
	for _, r := range rows {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

func filterByType(rows []RecordModel, typeName string) []RecordModel {
	out := make([]RecordModel, 0, len(rows))
	for _, r := range rows {
		if r.Type == typeName {
			out = append(out, r)
		}
	}
	return out
}

// geoFilter prefers rows whose geo CIDR list contains the client's
// address, falls back to rows carrying no geo constraint at all, and
// falls back further to the full set if neither subset is non-empty. With
// no client IP to partition on, the geo step is skipped entirely and the
// original set is returned unchanged.
func geoFilter(rows []RecordModel, clientIP string) []RecordModel {
	if clientIP == "" {
		return rows
	}

	ip := net.ParseIP(clientIP)

	var matched, unconstrained []RecordModel
	for _, r := range rows {
		cidrs := r.geoCIDRList()
		if len(cidrs) == 0 {
			unconstrained = append(unconstrained, r)
			continue
		}
		if ip != nil && cidrsContain(cidrs, ip) {
			matched = append(matched, r)
		}
	}

	switch {
	case len(matched) > 0:
		return matched
	case len(unconstrained) > 0:
		return unconstrained
	default:
		return rows
	}
}

func cidrsContain(cidrs []string, ip net.IP) bool {
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// healthFilter drops rows that carry a healthcheck URL and are currently
// marked unhealthy, failing open (returning the original set) if that
// would empty the pool entirely.
func healthFilter(rows []RecordModel) []RecordModel {
	out := make([]RecordModel, 0, len(rows))
	for _, r := range rows {
		if r.HealthcheckURL != "" && !r.Healthy {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return rows
	}
	return out
}

// weightedPick draws one row from rows with probability proportional to
// weight. Rows are sorted by ID first so the same rng sequence always
// produces the same pick in tests. A weight of zero is normally simply
// unlikely to be picked, but if every row's weight is zero, all rows are
// treated as weight one so the pool isn't dead.
func weightedPick(rows []RecordModel, rng rngSource) []RecordModel {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) == 1 {
		return rows
	}

	sorted := append([]RecordModel(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	weights := make([]int, len(sorted))
	total := 0
	allZero := true
	for i, r := range sorted {
		w := r.Weight
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
		if w != 0 {
			allZero = false
		}
	}
	if allZero {
		for i := range weights {
			weights[i] = 1
		}
		total = len(weights)
	}

	target := rng.Float64() * float64(total)
	cumulative := 0.0
	for i, w := range weights {
		cumulative += float64(w)
		if target < cumulative {
			return sorted[i : i+1]
		}
	}
	return sorted[len(sorted)-1:]
}
