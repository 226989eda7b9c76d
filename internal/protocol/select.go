package protocol

import "sort"

// familyRank orders IPv4 before IPv6 and mDNS within a candidate group.
func familyRank(c Candidate) int {
	family, _, err := classifyAddress(c.IP)
	if err != nil {
		return 3
	}
	switch family {
	case FamilyIPv4:
		return 0
	case FamilyIPv6:
		return 1
	default:
		return 2
	}
}

// SelectCandidates picks at most max candidates for the outgoing
// payload. Host candidates come first, IPv4-preferred; if any
// server-reflexive candidate exists, exactly one slot is reserved for
// the best (IPv4-preferred) one, so a payload always carries an
// externally-reachable address whenever one is known. Candidates whose
// address the codec cannot carry are dropped up front.
func SelectCandidates(candidates []Candidate, max int) []Candidate {
	if max <= 0 {
		max = DefaultMaxCandidates
	}

	var hosts, srflx []Candidate
	for _, c := range candidates {
		if !ValidAddress(c.IP) || c.Port == 0 {
			continue
		}
		switch c.Type {
		case TypeHost:
			hosts = append(hosts, c)
		case TypeServerReflexive:
			srflx = append(srflx, c)
		}
	}

	sort.SliceStable(hosts, func(i, j int) bool {
		return familyRank(hosts[i]) < familyRank(hosts[j])
	})
	sort.SliceStable(srflx, func(i, j int) bool {
		return familyRank(srflx[i]) < familyRank(srflx[j])
	})

	hostSlots := max
	if len(srflx) > 0 {
		hostSlots--
	}
	if len(hosts) > hostSlots {
		hosts = hosts[:hostSlots]
	}

	out := make([]Candidate, 0, max)
	out = append(out, hosts...)
	if len(srflx) > 0 {
		out = append(out, srflx[0])
	}
	return out
}
